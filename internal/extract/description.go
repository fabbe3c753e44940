package extract

import (
	"regexp"
	"strings"

	"github.com/hpungsan/cpetrack/internal/entry"
)

const (
	// MaxDescriptionChars caps every extracted description.
	MaxDescriptionChars = 200

	// PlaceholderDescription is used when no description can be found.
	PlaceholderDescription = "CPE Training"
)

var (
	reIDPrefixedTitle  = regexp.MustCompile(`(?i)[A-Za-z0-9]{20,}\s+(.+)`)
	reCourseEntitled   = regexp.MustCompile(`(?i)FOR THE COURSE ENTITLED:\s*(.+?)(?:\s+DELIVERY METHOD|\s+Virtual|\s+Class)`)
	reAIInAction       = regexp.MustCompile(`(?i)AI in action:\s*(.+?)(?:\s+DELIVERY METHOD|\s+Virtual|\s+Class)`)
	reLabeledTitle     = regexp.MustCompile(`(?i)(?:course|title|subject|program|topic)[:\s]+(.+?)(?:\n|$)`)
	reCertOfCompletion = regexp.MustCompile(`(?i)certificate of completion[:\s]*\n*(.+?)(?:\n|$)`)
	reEventKind        = regexp.MustCompile(`(?i)(?:webinar|seminar|conference|training|workshop)[:\s]*(.+?)(?:\n|$)`)
)

var (
	baseBoilerplate   = []string{"certificate", "completion"}
	vendorBoilerplate = []string{"deloitte", "presented to"}
)

func capture(m []string) (string, bool) {
	s := strings.TrimSpace(m[1])
	return s, s != ""
}

func baseDescriptionRules() []rule[string] {
	return []rule[string]{
		{name: "labeled_title", re: reLabeledTitle, parse: capture},
		{name: "certificate_of_completion", re: reCertOfCompletion, parse: capture},
		{name: "event_kind", re: reEventKind, parse: capture},
	}
}

func vendorDescriptionRules() []rule[string] {
	return []rule[string]{
		{name: "id_prefixed_title", re: reIDPrefixedTitle, parse: capture},
		{name: "course_entitled", re: reCourseEntitled, parse: capture},
		{name: "ai_in_action", re: reAIInAction, parse: capture},
	}
}

// description tries the labeled rules, then the first plausible line, then
// the placeholder. The returned string names the deciding source.
func (e *Extractor) description(text string) (string, string) {
	for _, r := range e.descriptions {
		v, _, _, ok := r.apply(text)
		if ok && entry.CountChars(v) > e.policy.DescriptionMinLen {
			return clip(v), r.name
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if entry.CountChars(line) <= e.policy.FallbackLineMinLen {
			continue
		}
		if e.isBoilerplate(line) || e.looksLikeDate(line) {
			continue
		}
		return clip(line), "line_fallback"
	}

	return PlaceholderDescription, "placeholder"
}

func (e *Extractor) isBoilerplate(line string) bool {
	lower := strings.ToLower(line)
	for _, w := range e.boilerplate {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func (e *Extractor) looksLikeDate(line string) bool {
	for _, r := range e.dates {
		if r.re.MatchString(line) {
			return true
		}
	}
	return false
}

// clip truncates to MaxDescriptionChars and drops whitespace the cut exposed.
func clip(s string) string {
	return strings.TrimSpace(entry.Truncate(s, MaxDescriptionChars))
}
