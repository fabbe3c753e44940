package extract

import (
	"regexp"
	"strings"

	"github.com/hpungsan/cpetrack/internal/entry"
)

var reSubjectArea = regexp.MustCompile(`(?i)(?:CPE\s+)?Subject\s+Area\s*:?\s*([^\n]+?)(?:\s+Participation|\s+Class|\s+\d|\n|$)`)

// categoryKeywords is one row of the keyword-scan table.
type categoryKeywords struct {
	category entry.Category
	keywords []string
}

// baseKeywords is in priority order: the first category with any hit wins.
var baseKeywords = []categoryKeywords{
	{entry.CategoryEthics, []string{"ethics", "ethical", "professional conduct", "code of conduct"}},
	{entry.CategoryTechnical, []string{"technical", "accounting", "audit", "tax", "gaap", "ifrs", "financial reporting", "attestation"}},
	{entry.CategoryProfessionalSkills, []string{"communication", "leadership", "management", "consulting", "professional skills"}},
	{entry.CategoryBusiness, []string{"business", "strategy", "marketing", "finance", "economics"}},
}

// vendorKeywords extends baseKeywords per category when vendor patterns are on.
var vendorKeywords = map[entry.Category][]string{
	entry.CategoryTechnical:          {"information technology", "ai", "artificial intelligence", "data", "technology"},
	entry.CategoryProfessionalSkills: {"decision-making", "enterprise"},
}

// subjectAreaMap maps a vendor subject area label, checked in order.
var subjectAreaMap = []categoryKeywords{
	{entry.CategoryEthics, []string{"ethics", "professional conduct"}},
	{entry.CategoryTechnical, []string{"information technology", "technical", "accounting"}},
	{entry.CategoryBusiness, []string{"specialized knowledge"}},
	{entry.CategoryProfessionalSkills, []string{"behavioral", "communication", "personal development"}},
}

func keywordTable(vendor bool) []categoryKeywords {
	table := make([]categoryKeywords, 0, len(baseKeywords))
	for _, row := range baseKeywords {
		kws := append([]string(nil), row.keywords...)
		if vendor {
			kws = append(kws, vendorKeywords[row.category]...)
		}
		table = append(table, categoryKeywords{category: row.category, keywords: kws})
	}
	return table
}

// firstHit returns the first row with a keyword contained in lower.
func firstHit(table []categoryKeywords, lower string) (entry.Category, string, bool) {
	for _, row := range table {
		for _, kw := range row.keywords {
			if strings.Contains(lower, kw) {
				return row.category, kw, true
			}
		}
	}
	return "", "", false
}

// category resolves the subject area label first, then the keyword scan,
// then the Technical default. The returned string names the deciding source.
func (e *Extractor) category(text string) (entry.Category, string) {
	if m := reSubjectArea.FindStringSubmatch(text); m != nil {
		area := strings.ToLower(strings.TrimSpace(m[1]))
		if area != "" {
			if c, _, ok := firstHit(subjectAreaMap, area); ok {
				return c, "subject_area"
			}
			return entry.CategoryOther, "subject_area"
		}
	}

	if c, kw, ok := firstHit(e.keywords, strings.ToLower(text)); ok {
		return c, "keyword:" + kw
	}
	return entry.CategoryTechnical, "default"
}
