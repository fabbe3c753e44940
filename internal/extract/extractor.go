// Package extract infers CPE entry fields (date, hours, category, description)
// from the raw text of a training certificate.
//
// Each field is produced by an ordered list of rules where the first usable
// match wins. An acceptance policy then decides whether the combined result is
// good enough to prefill an entry. Extraction never fails with an error: a nil
// result means the caller should fall back to manual entry.
package extract

import (
	"time"

	"github.com/hpungsan/cpetrack/internal/entry"
)

// Fields is the result of a successful extraction.
type Fields struct {
	Date        string         `json:"date"`
	Hours       float64        `json:"hours"`
	Category    entry.Category `json:"category"`
	Description string         `json:"description"`
}

// Trace names the rule that produced each field.
type Trace struct {
	DateRule        string `json:"date_rule,omitempty"`
	DateMatch       string `json:"date_match,omitempty"`
	HoursRule       string `json:"hours_rule,omitempty"`
	CategoryRule    string `json:"category_rule"`
	DescriptionRule string `json:"description_rule"`
}

// Analysis is the per-field outcome before the acceptance policy runs.
// Date is empty and Hours is 0 when not found.
type Analysis struct {
	Fields Fields `json:"fields"`
	Trace  Trace  `json:"trace"`
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock sets the clock used for the lenient date default.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		if now != nil {
			e.now = now
		}
	}
}

// Extractor applies one Policy. It holds no mutable state and is safe for
// concurrent use.
type Extractor struct {
	policy       Policy
	dates        []rule[string]
	hours        []rule[float64]
	keywords     []categoryKeywords
	descriptions []rule[string]
	boilerplate  []string
	now          func() time.Time
}

// New builds an Extractor for policy. Vendor rules, when enabled, are tried
// before the base rules of the same field.
func New(policy Policy, opts ...Option) *Extractor {
	policy = policy.withDefaults()
	e := &Extractor{
		policy:   policy,
		keywords: keywordTable(policy.Vendor),
		now:      time.Now,
	}

	e.boilerplate = append(e.boilerplate, baseBoilerplate...)
	if policy.Vendor {
		e.dates = append(e.dates, vendorDateRules()...)
		e.hours = append(e.hours, vendorHoursRules()...)
		e.descriptions = append(e.descriptions, vendorDescriptionRules()...)
		e.boilerplate = append(e.boilerplate, vendorBoilerplate...)
	}
	e.dates = append(e.dates, baseDateRules()...)
	e.hours = append(e.hours, baseHoursRules()...)
	e.descriptions = append(e.descriptions, baseDescriptionRules()...)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the effective policy, with defaults applied.
func (e *Extractor) Policy() Policy {
	return e.policy
}

// Extract returns the fields for text, or nil when the acceptance policy
// rejects the result.
func (e *Extractor) Extract(text string) *Fields {
	a := e.Analyze(text)
	return e.Accept(a)
}

// Analyze runs every field rule over text without applying acceptance.
func (e *Extractor) Analyze(text string) Analysis {
	var a Analysis

	a.Fields.Date, a.Trace.DateRule, a.Trace.DateMatch = e.date(text)
	a.Fields.Hours, a.Trace.HoursRule = e.hoursValue(text)
	a.Fields.Category, a.Trace.CategoryRule = e.category(text)
	a.Fields.Description, a.Trace.DescriptionRule = e.description(text)

	return a
}

// Accept applies the acceptance policy to an analysis. It returns a new
// Fields value; a is not modified.
func (e *Extractor) Accept(a Analysis) *Fields {
	f := a.Fields
	hasDate := f.Date != ""
	hasHours := f.Hours > 0

	if e.policy.Mode == ModeLenient {
		if !hasDate && !hasHours {
			return nil
		}
		if !hasDate {
			f.Date = e.now().Format(entry.DateLayout)
		}
		if !hasHours {
			f.Hours = 1.0
		}
		return &f
	}

	if !hasDate || !hasHours {
		return nil
	}
	return &f
}

// date returns the normalized date, the deciding rule and the matched text.
// A syntactic match that is not a real date ends the search unless the policy
// allows falling through to the next rule.
func (e *Extractor) date(text string) (string, string, string) {
	for _, r := range e.dates {
		v, match, hit, ok := r.apply(text)
		if !hit {
			continue
		}
		if ok {
			return v, r.name, match
		}
		if !e.policy.DateFallthrough {
			return "", r.name, match
		}
	}
	return "", "", ""
}

func (e *Extractor) hoursValue(text string) (float64, string) {
	for _, r := range e.hours {
		v, _, hit, ok := r.apply(text)
		if !hit {
			continue
		}
		if ok {
			return v, r.name
		}
		return 0, r.name
	}
	return 0, ""
}
