package entry

import "math"

// ValidateInput contains parameters for validating entry fields.
type ValidateInput struct {
	Date                string
	Hours               float64
	Category            string
	Description         string
	DescriptionMaxChars int
}

// ValidateResult contains the results of validating entry fields.
type ValidateResult struct {
	Valid    bool
	Problems []string
	Category Category // resolved category when valid
}

// Validate checks user-supplied entry fields. Problems are reported in field order.
func Validate(input ValidateInput) *ValidateResult {
	result := &ValidateResult{Valid: true}

	if !ValidDate(input.Date) {
		result.Problems = append(result.Problems, "date must be a calendar date in YYYY-MM-DD form")
	}

	if h := input.Hours; math.IsNaN(h) || math.IsInf(h, 0) || h <= 0 {
		result.Problems = append(result.Problems, "hours must be a finite number greater than 0")
	}

	if c, ok := ParseCategory(input.Category); ok {
		result.Category = c
	} else {
		result.Problems = append(result.Problems, "category must be one of Ethics, Technical, Professional Skills, Business, Other")
	}

	desc := NormalizeDescription(input.Description)
	switch {
	case desc == "":
		result.Problems = append(result.Problems, "description is required")
	case input.DescriptionMaxChars > 0 && CountChars(desc) > input.DescriptionMaxChars:
		result.Problems = append(result.Problems, "description is too long")
	}

	result.Valid = len(result.Problems) == 0
	return result
}
