package extract

import (
	"regexp"
	"strconv"
)

var (
	reParticipationCredits = regexp.MustCompile(`(?i)Participation CPE Credits\s+(\d+(?:\.\d+)?)`)
	reCPECredits           = regexp.MustCompile(`(?i)CPE Credits\s+(\d+(?:\.\d+)?)`)
	reNumberThenUnit       = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:CPE\s*)?(?:credit|hour|hr)s?`)
	reUnitThenNumber       = regexp.MustCompile(`(?i)(?:credit|hour|hr)s?[:\s]+(\d+(?:\.\d+)?)`)
	reContactHours         = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*contact\s*hours?`)
)

func baseHoursRules() []rule[float64] {
	return []rule[float64]{
		{name: "number_unit", re: reNumberThenUnit, parse: decimal},
		{name: "unit_number", re: reUnitThenNumber, parse: decimal},
		{name: "contact_hours", re: reContactHours, parse: decimal},
	}
}

func vendorHoursRules() []rule[float64] {
	return []rule[float64]{
		{name: "participation_cpe_credits", re: reParticipationCredits, parse: decimal},
		{name: "cpe_credits", re: reCPECredits, parse: decimal},
	}
}

// decimal parses the first submatch. A parse failure yields the 0 sentinel.
func decimal(m []string) (float64, bool) {
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
