package extract

import "regexp"

// rule is one (pattern, extractor) pair. Rules for a field are evaluated in
// order and the first usable hit wins; order is significant.
type rule[T any] struct {
	name  string
	re    *regexp.Regexp
	parse func(m []string) (T, bool)
}

// apply runs the rule against text. hit reports a syntactic match; ok reports
// whether parse produced a usable value from it.
func (r rule[T]) apply(text string) (v T, match string, hit, ok bool) {
	m := r.re.FindStringSubmatch(text)
	if m == nil {
		return v, "", false, false
	}
	v, ok = r.parse(m)
	return v, m[0], true, ok
}
