package style

import "fmt"

// Match is a predicate kind.
type Match uint8

const (
	MatchAlways Match = iota
	MatchGreaterThan
	MatchLessThan
	MatchNumberEquals
	MatchStringEquals
	MatchStringIn
)

var matchNames = map[string]Match{
	"always":        MatchAlways,
	"greater_than":  MatchGreaterThan,
	"less_than":     MatchLessThan,
	"number_equals": MatchNumberEquals,
	"string_equals": MatchStringEquals,
	"string_in":     MatchStringIn,
}

// ParseMatch resolves a predicate name.
func ParseMatch(name string) (Match, error) {
	m, ok := matchNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown filter match %q", name)
	}
	return m, nil
}

// Filter is one compiled predicate over a feature's tags.
type Filter struct {
	Match   Match
	Key     string
	Number  float64
	String  string
	Strings []string
}

// Matches reports whether every filter accepts the tags. An empty list
// matches everything.
func Matches(filters []Filter, tags Tags) bool {
	for i := range filters {
		if !filters[i].accepts(tags) {
			return false
		}
	}
	return true
}

// accepts is true when any tag under the filter's key satisfies it.
func (f *Filter) accepts(tags Tags) bool {
	if f.Match == MatchAlways {
		return true
	}
	for i := 0; i < tags.Len(); i++ {
		key, v := tags.Tag(i)
		if key != f.Key {
			continue
		}
		switch f.Match {
		case MatchGreaterThan:
			if v.Kind == KindNumber && v.Num > f.Number {
				return true
			}
		case MatchLessThan:
			if v.Kind == KindNumber && v.Num < f.Number {
				return true
			}
		case MatchNumberEquals:
			if v.Kind == KindNumber && v.Num == f.Number {
				return true
			}
		case MatchStringEquals:
			if v.Kind == KindString && v.Str == f.String {
				return true
			}
		case MatchStringIn:
			if v.Kind != KindString {
				continue
			}
			for _, s := range f.Strings {
				if v.Str == s {
					return true
				}
			}
		default:
			panic(fmt.Sprintf("style: unhandled filter match %d", f.Match))
		}
	}
	return false
}
