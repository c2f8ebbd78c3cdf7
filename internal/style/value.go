package style

import "strconv"

// Kind discriminates feature property values.
type Kind uint8

const (
	KindNumber Kind = iota
	KindString
	KindBool
)

// Value is a vector-tile property value.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Bool bool
}

func Number(v float64) Value { return Value{Kind: KindNumber, Num: v} }
func String(v string) Value  { return Value{Kind: KindString, Str: v} }
func Bool(v bool) Value      { return Value{Kind: KindBool, Bool: v} }

// Text renders the value as label text.
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
}

// Tags is a feature's property list, indexed pairwise.
type Tags interface {
	Len() int
	Tag(i int) (key string, value Value)
}

// Lookup returns the first value stored under key.
func Lookup(tags Tags, key string) (Value, bool) {
	for i := 0; i < tags.Len(); i++ {
		if k, v := tags.Tag(i); k == key {
			return v, true
		}
	}
	return Value{}, false
}

// Property is one key/value pair.
type Property struct {
	Key   string
	Value Value
}

// Properties is a slice-backed Tags.
type Properties []Property

func (p Properties) Len() int { return len(p) }

func (p Properties) Tag(i int) (string, Value) {
	return p[i].Key, p[i].Value
}
