package query

import (
	"fmt"
	"sort"
)

// Filters groups filter values by kind, the way tool callers supply them.
// Predicates expands the kinds in field order with keys sorted inside each kind.
type Filters struct {
	Equals         map[string]any    `json:"equals,omitempty" jsonschema:"feature = value"`
	Greater        map[string]any    `json:"greater,omitempty" jsonschema:"feature > value"`
	Less           map[string]any    `json:"less,omitempty" jsonschema:"feature < value"`
	GreaterOrEqual map[string]any    `json:"greater_or_equal,omitempty" jsonschema:"feature >= value"`
	LessOrEqual    map[string]any    `json:"less_or_equal,omitempty" jsonschema:"feature <= value"`
	NotEqual       map[string]any    `json:"not_equal,omitempty" jsonschema:"feature <> value"`
	Like           map[string]string `json:"like,omitempty" jsonschema:"feature LIKE pattern"`
	RLike          map[string]string `json:"rlike,omitempty" jsonschema:"feature RLIKE regular expression"`
	In             map[string][]any  `json:"in,omitempty" jsonschema:"feature IN (values)"`
	Between        map[string][]any  `json:"between,omitempty" jsonschema:"feature BETWEEN low and high, given as [low, high]"`
	Null           []string          `json:"null,omitempty" jsonschema:"features that must be NULL"`
	NotNull        []string          `json:"not_null,omitempty" jsonschema:"features that must not be NULL"`
}

// IsEmpty reports whether no filter of any kind is set.
func (f Filters) IsEmpty() bool {
	return len(f.Equals) == 0 && len(f.Greater) == 0 && len(f.Less) == 0 &&
		len(f.GreaterOrEqual) == 0 && len(f.LessOrEqual) == 0 && len(f.NotEqual) == 0 &&
		len(f.Like) == 0 && len(f.RLike) == 0 && len(f.In) == 0 && len(f.Between) == 0 &&
		len(f.Null) == 0 && len(f.NotNull) == 0
}

// Predicates expands the filters into predicate order.
func (f Filters) Predicates() ([]Predicate, error) {
	var out []Predicate
	compare := func(values map[string]any, build func(string, any) Compare) {
		for _, k := range sortedKeys(values) {
			out = append(out, build(k, values[k]))
		}
	}
	pattern := func(values map[string]string, build func(string, string) Compare) {
		for _, k := range sortedKeys(values) {
			out = append(out, build(k, values[k]))
		}
	}

	compare(f.Equals, Equals)
	compare(f.Greater, Greater)
	compare(f.Less, Less)
	compare(f.GreaterOrEqual, GreaterOrEqual)
	compare(f.LessOrEqual, LessOrEqual)
	compare(f.NotEqual, NotEqual)
	pattern(f.Like, Like)
	pattern(f.RLike, RLike)
	for _, k := range sortedKeys(f.In) {
		out = append(out, In{Name: k, Values: f.In[k]})
	}
	for _, k := range sortedKeys(f.Between) {
		bounds := f.Between[k]
		if len(bounds) != 2 {
			return nil, fmt.Errorf("%w: BETWEEN filter on %q needs exactly two bounds, got %d", ErrInvalidInput, k, len(bounds))
		}
		out = append(out, Between{Name: k, Low: bounds[0], High: bounds[1]})
	}
	for _, name := range f.Null {
		out = append(out, Null{Name: name})
	}
	for _, name := range f.NotNull {
		out = append(out, NotNull{Name: name})
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
