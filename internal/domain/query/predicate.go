package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Op is a binary comparison operator of the generic dialect.
type Op string

const (
	OpEquals         Op = "="
	OpGreater        Op = ">"
	OpLess           Op = "<"
	OpGreaterOrEqual Op = ">="
	OpLessOrEqual    Op = "<="
	OpNotEqual       Op = "<>"
	OpLike           Op = "LIKE"
	OpRLike          Op = "RLIKE"
)

// Predicate is one filter clause over a single feature.
type Predicate interface {
	Feature() string
	render(column string) (string, error)
}

// Compare is a binary comparison between a feature and a literal.
type Compare struct {
	Name  string
	Op    Op
	Value any
}

func Equals(name string, v any) Compare         { return Compare{name, OpEquals, v} }
func Greater(name string, v any) Compare        { return Compare{name, OpGreater, v} }
func Less(name string, v any) Compare           { return Compare{name, OpLess, v} }
func GreaterOrEqual(name string, v any) Compare { return Compare{name, OpGreaterOrEqual, v} }
func LessOrEqual(name string, v any) Compare    { return Compare{name, OpLessOrEqual, v} }
func NotEqual(name string, v any) Compare       { return Compare{name, OpNotEqual, v} }
func Like(name, pattern string) Compare         { return Compare{name, OpLike, pattern} }

// RLike matches a regular expression. The pattern is always quoted.
func RLike(name, pattern string) Compare { return Compare{name, OpRLike, pattern} }

func (c Compare) Feature() string { return c.Name }

func (c Compare) render(column string) (string, error) {
	quote := !isBare(c.Value) || c.Op == OpRLike
	v, err := literal(c.Name, c.Value, quote)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", column, c.Op, v), nil
}

// In is set membership. Every element is quoted the way the first one would be.
type In struct {
	Name   string
	Values []any
}

func (p In) Feature() string { return p.Name }

func (p In) render(column string) (string, error) {
	if len(p.Values) == 0 {
		return "", fmt.Errorf("%w: IN filter on %q has no values", ErrInvalidInput, p.Name)
	}
	quote := !isBare(p.Values[0])
	parts := make([]string, len(p.Values))
	for i, v := range p.Values {
		s, err := literal(p.Name, v, quote)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(parts, ", ")), nil
}

// Between is an inclusive range. Both bounds are quoted the way Low would be.
type Between struct {
	Name      string
	Low, High any
}

func (p Between) Feature() string { return p.Name }

func (p Between) render(column string) (string, error) {
	quote := !isBare(p.Low)
	low, err := literal(p.Name, p.Low, quote)
	if err != nil {
		return "", err
	}
	high, err := literal(p.Name, p.High, quote)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s BETWEEN %s and %s", column, low, high), nil
}

type Null struct{ Name string }

func (p Null) Feature() string { return p.Name }

func (p Null) render(column string) (string, error) { return column + " IS NULL", nil }

type NotNull struct{ Name string }

func (p NotNull) Feature() string { return p.Name }

func (p NotNull) render(column string) (string, error) { return column + " IS NOT NULL", nil }

// isBare reports whether v renders without quotes: numbers and booleans.
func isBare(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, bool, json.Number:
		return true
	}
	return false
}

// literal renders v for a filter on feature name. A nil value has no
// literal form; missing values are matched with the null filter kind.
func literal(name string, v any, quote bool) (string, error) {
	var s string
	switch x := v.(type) {
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(x), 'f', -1, 32)
	case nil:
		return "", fmt.Errorf("%w: filter on %q has a null value, use the null filter instead", ErrInvalidInput, name)
	default:
		s = fmt.Sprint(x)
	}
	if !quote {
		return s, nil
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'", nil
}
