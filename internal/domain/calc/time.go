// Package calc generates the MDX expressions of derived calculated
// features. Generators validate their inputs against a schema catalog and
// return features ready for the project mutation engine; they never talk
// to the server.
package calc

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/rpggio/cubelink/internal/domain/project"
	"github.com/rpggio/cubelink/internal/domain/schema"
)

// RollingFunc is the MDX set aggregate applied over a rolling window.
type RollingFunc string

const (
	RollingAvg   RollingFunc = "Avg"
	RollingSum   RollingFunc = "Sum"
	RollingMax   RollingFunc = "Max"
	RollingMin   RollingFunc = "Min"
	RollingStdev RollingFunc = "Stdev"
)

// TimeLevel names a level of a time hierarchy.
type TimeLevel struct {
	Hierarchy string `json:"hierarchy"`
	Level     string `json:"level"`
}

// Generator builds calculated features over one catalog.
type Generator struct {
	catalog *schema.Catalog
}

func New(catalog *schema.Catalog) *Generator {
	return &Generator{catalog: catalog}
}

func measure(name string) string { return "[Measures].[" + name + "]" }

func (g *Generator) requireNumeric(feature string) error {
	if !g.catalog.IsNumeric(feature) {
		return fmt.Errorf("%w: %q is not a numeric feature", schema.ErrUnknownFeature, feature)
	}
	return nil
}

func requirePositive(what string, n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %s must be greater than zero, got %d", ErrInvalidInput, what, n)
	}
	return nil
}

// timePath returns the [dimension].[hierarchy] prefix after checking the level.
func (g *Generator) timePath(at TimeLevel) (string, error) {
	if err := g.catalog.CheckTimeHierarchy(at.Hierarchy, at.Level); err != nil {
		return "", err
	}
	dim, err := g.catalog.HierarchyDimension(at.Hierarchy)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("[%s].[%s]", dim, at.Hierarchy), nil
}

func (g *Generator) checkWindow(feature string, length int, at TimeLevel) (string, error) {
	if err := g.requireNumeric(feature); err != nil {
		return "", err
	}
	if err := requirePositive("length", length); err != nil {
		return "", err
	}
	return g.timePath(at)
}

func parallelPeriod(path, level string, offset int) string {
	return fmt.Sprintf("ParallelPeriod(%s.[%s], %d, %s.CurrentMember)", path, level, offset, path)
}

func feature(name, expression string, meta project.Metadata) project.CalculatedFeature {
	return project.CalculatedFeature{Name: name, Expression: expression, Metadata: meta}
}

// Rolling aggregates feature over the last length members of the level, current member included.
func (g *Generator) Rolling(fn RollingFunc, name, numeric string, length int, at TimeLevel, meta project.Metadata) (project.CalculatedFeature, error) {
	switch fn {
	case RollingAvg, RollingSum, RollingMax, RollingMin, RollingStdev:
	default:
		return project.CalculatedFeature{}, fmt.Errorf("%w: rolling function %q", ErrInvalidInput, fn)
	}
	path, err := g.checkWindow(numeric, length, at)
	if err != nil {
		return project.CalculatedFeature{}, err
	}
	expr := fmt.Sprintf("%s(%s:%s.CurrentMember, %s)", fn, parallelPeriod(path, at.Level, length-1), path, measure(numeric))
	return feature(name, expr, meta), nil
}

// Lag is feature's value length members earlier.
func (g *Generator) Lag(name, numeric string, length int, at TimeLevel, meta project.Metadata) (project.CalculatedFeature, error) {
	path, err := g.checkWindow(numeric, length, at)
	if err != nil {
		return project.CalculatedFeature{}, err
	}
	expr := fmt.Sprintf("(%s,%s)", parallelPeriod(path, at.Level, length), measure(numeric))
	return feature(name, expr, meta), nil
}

// Diff is the difference to the value length members earlier, 0 when that value is empty.
func (g *Generator) Diff(name, numeric string, length int, at TimeLevel, meta project.Metadata) (project.CalculatedFeature, error) {
	return g.changeOver(name, numeric, length, at, meta, "-%s", "")
}

// PercentChange is the ratio to the value length members earlier minus one, 0 when that value is empty.
func (g *Generator) PercentChange(name, numeric string, length int, at TimeLevel, meta project.Metadata) (project.CalculatedFeature, error) {
	return g.changeOver(name, numeric, length, at, meta, "/%s", " - 1")
}

func (g *Generator) changeOver(name, numeric string, length int, at TimeLevel, meta project.Metadata, op, suffix string) (project.CalculatedFeature, error) {
	path, err := g.checkWindow(numeric, length, at)
	if err != nil {
		return project.CalculatedFeature{}, err
	}
	m := measure(numeric)
	earlier := fmt.Sprintf("(%s, %s)", parallelPeriod(path, at.Level, length), m)
	expr := fmt.Sprintf("CASE WHEN IsEmpty(%s) THEN 0 ELSE (%s%s%s) END", earlier, m, fmt.Sprintf(op, earlier), suffix)
	return feature(name, expr, meta), nil
}

// PeriodToDate sums feature from the start of the enclosing level member.
func (g *Generator) PeriodToDate(name, numeric string, at TimeLevel, meta project.Metadata) (project.CalculatedFeature, error) {
	if err := g.requireNumeric(numeric); err != nil {
		return project.CalculatedFeature{}, err
	}
	path, err := g.timePath(at)
	if err != nil {
		return project.CalculatedFeature{}, err
	}
	m := measure(numeric)
	expr := fmt.Sprintf("CASE WHEN IsEmpty(%s) THEN NULL ELSE Sum(PeriodsToDate(%s.[%s], %s.CurrentMember), %s) END",
		m, path, at.Level, path, m)
	return feature(name, expr, meta), nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// PeriodsToDate creates a period-to-date feature for every level above the
// lowest one, named <feature>_<Level>_To_<Lowest>.
func (g *Generator) PeriodsToDate(numeric, hierarchy string, meta project.Metadata) ([]project.CalculatedFeature, error) {
	if err := g.catalog.CheckTimeHierarchy(hierarchy, ""); err != nil {
		return nil, err
	}
	levels, err := g.catalog.ListLevels(hierarchy)
	if err != nil {
		return nil, err
	}
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: hierarchy %q has no levels", schema.ErrUnknownHierarchy, hierarchy)
	}
	base := levels[len(levels)-1]
	var out []project.CalculatedFeature
	for _, level := range levels[:len(levels)-1] {
		name := fmt.Sprintf("%s_%s_To_%s", numeric, capitalize(level), capitalize(base))
		f, err := g.PeriodToDate(name, numeric, TimeLevel{Hierarchy: hierarchy, Level: level}, meta)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Percentages creates, for every pair of levels, the share of feature in the
// ancestor member the given number of levels up, named <upper>%<lower>.
func (g *Generator) Percentages(numeric, hierarchy string, meta project.Metadata) ([]project.CalculatedFeature, error) {
	dim, err := g.catalog.HierarchyDimension(hierarchy)
	if err != nil {
		return nil, err
	}
	levels, err := g.catalog.ListLevels(hierarchy)
	if err != nil {
		return nil, err
	}
	if err := g.requireNumeric(numeric); err != nil {
		return nil, err
	}
	m := measure(numeric)
	var out []project.CalculatedFeature
	for lower := range levels {
		for higher := lower + 1; higher < len(levels); higher++ {
			member := "CurrentMember" + strings.Repeat(".Parent", higher-lower)
			tuple := fmt.Sprintf("(%s, [%s].[%s].%s)", m, dim, hierarchy, member)
			expr := fmt.Sprintf("IIF( %s = 0, NULL, %s / %s )", tuple, m, tuple)
			out = append(out, feature(levels[lower]+"%"+levels[higher], expr, meta))
		}
	}
	return out, nil
}

// RollingStats creates min, max, avg, sum and stddev rolling features plus a
// lag for every feature and interval. Intervals default to the customary
// steps of the level's granularity; an interval of 1 only gets the lag.
// Names follow <feature>_<interval>_<unit>_<stat>.
func (g *Generator) RollingStats(numerics []string, at TimeLevel, intervals []int, meta project.Metadata) ([]project.CalculatedFeature, error) {
	levelType, err := g.catalog.LevelType(at.Hierarchy, at.Level)
	if err != nil {
		return nil, err
	}
	if len(numerics) == 0 {
		return nil, fmt.Errorf("%w: no numeric features", ErrInvalidInput)
	}
	for _, n := range numerics {
		if err := g.requireNumeric(n); err != nil {
			return nil, err
		}
	}
	if len(intervals) == 0 {
		intervals = levelType.TimeSteps()
	}
	stats := []struct {
		suffix string
		fn     RollingFunc
	}{
		{"min", RollingMin}, {"max", RollingMax}, {"avg", RollingAvg}, {"sum", RollingSum}, {"stddev", RollingStdev},
	}

	var out []project.CalculatedFeature
	for _, n := range numerics {
		for _, interval := range intervals {
			if err := requirePositive("interval", interval); err != nil {
				return nil, err
			}
			prefix := fmt.Sprintf("%s_%d_%s_", n, interval, levelType.Unit())
			if interval > 1 {
				for _, s := range stats {
					f, err := g.Rolling(s.fn, prefix+s.suffix, n, interval, at, meta)
					if err != nil {
						return nil, err
					}
					out = append(out, f)
				}
			}
			f, err := g.Lag(prefix+"lag", n, interval, at, meta)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
	}
	return out, nil
}
