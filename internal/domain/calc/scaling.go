package calc

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rpggio/cubelink/internal/domain/project"
)

// PowerMethod selects the power transform family.
type PowerMethod string

const (
	YeoJohnson PowerMethod = "yeo-johnson"
	BoxCox     PowerMethod = "box-cox"
)

func num(x float64) string { return strconv.FormatFloat(x, 'f', -1, 64) }

func (g *Generator) transform(name, numeric, expr string, meta project.Metadata) (project.CalculatedFeature, error) {
	if err := g.requireNumeric(numeric); err != nil {
		return project.CalculatedFeature{}, err
	}
	return feature(name, expr, meta), nil
}

func nonZero(what string, x float64) error {
	if x == 0 {
		return fmt.Errorf("%w: %s must not be zero", ErrInvalidInput, what)
	}
	return nil
}

// MinMaxScaled maps [dataMin, dataMax] onto [featureMin, featureMax].
func (g *Generator) MinMaxScaled(name, numeric string, dataMin, dataMax, featureMin, featureMax float64, meta project.Metadata) (project.CalculatedFeature, error) {
	if err := nonZero("max - min", dataMax-dataMin); err != nil {
		return project.CalculatedFeature{}, err
	}
	expr := fmt.Sprintf("((%s - %s)/(%s-%s))*(%s-%s) +%s",
		measure(numeric), num(dataMin), num(dataMax), num(dataMin), num(featureMax), num(featureMin), num(featureMin))
	return g.transform(name, numeric, expr, meta)
}

func (g *Generator) StandardScaled(name, numeric string, mean, stddev float64, meta project.Metadata) (project.CalculatedFeature, error) {
	if err := nonZero("standard deviation", stddev); err != nil {
		return project.CalculatedFeature{}, err
	}
	return g.transform(name, numeric, fmt.Sprintf("(%s - %s) / %s", measure(numeric), num(mean), num(stddev)), meta)
}

// MaxAbsScaled divides by the absolute value of maxAbs.
func (g *Generator) MaxAbsScaled(name, numeric string, maxAbs float64, meta project.Metadata) (project.CalculatedFeature, error) {
	if err := nonZero("max abs", maxAbs); err != nil {
		return project.CalculatedFeature{}, err
	}
	return g.transform(name, numeric, fmt.Sprintf("%s / %s", measure(numeric), num(math.Abs(maxAbs))), meta)
}

func (g *Generator) RobustScaled(name, numeric string, median, iqr float64, meta project.Metadata) (project.CalculatedFeature, error) {
	if err := nonZero("interquartile range", iqr); err != nil {
		return project.CalculatedFeature{}, err
	}
	return g.transform(name, numeric, fmt.Sprintf("(%s - %s) / %s", measure(numeric), num(median), num(iqr)), meta)
}

func (g *Generator) LogTransformed(name, numeric string, meta project.Metadata) (project.CalculatedFeature, error) {
	return g.transform(name, numeric, fmt.Sprintf("log(%s)", measure(numeric)), meta)
}

func (g *Generator) UnitVectorNormalized(name, numeric string, magnitude float64, meta project.Metadata) (project.CalculatedFeature, error) {
	if err := nonZero("magnitude", magnitude); err != nil {
		return project.CalculatedFeature{}, err
	}
	return g.transform(name, numeric, fmt.Sprintf("%s/%s", measure(numeric), num(magnitude)), meta)
}

// PowerTransformed applies a Yeo-Johnson or Box-Cox transform with the given power.
func (g *Generator) PowerTransformed(name, numeric string, power float64, method PowerMethod, meta project.Metadata) (project.CalculatedFeature, error) {
	m, p := measure(numeric), num(power)
	var expr string
	switch PowerMethod(strings.ToLower(string(method))) {
	case YeoJohnson, "":
		negative := fmt.Sprintf("(-1*((((-1*%s)+1)^(2-%s))-1))/(2-%s)", m, p, p)
		positive := fmt.Sprintf("(((%s+1)^%s)-1)/%s", m, p, p)
		switch power {
		case 0:
			positive = fmt.Sprintf("log(%s+1)", m)
		case 2:
			negative = fmt.Sprintf("(-1*log((-1*%s)+1))", m)
		}
		expr = fmt.Sprintf("IIF(%s<0, %s, %s)", m, negative, positive)
	case BoxCox:
		if power == 0 {
			expr = fmt.Sprintf("log(%s)", m)
		} else {
			expr = fmt.Sprintf("((%s^%s)-1)/%s", m, p, p)
		}
	default:
		return project.CalculatedFeature{}, fmt.Errorf("%w: power method %q, valid values are %s and %s", ErrInvalidInput, method, YeoJohnson, BoxCox)
	}
	return g.transform(name, numeric, expr, meta)
}

// Binned numbers the bins below each edge from 0; values past the last edge get len(edges).
func (g *Generator) Binned(name, numeric string, edges []float64, meta project.Metadata) (project.CalculatedFeature, error) {
	if len(edges) == 0 {
		return project.CalculatedFeature{}, fmt.Errorf("%w: no bin edges", ErrInvalidInput)
	}
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			return project.CalculatedFeature{}, fmt.Errorf("%w: bin edges must increase", ErrInvalidInput)
		}
	}
	m := measure(numeric)
	var b strings.Builder
	b.WriteString("CASE " + m)
	for i, edge := range edges {
		fmt.Fprintf(&b, " WHEN %s < %s THEN %d", m, num(edge), i)
	}
	fmt.Fprintf(&b, " ELSE %d END", len(edges))
	return g.transform(name, numeric, b.String(), meta)
}
