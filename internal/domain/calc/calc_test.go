package calc_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rpggio/cubelink/internal/domain/calc"
	"github.com/rpggio/cubelink/internal/domain/project"
	"github.com/rpggio/cubelink/internal/domain/schema"
	"github.com/rpggio/cubelink/internal/testserver"
	"github.com/stretchr/testify/require"
)

type discoverFunc func(ctx context.Context, envelope []byte) ([]byte, error)

func (f discoverFunc) Discover(ctx context.Context, envelope []byte) ([]byte, error) {
	return f(ctx, envelope)
}

func generator(t *testing.T) *calc.Generator {
	t.Helper()
	d := discoverFunc(func(_ context.Context, envelope []byte) ([]byte, error) {
		resp, ok := testserver.DiscoveryResponse(string(envelope))
		if !ok {
			return nil, errors.New("unexpected statement")
		}
		return []byte(resp), nil
	})
	catalog, err := schema.NewService(d, nil).Refresh(context.Background(), "Sales Project", "Sales")
	require.NoError(t, err)
	return calc.New(catalog)
}

var (
	days = calc.TimeLevel{Hierarchy: "Calendar", Level: "Day"}
	meta = project.Metadata{Folder: "Derived"}
)

const path = "[Date Dimension].[Calendar]"

func TestRolling(t *testing.T) {
	g := generator(t)
	f, err := g.Rolling(calc.RollingAvg, "sales_7d", "sales", 7, days, meta)
	require.NoError(t, err)
	require.Equal(t, "sales_7d", f.Name)
	require.Equal(t, "Derived", f.Folder)
	require.Equal(t,
		"Avg(ParallelPeriod("+path+".[Day], 6, "+path+".CurrentMember):"+path+".CurrentMember, [Measures].[sales])",
		f.Expression)
}

func TestLagDiffPercentChange(t *testing.T) {
	g := generator(t)
	pp := "ParallelPeriod(" + path + ".[Month], 2, " + path + ".CurrentMember)"
	month := calc.TimeLevel{Hierarchy: "Calendar", Level: "Month"}

	lag, err := g.Lag("lag", "sales", 2, month, meta)
	require.NoError(t, err)
	require.Equal(t, "("+pp+",[Measures].[sales])", lag.Expression)

	diff, err := g.Diff("diff", "sales", 2, month, meta)
	require.NoError(t, err)
	earlier := "(" + pp + ", [Measures].[sales])"
	require.Equal(t, "CASE WHEN IsEmpty("+earlier+") THEN 0 ELSE ([Measures].[sales]-"+earlier+") END", diff.Expression)

	pct, err := g.PercentChange("pct", "sales", 2, month, meta)
	require.NoError(t, err)
	require.Equal(t, "CASE WHEN IsEmpty("+earlier+") THEN 0 ELSE ([Measures].[sales]/"+earlier+" - 1) END", pct.Expression)
}

func TestWindowValidation(t *testing.T) {
	g := generator(t)

	_, err := g.Rolling(calc.RollingSum, "x", "sales", 0, days, meta)
	require.ErrorIs(t, err, calc.ErrInvalidInput)
	_, err = g.Lag("x", "sales", -1, days, meta)
	require.ErrorIs(t, err, calc.ErrInvalidInput)
	_, err = g.Rolling("Median", "x", "sales", 3, days, meta)
	require.ErrorIs(t, err, calc.ErrInvalidInput)

	_, err = g.Diff("x", "Country", 1, days, meta)
	require.ErrorIs(t, err, schema.ErrUnknownFeature)

	_, err = g.Lag("x", "sales", 1, calc.TimeLevel{Hierarchy: "Location", Level: "City"}, meta)
	require.ErrorIs(t, err, schema.ErrUnknownHierarchy)
	_, err = g.Lag("x", "sales", 1, calc.TimeLevel{Hierarchy: "Calendar", Level: "City"}, meta)
	require.ErrorIs(t, err, schema.ErrUnknownHierarchy)
}

func TestPeriodsToDate(t *testing.T) {
	g := generator(t)
	features, err := g.PeriodsToDate("sales", "Calendar", meta)
	require.NoError(t, err)
	require.Len(t, features, 2)
	require.Equal(t, "sales_Year_To_Day", features[0].Name)
	require.Equal(t, "sales_Month_To_Day", features[1].Name)
	require.Equal(t,
		"CASE WHEN IsEmpty([Measures].[sales]) THEN NULL ELSE Sum(PeriodsToDate("+path+".[Month], "+path+".CurrentMember), [Measures].[sales]) END",
		features[1].Expression)

	_, err = g.PeriodsToDate("sales", "Location", meta)
	require.ErrorIs(t, err, schema.ErrUnknownHierarchy)
}

func TestPercentages(t *testing.T) {
	g := generator(t)
	features, err := g.Percentages("sales", "Calendar", meta)
	require.NoError(t, err)

	names := make([]string, len(features))
	for i, f := range features {
		names[i] = f.Name
	}
	require.Equal(t, []string{"Year%Month", "Year%Day", "Month%Day"}, names)
	tuple := "([Measures].[sales], [Date Dimension].[Calendar].CurrentMember.Parent.Parent)"
	require.Equal(t, "IIF( "+tuple+" = 0, NULL, [Measures].[sales] / "+tuple+" )", features[1].Expression)

	_, err = g.Percentages("sales", "Nope", meta)
	require.ErrorIs(t, err, schema.ErrUnknownHierarchy)
	_, err = g.Percentages("City", "Location", meta)
	require.ErrorIs(t, err, schema.ErrUnknownFeature)
}

func TestRollingStatsDefaultsToTimeSteps(t *testing.T) {
	g := generator(t)
	features, err := g.RollingStats([]string{"sales"}, days, nil, meta)
	require.NoError(t, err)

	names := make([]string, len(features))
	for i, f := range features {
		names[i] = f.Name
	}
	require.Equal(t, []string{
		"sales_1_day_lag",
		"sales_7_day_min", "sales_7_day_max", "sales_7_day_avg", "sales_7_day_sum", "sales_7_day_stddev", "sales_7_day_lag",
		"sales_28_day_min", "sales_28_day_max", "sales_28_day_avg", "sales_28_day_sum", "sales_28_day_stddev", "sales_28_day_lag",
	}, names)
}

func TestRollingStatsValidation(t *testing.T) {
	g := generator(t)
	_, err := g.RollingStats([]string{"sales"}, days, []int{3, 0}, meta)
	require.ErrorIs(t, err, calc.ErrInvalidInput)
	_, err = g.RollingStats([]string{"sales", "Country"}, days, nil, meta)
	require.ErrorIs(t, err, schema.ErrUnknownFeature)
	_, err = g.RollingStats(nil, days, nil, meta)
	require.ErrorIs(t, err, calc.ErrInvalidInput)
}

func TestScalers(t *testing.T) {
	g := generator(t)
	m := "[Measures].[sales]"
	cases := []struct {
		name string
		gen  func() (project.CalculatedFeature, error)
		want string
	}{
		{"minmax", func() (project.CalculatedFeature, error) { return g.MinMaxScaled("s", "sales", 10, 20, 0, 1, meta) },
			"((" + m + " - 10)/(20-10))*(1-0) +0"},
		{"standard", func() (project.CalculatedFeature, error) { return g.StandardScaled("s", "sales", 1.5, 2, meta) },
			"(" + m + " - 1.5) / 2"},
		{"maxabs", func() (project.CalculatedFeature, error) { return g.MaxAbsScaled("s", "sales", -4, meta) },
			m + " / 4"},
		{"robust", func() (project.CalculatedFeature, error) { return g.RobustScaled("s", "sales", 3, 0.25, meta) },
			"(" + m + " - 3) / 0.25"},
		{"log", func() (project.CalculatedFeature, error) { return g.LogTransformed("s", "sales", meta) },
			"log(" + m + ")"},
		{"unit", func() (project.CalculatedFeature, error) { return g.UnitVectorNormalized("s", "sales", 12.5, meta) },
			m + "/12.5"},
		{"binned", func() (project.CalculatedFeature, error) { return g.Binned("s", "sales", []float64{10, 100}, meta) },
			"CASE " + m + " WHEN " + m + " < 10 THEN 0 WHEN " + m + " < 100 THEN 1 ELSE 2 END"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := tc.gen()
			require.NoError(t, err)
			require.Equal(t, tc.want, f.Expression)
		})
	}
}

func TestScalersRejectDegenerateInput(t *testing.T) {
	g := generator(t)
	_, err := g.MinMaxScaled("s", "sales", 5, 5, 0, 1, meta)
	require.ErrorIs(t, err, calc.ErrInvalidInput)
	_, err = g.StandardScaled("s", "sales", 0, 0, meta)
	require.ErrorIs(t, err, calc.ErrInvalidInput)
	_, err = g.Binned("s", "sales", []float64{5, 1}, meta)
	require.ErrorIs(t, err, calc.ErrInvalidInput)
	_, err = g.Binned("s", "sales", nil, meta)
	require.ErrorIs(t, err, calc.ErrInvalidInput)
	_, err = g.LogTransformed("s", "Country", meta)
	require.ErrorIs(t, err, schema.ErrUnknownFeature)
}

func TestPowerTransformed(t *testing.T) {
	g := generator(t)
	m := "[Measures].[sales]"

	f, err := g.PowerTransformed("p", "sales", 0.5, calc.YeoJohnson, meta)
	require.NoError(t, err)
	require.Equal(t, "IIF("+m+"<0, (-1*((((-1*"+m+")+1)^(2-0.5))-1))/(2-0.5), ((("+m+"+1)^0.5)-1)/0.5)", f.Expression)

	f, err = g.PowerTransformed("p", "sales", 0, "Yeo-Johnson", meta)
	require.NoError(t, err)
	require.Contains(t, f.Expression, "log("+m+"+1)")

	f, err = g.PowerTransformed("p", "sales", 2, calc.YeoJohnson, meta)
	require.NoError(t, err)
	require.Contains(t, f.Expression, "(-1*log((-1*"+m+")+1))")

	f, err = g.PowerTransformed("p", "sales", 0, calc.BoxCox, meta)
	require.NoError(t, err)
	require.Equal(t, "log("+m+")", f.Expression)

	f, err = g.PowerTransformed("p", "sales", 3, calc.BoxCox, meta)
	require.NoError(t, err)
	require.Equal(t, "(("+m+"^3)-1)/3", f.Expression)

	_, err = g.PowerTransformed("p", "sales", 1, "quantile", meta)
	require.ErrorIs(t, err, calc.ErrInvalidInput)
}
