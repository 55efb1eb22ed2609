package schema

// LevelType is the granularity of a dimension level.
type LevelType string

const (
	LevelStandard       LevelType = "Standard"
	LevelTimeYears      LevelType = "TimeYears"
	LevelTimeHalfYears  LevelType = "TimeHalfYears"
	LevelTimeQuarters   LevelType = "TimeQuarters"
	LevelTimeTrimesters LevelType = "TimeTrimesters"
	LevelTimeMonths     LevelType = "TimeMonths"
	LevelTimeWeeks      LevelType = "TimeWeeks"
	LevelTimeDays       LevelType = "TimeDays"
	LevelTimeHours      LevelType = "TimeHours"
	LevelTimeMinutes    LevelType = "TimeMinutes"
	LevelTimeSeconds    LevelType = "TimeSeconds"
	LevelUndefined      LevelType = "Undefined"
)

// levelTypeCodes maps the LEVEL_TYPE codes reported by schema discovery.
var levelTypeCodes = map[string]LevelType{
	"0":    LevelStandard,
	"20":   LevelTimeYears,
	"36":   LevelTimeHalfYears,
	"68":   LevelTimeQuarters,
	"4722": LevelTimeTrimesters,
	"132":  LevelTimeMonths,
	"260":  LevelTimeWeeks,
	"516":  LevelTimeDays,
	"772":  LevelTimeHours,
	"1028": LevelTimeMinutes,
	"2052": LevelTimeSeconds,
	"4100": LevelUndefined,
}

var timeSteps = map[LevelType][]int{
	LevelTimeSeconds:    {1, 60},
	LevelTimeMinutes:    {1, 60},
	LevelTimeHours:      {1, 12, 24},
	LevelTimeDays:       {1, 7, 28},
	LevelTimeWeeks:      {1, 4},
	LevelTimeMonths:     {1, 3, 6, 12},
	LevelTimeQuarters:   {1, 4},
	LevelTimeTrimesters: {1, 3},
	LevelTimeHalfYears:  {1, 2},
	LevelTimeYears:      {1, 2},
}

var timeUnits = map[LevelType]string{
	LevelTimeSeconds:    "second",
	LevelTimeMinutes:    "minute",
	LevelTimeHours:      "hour",
	LevelTimeDays:       "day",
	LevelTimeWeeks:      "week",
	LevelTimeMonths:     "month",
	LevelTimeQuarters:   "quarter",
	LevelTimeTrimesters: "trimester",
	LevelTimeHalfYears:  "halfyear",
	LevelTimeYears:      "year",
}

// IsTime reports whether the level type is one of the time granularities.
func (t LevelType) IsTime() bool {
	_, ok := timeSteps[t]
	return ok
}

// TimeSteps returns the customary rolling intervals for a time granularity.
func (t LevelType) TimeSteps() []int {
	steps := timeSteps[t]
	out := make([]int, len(steps))
	copy(out, steps)
	return out
}

// Unit returns the singular lower-case unit name, e.g. "month" for TimeMonths.
func (t LevelType) Unit() string {
	return timeUnits[t]
}

// HierarchyKind classifies a hierarchy by its dimension type.
type HierarchyKind string

const (
	HierarchyTime     HierarchyKind = "Time"
	HierarchyStandard HierarchyKind = "Standard"
	HierarchyUnknown  HierarchyKind = "Unknown"
)

// MeasureKind distinguishes column-backed from expression-backed measures.
type MeasureKind string

const (
	MeasureAggregate  MeasureKind = "Aggregate"
	MeasureCalculated MeasureKind = "Calculated"
)

// calculatedAggregator is the MEASURE_AGGREGATOR code of calculated measures.
const calculatedAggregator = "9"

// Dimension is a queryable dimension level, keyed by level name.
type Dimension struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Caption     string    `json:"caption"`
	Visible     bool      `json:"visible"`
	LevelNumber int       `json:"level_number"`
	LevelType   LevelType `json:"level_type"`
	Hierarchy   string    `json:"hierarchy"`
	Dimension   string    `json:"dimension"`
	Folder      string    `json:"folder"`
}

// Measure is a queryable measure, keyed by name.
type Measure struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Caption     string      `json:"caption"`
	Folder      string      `json:"folder"`
	Visible     bool        `json:"visible"`
	Kind        MeasureKind `json:"kind"`
}

// Level is a level reference inside a hierarchy.
type Level struct {
	Number int       `json:"number"`
	Name   string    `json:"name"`
	Type   LevelType `json:"type"`
}

// Hierarchy is a drill path of levels within a dimension.
type Hierarchy struct {
	Name        string        `json:"name"`
	Dimension   string        `json:"dimension"`
	Description string        `json:"description"`
	Caption     string        `json:"caption"`
	Folder      string        `json:"folder"`
	Visible     bool          `json:"visible"`
	Kind        HierarchyKind `json:"kind"`
	Levels      []Level       `json:"levels"`
}

// FeatureKind classifies a feature for query building.
type FeatureKind string

const (
	Categorical FeatureKind = "categorical"
	Numeric     FeatureKind = "numeric"
)

// FeatureInfo describes a feature of either namespace.
type FeatureInfo struct {
	Name        string      `json:"name"`
	Kind        FeatureKind `json:"kind"`
	Description string      `json:"description"`
	Caption     string      `json:"caption"`
	Folder      string      `json:"folder"`
	Visible     bool        `json:"visible"`
}
