package schema

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// Catalog is the result of one schema refresh: the dimension, measure and
// hierarchy lookup tables in discovery order. A Catalog is never modified
// after it is built; a refresh produces a new one.
type Catalog struct {
	dimensions  []Dimension
	measures    []Measure
	hierarchies []Hierarchy

	dimIndex     map[string]int
	measureIndex map[string]int
	hierIndex    map[string]int
}

// NewCatalog builds a catalog. A repeated name replaces the earlier entry in place.
func NewCatalog(dims []Dimension, measures []Measure, hierarchies []Hierarchy) *Catalog {
	c := &Catalog{
		dimIndex:     map[string]int{},
		measureIndex: map[string]int{},
		hierIndex:    map[string]int{},
	}
	for _, d := range dims {
		c.dimensions = upsert(c.dimensions, c.dimIndex, d.Name, d)
	}
	for _, m := range measures {
		c.measures = upsert(c.measures, c.measureIndex, m.Name, m)
	}
	for _, h := range hierarchies {
		c.hierarchies = upsert(c.hierarchies, c.hierIndex, h.Name, h)
	}
	return c
}

func upsert[T any](list []T, index map[string]int, name string, v T) []T {
	if i, ok := index[name]; ok {
		list[i] = v
		return list
	}
	index[name] = len(list)
	return append(list, v)
}

// IsCategorical reports whether name is a dimension level.
func (c *Catalog) IsCategorical(name string) bool {
	_, ok := c.dimIndex[name]
	return ok
}

// IsNumeric reports whether name is a measure.
func (c *Catalog) IsNumeric(name string) bool {
	_, ok := c.measureIndex[name]
	return ok
}

// Has reports whether name is a known feature of either kind.
func (c *Catalog) Has(name string) bool {
	return c.IsCategorical(name) || c.IsNumeric(name)
}

// ValidateFeatures fails with ErrUnknownFeature naming the first unknown feature.
func (c *Catalog) ValidateFeatures(names ...string) error {
	for _, name := range names {
		if !c.Has(name) {
			return fmt.Errorf("%w: %q", ErrUnknownFeature, name)
		}
	}
	return nil
}

func (c *Catalog) Dimension(name string) (Dimension, error) {
	i, ok := c.dimIndex[name]
	if !ok {
		return Dimension{}, fmt.Errorf("%w: categorical feature %q", ErrUnknownFeature, name)
	}
	return c.dimensions[i], nil
}

func (c *Catalog) Measure(name string) (Measure, error) {
	i, ok := c.measureIndex[name]
	if !ok {
		return Measure{}, fmt.Errorf("%w: numeric feature %q", ErrUnknownFeature, name)
	}
	return c.measures[i], nil
}

func (c *Catalog) Hierarchy(name string) (Hierarchy, error) {
	i, ok := c.hierIndex[name]
	if !ok {
		return Hierarchy{}, fmt.Errorf("%w: %q", ErrUnknownHierarchy, name)
	}
	return c.hierarchies[i], nil
}

func inFolder(folder, want string) bool {
	return want == "" || folder == want
}

// ListCategorical returns visible level names, optionally limited to a folder.
func (c *Catalog) ListCategorical(folder string) []string {
	var out []string
	for _, d := range c.dimensions {
		if d.Visible && inFolder(d.Folder, folder) {
			out = append(out, d.Name)
		}
	}
	return out
}

func (c *Catalog) listMeasures(folder string, kind MeasureKind) []string {
	var out []string
	for _, m := range c.measures {
		if m.Visible && inFolder(m.Folder, folder) && (kind == "" || m.Kind == kind) {
			out = append(out, m.Name)
		}
	}
	return out
}

// ListNumeric returns visible measure names, optionally limited to a folder.
func (c *Catalog) ListNumeric(folder string) []string {
	return c.listMeasures(folder, "")
}

func (c *Catalog) ListAggregate(folder string) []string {
	return c.listMeasures(folder, MeasureAggregate)
}

func (c *Catalog) ListCalculated(folder string) []string {
	return c.listMeasures(folder, MeasureCalculated)
}

// ListFeatures returns numeric then categorical feature names.
func (c *Catalog) ListFeatures(folder string) []string {
	return append(c.ListNumeric(folder), c.ListCategorical(folder)...)
}

func (c *Catalog) ListHierarchies(folder string) []string {
	var out []string
	for _, h := range c.hierarchies {
		if h.Visible && inFolder(h.Folder, folder) {
			out = append(out, h.Name)
		}
	}
	return out
}

// SortedLevels returns a hierarchy's levels from lowest to highest level number.
func (c *Catalog) SortedLevels(hierarchy string) ([]Level, error) {
	h, err := c.Hierarchy(hierarchy)
	if err != nil {
		return nil, err
	}
	levels := slices.Clone(h.Levels)
	sort.SliceStable(levels, func(i, j int) bool {
		a, b := levels[i], levels[j]
		if a.Number != b.Number {
			return a.Number < b.Number
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Type < b.Type
	})
	return levels, nil
}

// ListLevels returns a hierarchy's level names from lowest to highest level number.
func (c *Catalog) ListLevels(hierarchy string) ([]string, error) {
	levels, err := c.SortedLevels(hierarchy)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(levels))
	for _, l := range levels {
		out = append(out, l.Name)
	}
	return out, nil
}

// Describe returns the metadata of a feature of either kind.
func (c *Catalog) Describe(name string) (FeatureInfo, error) {
	if i, ok := c.measureIndex[name]; ok {
		m := c.measures[i]
		return FeatureInfo{Name: m.Name, Kind: Numeric, Description: m.Description, Caption: m.Caption, Folder: m.Folder, Visible: m.Visible}, nil
	}
	if i, ok := c.dimIndex[name]; ok {
		d := c.dimensions[i]
		return FeatureInfo{Name: d.Name, Kind: Categorical, Description: d.Description, Caption: d.Caption, Folder: d.Folder, Visible: d.Visible}, nil
	}
	return FeatureInfo{}, fmt.Errorf("%w: %q", ErrUnknownFeature, name)
}

// FeatureDescription returns a feature's description or a placeholder when it has none.
func (c *Catalog) FeatureDescription(name string) (string, error) {
	info, err := c.Describe(name)
	if err != nil {
		return "", err
	}
	if info.Description == "" {
		return fmt.Sprintf("No Description for Feature: '%s'", name), nil
	}
	return info.Description, nil
}

func (c *Catalog) HierarchyDescription(name string) (string, error) {
	h, err := c.Hierarchy(name)
	if err != nil {
		return "", err
	}
	if h.Description == "" {
		return fmt.Sprintf("No Description for Hierarchy: '%s'", name), nil
	}
	return h.Description, nil
}

// HierarchyDimension returns the dimension owning a hierarchy.
func (c *Catalog) HierarchyDimension(name string) (string, error) {
	h, err := c.Hierarchy(name)
	if err != nil {
		return "", err
	}
	return h.Dimension, nil
}

// CheckTimeHierarchy verifies the hierarchy is a time hierarchy and, when level is set, that it contains level.
func (c *Catalog) CheckTimeHierarchy(hierarchy, level string) error {
	h, err := c.Hierarchy(hierarchy)
	if err != nil {
		return err
	}
	if h.Kind != HierarchyTime {
		return fmt.Errorf("%w: %q is not a time hierarchy", ErrUnknownHierarchy, hierarchy)
	}
	if level == "" {
		return nil
	}
	for _, l := range h.Levels {
		if l.Name == level {
			return nil
		}
	}
	return fmt.Errorf("%w: level %q not in hierarchy %q", ErrUnknownHierarchy, level, hierarchy)
}

// LevelType returns the granularity of a level in a time hierarchy.
func (c *Catalog) LevelType(hierarchy, level string) (LevelType, error) {
	if err := c.CheckTimeHierarchy(hierarchy, level); err != nil {
		return "", err
	}
	d, err := c.Dimension(level)
	if err != nil || d.Hierarchy != hierarchy {
		return "", fmt.Errorf("%w: level %q not in hierarchy %q", ErrUnknownHierarchy, level, hierarchy)
	}
	return d.LevelType, nil
}

// ListFolders returns the sorted set of non-empty folders.
func (c *Catalog) ListFolders() []string {
	set := map[string]struct{}{}
	for _, h := range c.hierarchies {
		set[h.Folder] = struct{}{}
	}
	for _, m := range c.measures {
		set[m.Folder] = struct{}{}
	}
	for _, d := range c.dimensions {
		set[d.Folder] = struct{}{}
	}
	delete(set, "")
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Dimensions returns a copy of the level table.
func (c *Catalog) Dimensions() []Dimension { return slices.Clone(c.dimensions) }

// Measures returns a copy of the measure table.
func (c *Catalog) Measures() []Measure { return slices.Clone(c.measures) }

// Hierarchies returns a copy of the hierarchy table.
func (c *Catalog) Hierarchies() []Hierarchy { return slices.Clone(c.hierarchies) }

// MarshalJSON renders the three tables in discovery order.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Dimensions  []Dimension `json:"dimensions"`
		Measures    []Measure   `json:"measures"`
		Hierarchies []Hierarchy `json:"hierarchies"`
	}{c.dimensions, c.measures, c.hierarchies})
}
