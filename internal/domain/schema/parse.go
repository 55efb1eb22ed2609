package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rpggio/cubelink/internal/tagtext"
)

// rowReader pulls fields out of one discovery row and remembers the first failure.
type rowReader struct {
	row   tagtext.Fragment
	index int
	err   error
}

func (r *rowReader) required(tag string) string {
	if r.err != nil {
		return ""
	}
	v, err := r.row.Required(tag)
	if err != nil {
		r.err = fmt.Errorf("%w: row %d: %w", ErrSchemaParse, r.index, err)
	}
	return v
}

func (r *rowReader) optional(tag string) string {
	if r.err != nil {
		return ""
	}
	v, err := r.row.Optional(tag)
	if err != nil {
		r.err = fmt.Errorf("%w: row %d: %w", ErrSchemaParse, r.index, err)
	}
	return v
}

func (r *rowReader) boolean(tag string) bool {
	v := r.required(tag)
	if r.err != nil {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		r.err = fmt.Errorf("%w: row %d: <%s> is not a boolean: %q", ErrSchemaParse, r.index, tag, v)
	}
	return b
}

func (r *rowReader) integer(tag string) int {
	v := r.required(tag)
	if r.err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.err = fmt.Errorf("%w: row %d: <%s> is not an integer: %q", ErrSchemaParse, r.index, tag, v)
	}
	return n
}

func (r *rowReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: row %d: %s", ErrSchemaParse, r.index, fmt.Sprintf(format, args...))
	}
}

func rows(text []byte) ([]tagtext.Fragment, error) {
	out, err := tagtext.Fragment(text).All("row")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaParse, err)
	}
	return out, nil
}

// parseLevels reads mdschema_levels rows. Folders are assigned later from the owning hierarchy.
func parseLevels(text []byte) ([]Dimension, error) {
	frags, err := rows(text)
	if err != nil {
		return nil, err
	}
	out := make([]Dimension, 0, len(frags))
	for i, frag := range frags {
		r := &rowReader{row: frag, index: i}
		d := Dimension{
			Name:        r.required("LEVEL_NAME"),
			Description: r.optional("DESCRIPTION"),
			Caption:     r.optional("LEVEL_CAPTION"),
			Visible:     r.boolean("LEVEL_IS_VISIBLE"),
			LevelNumber: r.integer("LEVEL_NUMBER"),
		}
		code := r.required("LEVEL_TYPE")
		if r.err == nil {
			lt, ok := levelTypeCodes[strings.TrimSpace(code)]
			if !ok {
				r.fail("unknown level type code %q", code)
			}
			d.LevelType = lt
		}
		unique := r.required("HIERARCHY_UNIQUE_NAME")
		if r.err == nil {
			dim, hier, ok := splitUniqueName(unique)
			if !ok {
				r.fail("malformed hierarchy unique name %q", unique)
			}
			d.Dimension, d.Hierarchy = dim, hier
		}
		if r.err != nil {
			return nil, r.err
		}
		out = append(out, d)
	}
	return out, nil
}

// splitUniqueName splits "[dimension].[hierarchy]".
func splitUniqueName(unique string) (dimension, hierarchy string, ok bool) {
	left, right, found := strings.Cut(unique, "].[")
	if !found || !strings.HasPrefix(left, "[") || !strings.HasSuffix(right, "]") {
		return "", "", false
	}
	return left[1:], right[:len(right)-1], true
}

func parseMeasures(text []byte) ([]Measure, error) {
	frags, err := rows(text)
	if err != nil {
		return nil, err
	}
	out := make([]Measure, 0, len(frags))
	for i, frag := range frags {
		r := &rowReader{row: frag, index: i}
		m := Measure{
			Name:        r.required("MEASURE_NAME"),
			Description: r.optional("DESCRIPTION"),
			Caption:     r.optional("MEASURE_CAPTION"),
			Folder:      r.optional("MEASURE_DISPLAY_FOLDER"),
			Visible:     r.boolean("MEASURE_IS_VISIBLE"),
			Kind:        MeasureAggregate,
		}
		if strings.TrimSpace(r.required("MEASURE_AGGREGATOR")) == calculatedAggregator {
			m.Kind = MeasureCalculated
		}
		if r.err != nil {
			return nil, r.err
		}
		out = append(out, m)
	}
	return out, nil
}

// parseHierarchies reads mdschema_hierarchies rows, attaching levels from dims by
// hierarchy name and back-filling each level's folder. Only structure "1"
// hierarchies are returned; degenerate ones still assign folders. A level name
// reported more than once belongs to its last row only, as in the catalog.
func parseHierarchies(text []byte, dims []Dimension) ([]Hierarchy, error) {
	frags, err := rows(text)
	if err != nil {
		return nil, err
	}
	last := make(map[string]int, len(dims))
	for j, d := range dims {
		last[d.Name] = j
	}
	out := make([]Hierarchy, 0, len(frags))
	for i, frag := range frags {
		r := &rowReader{row: frag, index: i}
		structure := strings.TrimSpace(r.required("STRUCTURE"))
		h := Hierarchy{
			Name:        r.required("HIERARCHY_NAME"),
			Dimension:   strings.Trim(r.optional("DIMENSION_UNIQUE_NAME"), "[]"),
			Description: r.optional("DESCRIPTION"),
			Caption:     r.optional("HIERARCHY_CAPTION"),
			Folder:      r.optional("HIERARCHY_DISPLAY_FOLDER"),
			Visible:     r.boolean("DIMENSION_IS_VISIBLE"),
		}
		switch strings.TrimSpace(r.required("DIMENSION_TYPE")) {
		case "1":
			h.Kind = HierarchyTime
		case "3":
			h.Kind = HierarchyStandard
		default:
			h.Kind = HierarchyUnknown
		}
		if r.err != nil {
			return nil, r.err
		}

		h.Levels = []Level{}
		for j := range dims {
			if dims[j].Hierarchy != h.Name || last[dims[j].Name] != j {
				continue
			}
			h.Levels = append(h.Levels, Level{Number: dims[j].LevelNumber, Name: dims[j].Name, Type: dims[j].LevelType})
			dims[j].Folder = h.Folder
		}
		if structure == "1" {
			out = append(out, h)
		}
	}
	return out, nil
}
