package project

import (
	"fmt"
	"slices"
	"strings"
)

const calculatedMemberSpace = "http://www.atscale.com/xsd/project_2_0"

var (
	aggregations = []string{"SUM", "AVG", "MAX", "MIN", "DC", "DCE", "NDC", "STDDEV_SAMP", "STDDEV_POP", "VAR_SAMP", "VAR_POP"}

	measureNamedFormats    = []string{"None", "General Number", "Standard", "Scientific"}
	calculatedNamedFormats = []string{"None", "General Number", "Standard", "Scientific", "Fixed", "Percent"}

	keyTerminators   = []string{":", "=", "^"}
	fieldTerminators = []string{",", ";", "|"}
	mapDataTypes     = []string{"Int", "Long", "Boolean", "String", "Float", "Double", "Integer", "Decimal", "DateTime", "Date"}
)

const defaultFormat = "General Number"

// formatting classifies a format as a named format or a custom format string.
func formatting(format string, named []string) map[string]any {
	if format == "" {
		format = defaultFormat
	}
	if slices.Contains(named, format) {
		return map[string]any{"named-format": format}
	}
	return map[string]any{"format-string": format}
}

func normalizeAggregation(agg string) (string, error) {
	upper := strings.ToUpper(agg)
	if !slices.Contains(aggregations, upper) {
		return "", fmt.Errorf("%w: aggregation %q, valid options are %s", ErrInvalidInput, agg, strings.Join(aggregations, ", "))
	}
	return upper, nil
}

func checkOneOf(kind, value string, valid []string) error {
	if !slices.Contains(valid, value) {
		return fmt.Errorf("%w: %s %q, valid options are %s", ErrInvalidInput, kind, value, strings.Join(valid, " "))
	}
	return nil
}

func measureAttribute(id string, f AggregateFeature, aggregation string) map[string]any {
	return map[string]any{
		"id":   id,
		"name": f.Name,
		"properties": map[string]any{
			"caption":     f.Caption,
			"description": f.Description,
			"folder":      f.Folder,
			"formatting":  formatting(f.Format, measureNamedFormats),
			"type":        map[string]any{"measure": map[string]any{"default-aggregation": aggregation}},
			"visible":     true,
		},
	}
}

func columnRef(id, column string, complete any) map[string]any {
	return map[string]any{"column": []any{column}, "complete": complete, "id": id}
}

func calculatedMember(id string, f CalculatedFeature) map[string]any {
	return map[string]any{
		"id":         id,
		"name":       f.Name,
		"expression": f.Expression,
		"properties": map[string]any{
			"caption":     f.Caption,
			"description": f.Description,
			"folder":      f.Folder,
			"formatting":  formatting(f.Format, calculatedNamedFormats),
			"visible":     true,
		},
	}
}

func calculatedMemberRef(id string) map[string]any {
	return map[string]any{
		"id":      id,
		"XMLName": map[string]any{"Local": "calculated-member-ref", "Space": calculatedMemberSpace},
	}
}

func denormalizedDimension(ids categoricalIDs, f CategoricalFeature) map[string]any {
	return map[string]any{
		"hierarchy": []any{map[string]any{
			"id": ids.hierarchy,
			"level": []any{map[string]any{
				"id":                ids.level,
				"primary-attribute": ids.attribute,
				"properties":        map[string]any{"unique-in-parent": false, "visible": true},
			}},
			"name": f.Name,
			"properties": map[string]any{
				"folder":         f.Folder,
				"caption":        f.Caption,
				"description":    f.Description,
				"default-member": map[string]any{"all-member": map[string]any{}},
				"filter-empty":   "Always",
				"visible":        true,
			},
		}},
		"id":         ids.dimension,
		"name":       f.Caption,
		"properties": map[string]any{"visible": true},
	}
}

func keyedAttribute(id, keyRef string, m Metadata, name string, withFolder bool) map[string]any {
	props := map[string]any{
		"description": m.Description,
		"caption":     m.Caption,
		"type":        map[string]any{"enum": map[string]any{}},
		"visible":     true,
	}
	if withFolder {
		props["folder"] = m.Folder
	}
	return map[string]any{"id": id, "key-ref": keyRef, "name": name, "properties": props}
}

func attributeKey(id string) map[string]any {
	return map[string]any{"id": id, "properties": map[string]any{"columns": 1, "visible": true}}
}

func keyRef(id, column string, complete string) map[string]any {
	return map[string]any{"column": []any{column}, "complete": complete, "id": id, "unique": false}
}

func calculatedColumn(name, expression, dataType string) map[string]any {
	return map[string]any{
		"name": name,
		"sqls": []any{map[string]any{"expression": expression}},
		"type": map[string]any{"data-type": dataType},
	}
}

func physicalColumn(id, name, dataType string) map[string]any {
	return map[string]any{"id": id, "name": name, "type": map[string]any{"data-type": dataType}}
}

func mapColumn(cols []any, m MappedColumns) map[string]any {
	return map[string]any{
		"columns": map[string]any{"columns": cols},
		"delimited": map[string]any{
			"field-terminator": m.FieldTerminator,
			"key-terminator":   m.KeyTerminator,
			"prefixed":         m.Prefixed,
		},
		"map-key":   map[string]any{"type": m.KeyType},
		"map-value": map[string]any{"type": m.ValueType},
		"name":      m.Column,
	}
}

func joinedDataset(id string, j Join, columns []any) map[string]any {
	table := map[string]any{"schema": j.Schema, "name": j.Table}
	if j.Database != "" {
		table["database"] = j.Database
	}
	return map[string]any{
		"id":   id,
		"name": j.Table,
		"properties": map[string]any{
			"allow-aggregates":       true,
			"aggregate-locality":     nil,
			"aggregate-destinations": nil,
		},
		"physical": map[string]any{
			"connection": map[string]any{"id": j.ConnectionID},
			"tables":     []any{table},
			"immutable":  false,
			"columns":    columns,
		},
		"logical": map[string]any{},
	}
}

func joinedDatasetRef(id string, keyRefs, attributeRefs []any) map[string]any {
	return map[string]any{
		"id": id,
		"properties": map[string]any{
			"allow-aggregates":        true,
			"create-hinted-aggregate": false,
			"aggregate-destinations":  nil,
		},
		"logical": map[string]any{"key-ref": keyRefs, "attribute-ref": attributeRefs},
	}
}
