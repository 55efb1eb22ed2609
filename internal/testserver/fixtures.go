package testserver

import (
	"fmt"
	"strings"
)

// Field is one tag of a discovery row.
type Field struct {
	Tag, Value string
}

// Row renders a discovery <row> fragment with the fields in order.
func Row(fields ...Field) string {
	var b strings.Builder
	b.WriteString("<row>")
	for _, f := range fields {
		fmt.Fprintf(&b, "<%s>%s</%s>", f.Tag, f.Value, f.Tag)
	}
	b.WriteString("</row>")
	return b.String()
}

// Rowset wraps rows the way the discovery endpoint does.
func Rowset(rows ...string) string {
	return `<?xml version="1.0"?><soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>` +
		`<ExecuteResponse xmlns="urn:schemas-microsoft-com:xml-analysis"><return>` +
		`<root xmlns="urn:schemas-microsoft-com:xml-analysis:rowset"><xsd:schema/>` +
		strings.Join(rows, "\n") +
		`</root></return></ExecuteResponse></soap:Body></soap:Envelope>`
}

// LevelRow is a mdschema_levels row.
func LevelRow(name, uniqueHierarchy string, number int, typeCode string, visible bool) string {
	return Row(
		Field{"HIERARCHY_UNIQUE_NAME", uniqueHierarchy},
		Field{"LEVEL_NUMBER", fmt.Sprint(number)},
		Field{"LEVEL_CAPTION", name},
		Field{"LEVEL_NAME", name},
		Field{"LEVEL_IS_VISIBLE", fmt.Sprint(visible)},
		Field{"LEVEL_TYPE", typeCode},
	)
}

// HierarchyRow is a mdschema_hierarchies row.
func HierarchyRow(name, dimension, dimType, structure, folder string) string {
	return Row(
		Field{"DIMENSION_UNIQUE_NAME", "[" + dimension + "]"},
		Field{"HIERARCHY_NAME", name},
		Field{"HIERARCHY_CAPTION", name},
		Field{"DIMENSION_TYPE", dimType},
		Field{"STRUCTURE", structure},
		Field{"DIMENSION_IS_VISIBLE", "true"},
		Field{"HIERARCHY_DISPLAY_FOLDER", folder},
	)
}

// MeasureRow is a MDSCHEMA_MEASURES row.
func MeasureRow(name, aggregator, folder, description string, visible bool) string {
	fields := []Field{
		{"MEASURE_NAME", name},
		{"MEASURE_CAPTION", name},
		{"MEASURE_AGGREGATOR", aggregator},
		{"MEASURE_IS_VISIBLE", fmt.Sprint(visible)},
		{"MEASURE_DISPLAY_FOLDER", folder},
	}
	if description != "" {
		fields = append(fields, Field{"DESCRIPTION", description})
	}
	return Row(fields...)
}

// Sales model discovery responses: a Calendar time hierarchy, a Location
// hierarchy, a degenerate Color hierarchy and three measures.
var (
	SalesLevels = Rowset(
		LevelRow("Year", "[Date Dimension].[Calendar]", 1, "20", true),
		LevelRow("Month", "[Date Dimension].[Calendar]", 2, "132", true),
		LevelRow("Day", "[Date Dimension].[Calendar]", 3, "516", true),
		LevelRow("Country", "[Geo].[Location]", 1, "0", true),
		LevelRow("City", "[Geo].[Location]", 2, "0", true),
		LevelRow("Color", "[Product].[Color Attr]", 1, "0", true),
	)
	SalesHierarchies = Rowset(
		HierarchyRow("Calendar", "Date Dimension", "1", "1", "Time"),
		HierarchyRow("Location", "Geo", "3", "1", "Geography"),
		HierarchyRow("Color Attr", "Product", "3", "2", "Product"),
	)
	SalesMeasures = Rowset(
		MeasureRow("sales", "1", "Revenue", "Gross sales", true),
		MeasureRow("profit_ratio", "9", "Revenue", "", true),
		MeasureRow("hidden_cost", "1", "", "", false),
	)
)

// DiscoveryResponse picks the canned Sales response for a discovery envelope.
func DiscoveryResponse(envelope string) (string, bool) {
	switch {
	case strings.Contains(envelope, "mdschema_levels"):
		return SalesLevels, true
	case strings.Contains(envelope, "MDSCHEMA_HIERARCHIES"):
		return SalesHierarchies, true
	case strings.Contains(envelope, "MDSCHEMA_MEASURES"):
		return SalesMeasures, true
	}
	return "", false
}

// QueryResult renders a successful query execution response.
func QueryResult(names []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString("<response><succeeded>true</succeeded><columns>")
	for _, n := range names {
		fmt.Fprintf(&b, "<column><name>%s</name><type>string</type></column>", n)
	}
	b.WriteString("</columns><data>")
	for _, row := range rows {
		b.WriteString("<row>")
		for _, cell := range row {
			fmt.Fprintf(&b, "<column>%s</column>", cell)
		}
		b.WriteString("</row>")
	}
	b.WriteString("</data></response>")
	return b.String()
}

// QueryFailure renders a failed query execution response.
func QueryFailure(message string) string {
	return "<response><succeeded>false</succeeded><error-message>" + message + "</error-message></response>"
}

// SalesProject is the project document behind the Sales model. Country is
// a project-level attribute of the Location hierarchy, City and Color are
// cube-level.
const SalesProject = `{
  "id": "proj-sales",
  "name": "Sales Project",
  "properties": {"caption": "Sales Project"},
  "datasets": {"data-set": [{
    "id": "ds-sales",
    "name": "sales_fact",
    "physical": {
      "connection": {"id": "conn-dw"},
      "tables": [{"name": "SALES_FACT", "schema": "public", "database": "dw"}],
      "immutable": false,
      "columns": [
        {"id": "col-amount", "name": "amount", "type": {"data-type": "Decimal"}},
        {"id": "col-region", "name": "region", "type": {"data-type": "String"}},
        {"id": "col-attrs", "name": "attrs", "type": {"data-type": "String"}},
        {"name": "amount_x2", "sqls": [{"expression": "amount * 2"}], "type": {"data-type": "Decimal"}}
      ],
      "map-column": [{"name": "attrs", "columns": {"columns": [{"id": "mc-size", "name": "size", "type": {"data-type": "Int"}}]}}]
    },
    "logical": {"key-ref": [], "attribute-ref": []},
    "properties": {"allow-aggregates": true}
  }]},
  "attributes": {"keyed-attribute": [{"id": "ka-country", "name": "Country", "key-ref": "kr-country", "properties": {"caption": "Country", "visible": true}}]},
  "dimensions": {"dimension": [{"id": "dim-geo", "name": "Geo", "hierarchy": [{"id": "h-location", "name": "Location",
    "level": [{"id": "lvl-country", "primary-attribute": "ka-country"}]}]}]},
  "calculated-members": {"calculated-member": [{"id": "cm-ratio", "name": "profit_ratio", "expression": "[Measures].[sales] / 2",
    "properties": {"caption": "profit_ratio", "visible": true}}]},
  "cubes": {"cube": [{
    "id": "cube-sales",
    "name": "Sales",
    "attributes": {
      "attribute": [{"id": "attr-sales", "name": "sales", "properties": {"caption": "sales", "folder": "Revenue", "visible": true,
        "type": {"measure": {"default-aggregation": "SUM"}}}}],
      "keyed-attribute": [
        {"id": "ka-city", "name": "City", "key-ref": "kr-city", "properties": {"caption": "City"}},
        {"id": "ka-color", "name": "Color", "key-ref": "kr-color", "properties": {"caption": "Color"}}
      ]
    },
    "dimensions": {"dimension": [{"id": "dim-geo-local", "name": "Geo", "hierarchy": [{"id": "h-location-local", "name": "Location",
      "level": [{"id": "lvl-city", "primary-attribute": "ka-city"}]}]}]},
    "data-sets": {"data-set-ref": [{"id": "ds-sales", "logical": {"key-ref": [], "attribute-ref": []}}]},
    "calculated-members": {"calculated-member-ref": [{"id": "cm-ratio"}]}
  }]}
}`
