package schema

import (
	"encoding/xml"
	"fmt"

	"github.com/google/uuid"
)

const (
	levelsStatement = "select [DIMENSION_UNIQUE_NAME], [HIERARCHY_UNIQUE_NAME], [LEVEL_UNIQUE_NAME], [LEVEL_NUMBER], " +
		"[LEVEL_CAPTION], [LEVEL_NAME], [LEVEL_IS_VISIBLE], [LEVEL_TYPE], [DESCRIPTION] from $system.mdschema_levels " +
		"where [CUBE_NAME] = @CubeName and [LEVEL_NAME] <> '(All)' and [DIMENSION_UNIQUE_NAME] <> '[Measures]'"

	measuresStatement = "SELECT [CATALOG_NAME], [SCHEMA_NAME], [CUBE_NAME], [MEASURE_NAME], [MEASURE_UNIQUE_NAME], " +
		"[MEASURE_GUID], [MEASURE_CAPTION], [MEASURE_AGGREGATOR], [DATA_TYPE], [NUMERIC_PRECISION], [NUMERIC_SCALE], " +
		"[MEASURE_UNITS], [DESCRIPTION], [EXPRESSION], [MEASURE_IS_VISIBLE], [MEASURE_IS_VISIBLE], " +
		"[MEASURE_NAME_SQL_COLUMN_NAME], [MEASURE_UNQUALIFIED_CAPTION], [MEASUREGROUP_NAME], [MEASURE_DISPLAY_FOLDER], " +
		"[DEFAULT_FORMAT_STRING] FROM $system.MDSCHEMA_MEASURES"

	hierarchiesStatement = "SELECT [CATALOG_NAME], [SCHEMA_NAME], [CUBE_NAME], [DIMENSION_UNIQUE_NAME], [HIERARCHY_NAME], " +
		"[HIERARCHY_UNIQUE_NAME], [HIERARCHY_GUID], [HIERARCHY_CAPTION], [DIMENSION_TYPE], [HIERARCHY_CARDINALITY], " +
		"[DEFAULT_MEMBER], [ALL_MEMBER], [DESCRIPTION], [STRUCTURE], [IS_VIRTUAL], [IS_READWRITE], " +
		"[DIMENSION_UNIQUE_SETTINGS], [DIMENSION_MASTER_UNIQUE_NAME], [DIMENSION_IS_VISIBLE], [HIERARCHY_ORIGIN], " +
		"[HIERARCHY_DISPLAY_FOLDER], [INSTANCE_SELECTION], [GROUPING_BEHAVIOR], [STRUCTURE_TYPE] FROM $system.MDSCHEMA_HIERARCHIES"
)

// The server only answers discovery requests that look like they come from a known BI client.
const (
	localeIdentifier = 1033
	clientAppName    = "Power BI Desktop"
	clientProcessID  = 3628
)

type envelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    body     `xml:"Body"`
}

type body struct {
	Execute execute `xml:"urn:schemas-microsoft-com:xml-analysis Execute"`
}

type execute struct {
	Statement  string      `xml:"Command>Statement"`
	Properties propertySet `xml:"Properties>PropertyList"`
	Parameters parameters  `xml:"Parameters"`
}

type propertySet struct {
	LocaleIdentifier int      `xml:"LocaleIdentifier"`
	AppName          string   `xml:"SspropInitAppName"`
	ClientProcessID  int      `xml:"ClientProcessID"`
	DataSourceInfo   struct{} `xml:"DataSourceInfo"`
	Catalog          string   `xml:"Catalog"`
	Format           string   `xml:"Format"`
	Content          string   `xml:"Content"`
	ActivityID       string   `xml:"DbpropMsmdActivityID"`
	RequestID        string   `xml:"DbpropMsmdRequestID"`
}

type parameters struct {
	XSD       string      `xml:"xmlns:xsd,attr"`
	XSI       string      `xml:"xmlns:xsi,attr"`
	Parameter []parameter `xml:"Parameter"`
}

type parameter struct {
	Name  string    `xml:"Name"`
	Value typedText `xml:"Value"`
}

type typedText struct {
	Type string `xml:"xsi:type,attr"`
	Text string `xml:",chardata"`
}

// buildEnvelope renders a discovery request for statement against the project catalog and cube.
func buildEnvelope(statement, catalog, cube string) ([]byte, error) {
	env := envelope{
		Body: body{Execute: execute{
			Statement: statement,
			Properties: propertySet{
				LocaleIdentifier: localeIdentifier,
				AppName:          clientAppName,
				ClientProcessID:  clientProcessID,
				Catalog:          catalog,
				Format:           "Tabular",
				Content:          "SchemaData",
				ActivityID:       uuid.NewString(),
				RequestID:        uuid.NewString(),
			},
			Parameters: parameters{
				XSD: "http://www.w3.org/2001/XMLSchema",
				XSI: "http://www.w3.org/2001/XMLSchema-instance",
				Parameter: []parameter{{
					Name:  "CubeName",
					Value: typedText{Type: "xsd:string", Text: cube},
				}},
			},
		}},
	}
	out, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding discovery envelope: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
