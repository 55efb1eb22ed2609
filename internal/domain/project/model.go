package project

// Metadata are the descriptive properties shared by created features.
type Metadata struct {
	Description string `json:"description,omitempty"`
	Caption     string `json:"caption,omitempty"`
	Folder      string `json:"folder,omitempty"`
	// Format is a named format such as "General Number" or a format string.
	Format string `json:"format,omitempty"`
}

// MetadataPatch changes only the fields that are set.
type MetadataPatch struct {
	Description *string
	Caption     *string
	Folder      *string
	Format      *string
}

// AggregateFeature is a measure aggregating a dataset column.
type AggregateFeature struct {
	Dataset     string
	Column      string
	Name        string
	Aggregation string
	Metadata
}

// CalculatedFeature is a measure defined by an MDX expression.
type CalculatedFeature struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Metadata
}

// CategoricalFeature is a single-level dimension on a dataset column.
type CategoricalFeature struct {
	Dataset string
	Column  string
	Name    string
	Metadata
}

// SecondaryAttribute attaches a dataset column to an existing hierarchy level.
type SecondaryAttribute struct {
	Dataset   string
	Column    string
	Name      string
	Hierarchy string
	Level     string
	Metadata
}

// MappedColumns splits a delimited key/value column into typed columns.
type MappedColumns struct {
	Dataset         string
	Column          string
	Names           []string
	Types           []string
	KeyTerminator   string
	FieldTerminator string
	KeyType         string
	ValueType       string
	// Prefixed marks values whose first character is a delimiter.
	Prefixed bool
}

// Join binds a warehouse table to the model through categorical features.
type Join struct {
	Table    string
	Features []string
	// Columns defaults to Features.
	Columns      []string
	ConnectionID string
	Database     string
	Schema       string
}

// CloneResult identifies a newly created copy of the project.
type CloneResult struct {
	ProjectID string
	ModelID   string
}

type categoricalIDs struct {
	hierarchy, level, dimension, attribute, ref string
}
