package project

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rpggio/cubelink/internal/domain/schema"
	"github.com/rpggio/cubelink/internal/remote"
)

func (s *Service) checkNewFeature(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: feature name is empty", ErrInvalidInput)
	}
	if s.model.Catalog().Has(name) {
		return fmt.Errorf("%w: %q", ErrDuplicateFeature, name)
	}
	return nil
}

func applyPatch(props node, p MetadataPatch, named []string) {
	if p.Description != nil {
		props["description"] = *p.Description
	}
	if p.Caption != nil {
		props["caption"] = *p.Caption
	}
	if p.Folder != nil {
		props["folder"] = *p.Folder
	}
	if p.Format != nil && named != nil {
		props["formatting"] = formatting(*p.Format, named)
	}
}

// CreateCalculatedColumn adds a SQL expression column to a dataset. The
// column type is whatever the server reports for the expression.
func (s *Service) CreateCalculatedColumn(ctx context.Context, dataset, name, expression string, publish bool) error {
	if name == "" || expression == "" {
		return fmt.Errorf("%w: calculated column needs a name and an expression", ErrInvalidInput)
	}
	return s.mutate(ctx, "create calculated column", publish, func(doc *Document) error {
		ds, err := doc.Dataset(dataset)
		if err != nil {
			return err
		}
		tables := ds.Tables()
		if len(tables) == 0 {
			return fmt.Errorf("%w: dataset %q has no physical table", ErrMalformedDocument, dataset)
		}
		dataType, err := s.meta.EvaluateExpression(ctx, remote.ExpressionContext{
			ConnectionID: ds.ConnectionID(),
			Table:        tables[0].Name,
			Schema:       tables[0].Schema,
			Database:     tables[0].Database,
		}, expression)
		if err != nil {
			return err
		}
		ds.addColumn(calculatedColumn(name, expression, dataType))
		return nil
	})
}

// CreateMappedColumns splits a delimited map column into typed columns.
func (s *Service) CreateMappedColumns(ctx context.Context, m MappedColumns, publish bool) error {
	if err := checkOneOf("key terminator", m.KeyTerminator, keyTerminators); err != nil {
		return err
	}
	if err := checkOneOf("field terminator", m.FieldTerminator, fieldTerminators); err != nil {
		return err
	}
	if len(m.Names) != len(m.Types) {
		return fmt.Errorf("%w: %d names for %d types", ErrInvalidInput, len(m.Names), len(m.Types))
	}
	for _, t := range m.Types {
		if err := checkOneOf("data type", t, mapDataTypes); err != nil {
			return err
		}
	}
	return s.mutate(ctx, "create mapped columns", publish, func(doc *Document) error {
		ds, err := doc.Dataset(m.Dataset)
		if err != nil {
			return err
		}
		if err := ds.requireColumn(m.Column); err != nil {
			return err
		}
		cols := make([]any, len(m.Names))
		for i, name := range m.Names {
			cols[i] = physicalColumn(s.newID(), name, m.Types[i])
		}
		ds.addMapColumn(mapColumn(cols, m))
		return nil
	})
}

// AddColumnMapping appends one typed column to an existing map column.
func (s *Service) AddColumnMapping(ctx context.Context, dataset, column, name, dataType string, publish bool) error {
	if err := checkOneOf("data type", dataType, mapDataTypes); err != nil {
		return err
	}
	return s.mutate(ctx, "add column mapping", publish, func(doc *Document) error {
		ds, err := doc.Dataset(dataset)
		if err != nil {
			return err
		}
		if err := ds.requireColumn(column); err != nil {
			return err
		}
		mapped, ok := ds.mapColumn(column)
		if !ok {
			return fmt.Errorf("%w: no map column %q in dataset %q", ErrUnknownColumn, column, dataset)
		}
		mapped.child("columns").push("columns", physicalColumn(s.newID(), name, dataType))
		return nil
	})
}

// CreateAggregateFeature adds a measure aggregating a dataset column.
func (s *Service) CreateAggregateFeature(ctx context.Context, f AggregateFeature, publish bool) error {
	if err := s.checkNewFeature(f.Name); err != nil {
		return err
	}
	agg, err := normalizeAggregation(f.Aggregation)
	if err != nil {
		return err
	}
	return s.mutate(ctx, "create aggregate feature", publish, func(doc *Document) error {
		ds, err := doc.Dataset(f.Dataset)
		if err != nil {
			return err
		}
		if err := ds.requireColumn(f.Column); err != nil {
			return err
		}
		cube, err := doc.CubeByName(s.model.ModelName())
		if err != nil {
			return err
		}
		ref, err := cube.datasetRef(ds.ID())
		if err != nil {
			return err
		}
		id := s.newID()
		cube.attributes().addMeasure(measureAttribute(id, f, agg))
		ref.child("logical").push("attribute-ref", columnRef(id, f.Column, "true"))
		return nil
	})
}

// UpdateAggregateFeatureMetadata changes the set fields of an aggregate feature.
func (s *Service) UpdateAggregateFeatureMetadata(ctx context.Context, name string, p MetadataPatch, publish bool) error {
	m, err := s.model.Catalog().Measure(name)
	if err != nil {
		return err
	}
	if m.Kind != schema.MeasureAggregate {
		return fmt.Errorf("%w: %q is not an aggregate feature", schema.ErrUnknownFeature, name)
	}
	return s.mutate(ctx, "update aggregate feature", publish, func(doc *Document) error {
		cube, err := doc.CubeByName(s.model.ModelName())
		if err != nil {
			return err
		}
		measure, ok := cube.attributes().measure(name)
		if !ok {
			return fmt.Errorf("%w: %q is not defined on cube %q", schema.ErrUnknownFeature, name, cube.Name())
		}
		applyPatch(measure.child("properties"), p, measureNamedFormats)
		return nil
	})
}

// CreateCalculatedFeature adds an MDX calculated measure.
func (s *Service) CreateCalculatedFeature(ctx context.Context, f CalculatedFeature, publish bool) error {
	return s.CreateCalculatedFeatures(ctx, []CalculatedFeature{f}, publish)
}

// CreateCalculatedFeatures adds several calculated measures in one commit.
func (s *Service) CreateCalculatedFeatures(ctx context.Context, features []CalculatedFeature, publish bool) error {
	if len(features) == 0 {
		return fmt.Errorf("%w: no calculated features", ErrInvalidInput)
	}
	seen := map[string]bool{}
	for _, f := range features {
		if err := s.checkNewFeature(f.Name); err != nil {
			return err
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: %q given twice", ErrDuplicateFeature, f.Name)
		}
		seen[f.Name] = true
		if strings.TrimSpace(f.Expression) == "" {
			return fmt.Errorf("%w: calculated feature %q has no expression", ErrInvalidInput, f.Name)
		}
	}
	return s.mutate(ctx, "create calculated feature", publish, func(doc *Document) error {
		cube, err := doc.CubeByName(s.model.ModelName())
		if err != nil {
			return err
		}
		for _, f := range features {
			id := s.newID()
			doc.addCalculatedMember(calculatedMember(id, f))
			cube.addCalculatedMemberRef(calculatedMemberRef(id))
		}
		return nil
	})
}

// UpdateCalculatedFeatureMetadata changes the set fields of a calculated feature.
func (s *Service) UpdateCalculatedFeatureMetadata(ctx context.Context, name string, p MetadataPatch, publish bool) error {
	m, err := s.model.Catalog().Measure(name)
	if err != nil {
		return err
	}
	if m.Kind != schema.MeasureCalculated {
		return fmt.Errorf("%w: %q is not a calculated feature", schema.ErrUnknownFeature, name)
	}
	return s.mutate(ctx, "update calculated feature", publish, func(doc *Document) error {
		member, ok := doc.calculatedMember(name)
		if !ok {
			return fmt.Errorf("%w: %q is not a project calculated member", schema.ErrUnknownFeature, name)
		}
		applyPatch(member.child("properties"), p, calculatedNamedFormats)
		return nil
	})
}

// CreateDenormalizedCategoricalFeature adds a one-level dimension over a dataset column.
func (s *Service) CreateDenormalizedCategoricalFeature(ctx context.Context, f CategoricalFeature, publish bool) error {
	if err := s.checkNewFeature(f.Name); err != nil {
		return err
	}
	if f.Caption == "" {
		f.Caption = f.Name
	}
	return s.mutate(ctx, "create categorical feature", publish, func(doc *Document) error {
		ds, err := doc.Dataset(f.Dataset)
		if err != nil {
			return err
		}
		if err := ds.requireColumn(f.Column); err != nil {
			return err
		}
		cube, err := doc.CubeByName(s.model.ModelName())
		if err != nil {
			return err
		}
		ref, err := cube.datasetRef(ds.ID())
		if err != nil {
			return err
		}
		ids := categoricalIDs{hierarchy: s.newID(), level: s.newID(), dimension: s.newID(), attribute: s.newID(), ref: s.newID()}

		cube.addDimension(denormalizedDimension(ids, f))
		logical := ref.child("logical")
		logical.push("attribute-ref", columnRef(ids.attribute, f.Column, true))
		attrs := cube.attributes()
		attrs.addKeyed(keyedAttribute(ids.attribute, ids.ref, f.Metadata, f.Name, false))
		attrs.addKey(attributeKey(ids.ref))
		logical.push("key-ref", keyRef(ids.ref, f.Column, "true"))
		return nil
	})
}

// CreateSecondaryAttribute attaches a dataset column to a hierarchy level as a secondary attribute.
func (s *Service) CreateSecondaryAttribute(ctx context.Context, a SecondaryAttribute, publish bool) error {
	if err := s.checkNewFeature(a.Name); err != nil {
		return err
	}
	levels, err := s.model.Catalog().ListLevels(a.Hierarchy)
	if err != nil {
		return err
	}
	if !slices.Contains(levels, a.Level) {
		return fmt.Errorf("%w: level %q not in hierarchy %q", schema.ErrUnknownHierarchy, a.Level, a.Hierarchy)
	}
	if a.Caption == "" {
		a.Caption = a.Name
	}
	return s.mutate(ctx, "create secondary attribute", publish, func(doc *Document) error {
		ds, err := doc.Dataset(a.Dataset)
		if err != nil {
			return err
		}
		if err := ds.requireColumn(a.Column); err != nil {
			return err
		}
		cube, err := doc.CubeByName(s.model.ModelName())
		if err != nil {
			return err
		}

		// The level's keyed attribute lives at project level for shared
		// dimensions and on the cube for cube-local ones.
		var targets []node
		if attr, ok := doc.attributes().keyed(a.Level); ok {
			targets = levelsWithPrimary(doc.dimensions(), a.Hierarchy, attr.str("id"))
		} else if attr, ok := cube.attributes().keyed(a.Level); ok {
			targets = levelsWithPrimary(cube.dimensions(), a.Hierarchy, attr.str("id"))
		}
		if len(targets) == 0 {
			return fmt.Errorf("%w: no level %q in hierarchy %q of the project document", schema.ErrUnknownHierarchy, a.Level, a.Hierarchy)
		}

		attrID, refID := s.newID(), s.newID()
		for _, level := range targets {
			level.push("keyed-attribute-ref", map[string]any{
				"attribute-id": attrID,
				"properties":   map[string]any{"multiplicity": map[string]any{}},
			})
		}
		logical := ds.logical()
		logical.push("attribute-ref", columnRef(attrID, a.Column, true))
		attrs := doc.attributes()
		attrs.addKeyed(keyedAttribute(attrID, refID, a.Metadata, a.Name, true))
		attrs.addKey(attributeKey(refID))
		logical.push("key-ref", keyRef(refID, a.Column, "true"))
		return nil
	})
}

// UpdateSecondaryAttributeMetadata changes the description, caption or folder of a secondary attribute.
func (s *Service) UpdateSecondaryAttributeMetadata(ctx context.Context, name string, p MetadataPatch, publish bool) error {
	return s.mutate(ctx, "update secondary attribute", publish, func(doc *Document) error {
		attr, ok := doc.attributes().keyed(name)
		if !ok {
			return fmt.Errorf("%w: secondary attribute %q", schema.ErrUnknownFeature, name)
		}
		applyPatch(attr.child("properties"), p, nil)
		return nil
	})
}

// matchColumn finds column among names exactly, then upper-cased, then lower-cased.
func matchColumn(names []string, column string) (string, bool) {
	for _, candidate := range []string{column, strings.ToUpper(column), strings.ToLower(column)} {
		if slices.Contains(names, candidate) {
			return candidate, true
		}
	}
	return "", false
}

// CheckJoin validates the feature/column pairing of a join against catalog.
// Each join feature must be categorical. When columns is non-nil every join
// column must match one of them. The returned columns default to the features.
func CheckJoin(catalog *schema.Catalog, features, joinColumns, columns []string) ([]string, error) {
	if len(joinColumns) == 0 {
		joinColumns = features
	}
	if len(features) != len(joinColumns) {
		return nil, fmt.Errorf("%w: %d join features for %d join columns", ErrInvalidInput, len(features), len(joinColumns))
	}
	for _, f := range features {
		if !catalog.IsCategorical(f) {
			return nil, fmt.Errorf("%w: join feature %q is not categorical", schema.ErrUnknownFeature, f)
		}
	}
	if columns != nil {
		for _, col := range joinColumns {
			if _, ok := matchColumn(columns, col); !ok {
				return nil, fmt.Errorf("%w: join column %q", ErrUnknownColumn, col)
			}
		}
	}
	return joinColumns, nil
}

// JoinTable adds a warehouse table as a dataset joined to the model on categorical features.
func (s *Service) JoinTable(ctx context.Context, j Join, publish bool) error {
	cols, err := CheckJoin(s.model.Catalog(), j.Features, j.Columns, nil)
	if err != nil {
		return err
	}
	j.Columns = cols
	if j.ConnectionID == "" {
		return fmt.Errorf("%w: no connection id and no warehouse connection", ErrInvalidInput)
	}

	if err := s.meta.RefreshTableCache(ctx, j.ConnectionID); err != nil {
		return fmt.Errorf("join table: %w", err)
	}
	tableCols, err := s.meta.TableColumns(ctx, j.ConnectionID, j.Table, j.Database, j.Schema)
	if err != nil {
		return fmt.Errorf("join table: %w", err)
	}
	names := make([]string, len(tableCols))
	physical := make([]any, len(tableCols))
	for i, c := range tableCols {
		names[i] = c.Name
		physical[i] = physicalColumn(s.newID(), c.Name, c.DataType)
	}
	matched := make([]string, len(j.Columns))
	for i, col := range j.Columns {
		name, ok := matchColumn(names, col)
		if !ok {
			return fmt.Errorf("%w: %q in table %q", ErrUnknownColumn, col, j.Table)
		}
		matched[i] = name
	}

	return s.mutate(ctx, "join table", publish, func(doc *Document) error {
		cube, err := doc.CubeByName(s.model.ModelName())
		if err != nil {
			return err
		}
		keyRefs, attrRefs := []any{}, []any{}
		for i, feature := range j.Features {
			if attr, ok := doc.attributes().keyed(feature); ok {
				keyRefs = append(keyRefs, keyRef(attr.str("key-ref"), matched[i], "false"))
				continue
			}
			attr, ok := cube.attributes().keyed(feature)
			if !ok {
				return fmt.Errorf("%w: no keyed attribute for join feature %q", ErrMalformedDocument, feature)
			}
			keyRefs = append(keyRefs, keyRef(attr.str("key-ref"), matched[i], "partial"))
			attrRefs = append(attrRefs, columnRef(attr.str("id"), matched[i], "partial"))
		}
		id := s.newID()
		doc.addDataset(joinedDataset(id, j, physical))
		cube.addDatasetRef(joinedDatasetRef(id, keyRefs, attrRefs))
		return nil
	})
}

type typedColumn struct{ name, dataType string }

// UpdateProjectTables reconciles dataset columns with the live warehouse
// tables, keeping SQL expression columns. An empty tables list means every
// table. It commits only when a dataset changed and reports whether it did.
func (s *Service) UpdateProjectTables(ctx context.Context, tables []string, publish bool) (bool, error) {
	doc, err := s.Document(ctx)
	if err != nil {
		return false, fmt.Errorf("update project tables: reading project: %w", err)
	}
	changed := false
	for _, ds := range doc.Datasets() {
		physicalTables := ds.Tables()
		if len(physicalTables) == 0 {
			continue
		}
		conn := ds.ConnectionID()
		if err := s.meta.RefreshTableCache(ctx, conn); err != nil {
			return false, fmt.Errorf("update project tables: %w", err)
		}
		for _, t := range physicalTables {
			if len(tables) > 0 && !slices.Contains(tables, t.Name) {
				continue
			}
			live, err := s.meta.TableColumns(ctx, conn, t.Name, t.Database, t.Schema)
			if err != nil {
				return false, fmt.Errorf("update project tables: %w", err)
			}
			if reconcileColumns(ds, live, s.newID) {
				changed = true
			}
		}
	}
	if !changed {
		return false, nil
	}
	if err := s.commit(ctx, "update project tables", doc, publish); err != nil {
		return false, fmt.Errorf("update project tables: %w", err)
	}
	return true, nil
}

func reconcileColumns(ds Dataset, live []remote.TableColumn, newID func() string) bool {
	var kept []any
	current := map[typedColumn]bool{}
	for _, col := range ds.columns() {
		if _, ok := col["sqls"]; ok {
			kept = append(kept, map[string]any(col))
			continue
		}
		current[typedColumn{col.str("name"), col.get("type").str("data-type")}] = true
	}
	server := map[typedColumn]bool{}
	for _, c := range live {
		server[typedColumn{c.Name, c.DataType}] = true
	}
	if mapsEqual(current, server) {
		return false
	}
	for _, c := range live {
		kept = append(kept, physicalColumn(newID(), c.Name, c.DataType))
	}
	ds.setColumns(kept)
	return true
}

func mapsEqual(a, b map[typedColumn]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
