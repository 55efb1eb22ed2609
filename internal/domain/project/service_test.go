package project_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rpggio/cubelink/internal/domain/project"
	"github.com/rpggio/cubelink/internal/domain/schema"
	"github.com/rpggio/cubelink/internal/mocks"
	"github.com/rpggio/cubelink/internal/remote"
	"github.com/rpggio/cubelink/internal/testserver"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	_ project.Store         = (*remote.Client)(nil)
	_ project.TableMetadata = (*remote.Client)(nil)
	_ project.TableMetadata = (*mocks.TableMetadata)(nil)
)

// memStore keeps the project document and its snapshots in memory.
type memStore struct {
	doc       []byte
	snapshots map[string][]byte
	order     []string
	created   [][]byte
	calls     []string

	putErr, publishErr, deleteErr, restoreErr error
}

func newMemStore() *memStore {
	return &memStore{doc: []byte(testserver.SalesProject), snapshots: map[string][]byte{}}
}

func (s *memStore) GetProject(context.Context) (json.RawMessage, error) {
	s.calls = append(s.calls, "get")
	return append(json.RawMessage(nil), s.doc...), nil
}

func (s *memStore) PutProject(_ context.Context, doc []byte) error {
	s.calls = append(s.calls, "put")
	if s.putErr != nil {
		return s.putErr
	}
	s.doc = append([]byte(nil), doc...)
	return nil
}

func (s *memStore) PublishProject(context.Context) error {
	s.calls = append(s.calls, "publish")
	return s.publishErr
}

func (s *memStore) CloneProject(context.Context) (json.RawMessage, error) {
	s.calls = append(s.calls, "clone")
	return append(json.RawMessage(nil), s.doc...), nil
}

func (s *memStore) CreateProject(_ context.Context, doc []byte) (string, error) {
	s.calls = append(s.calls, "create")
	s.created = append(s.created, doc)
	return "proj-clone", nil
}

func (s *memStore) CreateSnapshot(_ context.Context, tag string) (string, error) {
	s.calls = append(s.calls, "snapshot")
	id := fmt.Sprintf("snap-%d", len(s.order)+1)
	s.snapshots[id] = append([]byte(nil), s.doc...)
	s.order = append(s.order, id)
	return id, nil
}

func (s *memStore) ListSnapshots(context.Context) ([]remote.Snapshot, error) {
	s.calls = append(s.calls, "list")
	var out []remote.Snapshot
	for _, id := range s.order {
		if _, ok := s.snapshots[id]; ok {
			out = append(out, remote.Snapshot{ID: id, Name: "saved"})
		}
	}
	return out, nil
}

func (s *memStore) DeleteSnapshot(_ context.Context, id string) error {
	s.calls = append(s.calls, "delete")
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.snapshots, id)
	return nil
}

func (s *memStore) RestoreSnapshot(_ context.Context, id string) error {
	s.calls = append(s.calls, "restore")
	if s.restoreErr != nil {
		return s.restoreErr
	}
	s.doc = append([]byte(nil), s.snapshots[id]...)
	return nil
}

type discoverFunc func(ctx context.Context, envelope []byte) ([]byte, error)

func (f discoverFunc) Discover(ctx context.Context, envelope []byte) ([]byte, error) {
	return f(ctx, envelope)
}

func salesCatalog(t *testing.T) *schema.Catalog {
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
	return catalog
}

type fixture struct {
	svc   *project.Service
	store *memStore
	meta  *mocks.TableMetadata
	model *mocks.Model
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	model := &mocks.Model{Cat: salesCatalog(t), Name: "Sales"}
	model.On("Refresh", mock.Anything).Return(nil)
	store := newMemStore()
	meta := &mocks.TableMetadata{}
	return &fixture{
		svc:   project.NewService(store, meta, model, nil),
		store: store,
		meta:  meta,
		model: model,
	}
}

func (f *fixture) document(t *testing.T) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(f.store.doc, &doc))
	return doc
}

// dig walks a decoded document by object keys and list indexes. A negative
// index counts from the end.
func dig(t *testing.T, v any, path ...any) any {
	t.Helper()
	for _, p := range path {
		switch k := p.(type) {
		case string:
			m, ok := v.(map[string]any)
			require.True(t, ok, "expected object at %q", k)
			v = m[k]
		case int:
			list, ok := v.([]any)
			require.True(t, ok, "expected list at %d", k)
			if k < 0 {
				k += len(list)
			}
			require.Less(t, k, len(list))
			v = list[k]
		}
	}
	return v
}

func byName(t *testing.T, list any, name string) map[string]any {
	t.Helper()
	items, ok := list.([]any)
	require.True(t, ok)
	for _, item := range items {
		if m, ok := item.(map[string]any); ok && m["name"] == name {
			return m
		}
	}
	t.Fatalf("no entry named %q", name)
	return nil
}

var ctx = context.Background()

func TestCommitProtocolOrder(t *testing.T) {
	store := &mocks.Store{}
	model := &mocks.Model{Cat: salesCatalog(t), Name: "Sales"}
	store.On("GetProject", mock.Anything).Return(json.RawMessage(testserver.SalesProject), nil).Once()
	store.On("CreateSnapshot", mock.Anything, mock.MatchedBy(func(tag string) bool {
		return strings.HasPrefix(tag, "cubelink snapshot ")
	})).Return("snap-1", nil).Once()
	store.On("PutProject", mock.Anything, mock.Anything).Return(nil).Once()
	store.On("PublishProject", mock.Anything).Return(nil).Once()
	store.On("DeleteSnapshot", mock.Anything, "snap-1").Return(nil).Once()
	model.On("Refresh", mock.Anything).Return(nil).Once()

	svc := project.NewService(store, &mocks.TableMetadata{}, model, nil)
	err := svc.CreateAggregateFeature(ctx, project.AggregateFeature{
		Dataset: "sales_fact", Column: "amount", Name: "revenue", Aggregation: "sum",
	}, true)
	require.NoError(t, err)
	store.AssertExpectations(t)
	model.AssertExpectations(t)
}

func TestCreateAggregateFeature(t *testing.T) {
	f := newFixture(t)
	err := f.svc.CreateAggregateFeature(ctx, project.AggregateFeature{
		Dataset: "sales_fact", Column: "amount", Name: "revenue", Aggregation: "sum",
		Metadata: project.Metadata{Caption: "Revenue", Folder: "Revenue"},
	}, true)
	require.NoError(t, err)
	require.Equal(t, []string{"get", "snapshot", "put", "publish", "delete"}, f.store.calls)
	require.Empty(t, f.store.snapshots)
	f.model.AssertNumberOfCalls(t, "Refresh", 1)

	doc := f.document(t)
	cube := dig(t, doc, "cubes", "cube", 0)
	measure := byName(t, dig(t, cube, "attributes", "attribute"), "revenue")
	props := measure["properties"]
	require.Equal(t, "SUM", dig(t, props, "type", "measure", "default-aggregation"))
	require.Equal(t, "General Number", dig(t, props, "formatting", "named-format"))
	require.Equal(t, "Revenue", dig(t, props, "caption"))
	require.Equal(t, true, dig(t, props, "visible"))

	ref := dig(t, cube, "data-sets", "data-set-ref", 0, "logical", "attribute-ref", -1)
	require.Equal(t, measure["id"], dig(t, ref, "id"))
	require.Equal(t, "true", dig(t, ref, "complete"))
	require.Equal(t, []any{"amount"}, dig(t, ref, "column"))
}

func TestCreateAggregateFeatureRejectsBeforeRemoteCalls(t *testing.T) {
	f := newFixture(t)

	err := f.svc.CreateAggregateFeature(ctx, project.AggregateFeature{
		Dataset: "sales_fact", Column: "amount", Name: "sales", Aggregation: "SUM",
	}, true)
	require.ErrorIs(t, err, project.ErrDuplicateFeature)

	err = f.svc.CreateAggregateFeature(ctx, project.AggregateFeature{
		Dataset: "sales_fact", Column: "amount", Name: "revenue", Aggregation: "median",
	}, true)
	require.ErrorIs(t, err, project.ErrInvalidInput)
	require.Contains(t, err.Error(), "STDDEV_SAMP")

	require.Empty(t, f.store.calls)
}

func TestCreateAggregateFeatureUnknownColumnWritesNothing(t *testing.T) {
	f := newFixture(t)
	err := f.svc.CreateAggregateFeature(ctx, project.AggregateFeature{
		Dataset: "sales_fact", Column: "nope", Name: "revenue", Aggregation: "SUM",
	}, true)
	require.ErrorIs(t, err, project.ErrUnknownColumn)
	require.Equal(t, []string{"get"}, f.store.calls)

	err = f.svc.CreateAggregateFeature(ctx, project.AggregateFeature{
		Dataset: "missing", Column: "amount", Name: "revenue", Aggregation: "SUM",
	}, true)
	require.ErrorIs(t, err, project.ErrUnknownDataset)
}

func TestPublishFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	before := string(f.store.doc)
	f.store.publishErr = errors.New("publish exploded")

	err := f.svc.CreateAggregateFeature(ctx, project.AggregateFeature{
		Dataset: "sales_fact", Column: "amount", Name: "revenue", Aggregation: "SUM",
	}, true)
	require.ErrorIs(t, err, f.store.publishErr)
	require.Equal(t, before, string(f.store.doc))
	require.Empty(t, f.store.snapshots)
	require.Equal(t, []string{"get", "snapshot", "put", "publish", "restore", "delete"}, f.store.calls)
	f.model.AssertNumberOfCalls(t, "Refresh", 1)
}

func TestWriteFailureWithFailedRestoreJoinsErrors(t *testing.T) {
	f := newFixture(t)
	f.store.putErr = errors.New("write refused")
	f.store.restoreErr = errors.New("restore refused")

	err := f.svc.CreateCalculatedFeature(ctx, project.CalculatedFeature{Name: "margin", Expression: "[Measures].[sales]"}, false)
	require.ErrorIs(t, err, f.store.putErr)
	require.ErrorIs(t, err, f.store.restoreErr)
	require.NotContains(t, f.store.calls, "publish")
}

func TestWriteFailureRestoresQuietly(t *testing.T) {
	f := newFixture(t)
	f.store.putErr = errors.New("write refused")

	err := f.svc.CreateCalculatedFeature(ctx, project.CalculatedFeature{Name: "margin", Expression: "[Measures].[sales]"}, false)
	require.ErrorIs(t, err, f.store.putErr)
	require.Equal(t, "create calculated feature: writing project: write refused", err.Error())
}

func TestSnapshotDeleteFailureAfterCommitOnlyWarns(t *testing.T) {
	f := newFixture(t)
	f.store.deleteErr = errors.New("delete refused")

	err := f.svc.CreateCalculatedFeature(ctx, project.CalculatedFeature{Name: "margin", Expression: "[Measures].[sales]"}, true)
	require.NoError(t, err)
	require.Len(t, f.store.snapshots, 1)
}

func TestRefreshFailureAfterCommitIsReturned(t *testing.T) {
	store := newMemStore()
	model := &mocks.Model{Cat: salesCatalog(t), Name: "Sales"}
	model.On("Refresh", mock.Anything).Return(errors.New("discovery down"))
	svc := project.NewService(store, &mocks.TableMetadata{}, model, nil)

	err := svc.CreateCalculatedFeature(ctx, project.CalculatedFeature{Name: "margin", Expression: "1"}, false)
	require.ErrorContains(t, err, "refreshing after commit")
	require.Contains(t, string(store.doc), `"margin"`)
}

func TestStagedOnlyDoesNotPublish(t *testing.T) {
	f := newFixture(t)
	err := f.svc.CreateCalculatedFeature(ctx, project.CalculatedFeature{Name: "margin", Expression: "1"}, false)
	require.NoError(t, err)
	require.Equal(t, []string{"get", "snapshot", "put", "delete"}, f.store.calls)
}

func TestCreateCalculatedFeatures(t *testing.T) {
	f := newFixture(t)
	err := f.svc.CreateCalculatedFeatures(ctx, []project.CalculatedFeature{
		{Name: "margin", Expression: "[Measures].[sales] * 0.2", Metadata: project.Metadata{Format: "Percent"}},
		{Name: "double", Expression: "[Measures].[sales] * 2", Metadata: project.Metadata{Format: "#,##0"}},
	}, true)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(strings.Join(f.store.calls, " "), "put"))

	doc := f.document(t)
	members := dig(t, doc, "calculated-members", "calculated-member")
	margin := byName(t, members, "margin")
	require.Equal(t, "Percent", dig(t, margin, "properties", "formatting", "named-format"))
	double := byName(t, members, "double")
	require.Equal(t, "#,##0", dig(t, double, "properties", "formatting", "format-string"))

	refs := dig(t, doc, "cubes", "cube", 0, "calculated-members", "calculated-member-ref").([]any)
	require.Len(t, refs, 3)
	last := refs[2].(map[string]any)
	require.Equal(t, double["id"], last["id"])
	require.Equal(t, "calculated-member-ref", dig(t, last, "XMLName", "Local"))
	require.Equal(t, "http://www.atscale.com/xsd/project_2_0", dig(t, last, "XMLName", "Space"))
}

func TestCreateCalculatedFeaturesRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	err := f.svc.CreateCalculatedFeatures(ctx, []project.CalculatedFeature{
		{Name: "margin", Expression: "1"},
		{Name: "margin", Expression: "2"},
	}, true)
	require.ErrorIs(t, err, project.ErrDuplicateFeature)

	err = f.svc.CreateCalculatedFeature(ctx, project.CalculatedFeature{Name: "Country", Expression: "1"}, true)
	require.ErrorIs(t, err, project.ErrDuplicateFeature)

	err = f.svc.CreateCalculatedFeature(ctx, project.CalculatedFeature{Name: "margin"}, true)
	require.ErrorIs(t, err, project.ErrInvalidInput)
	require.Empty(t, f.store.calls)
}

func TestCreateDenormalizedCategoricalFeature(t *testing.T) {
	f := newFixture(t)
	err := f.svc.CreateDenormalizedCategoricalFeature(ctx, project.CategoricalFeature{
		Dataset: "sales_fact", Column: "region", Name: "Region",
		Metadata: project.Metadata{Folder: "Geography", Description: "sales region"},
	}, true)
	require.NoError(t, err)

	cube := dig(t, f.document(t), "cubes", "cube", 0)
	dim := dig(t, cube, "dimensions", "dimension", -1)
	require.Equal(t, "Region", dig(t, dim, "name"))
	hier := dig(t, dim, "hierarchy", 0)
	require.Equal(t, "Region", dig(t, hier, "name"))
	require.Equal(t, "Always", dig(t, hier, "properties", "filter-empty"))
	require.Equal(t, "Geography", dig(t, hier, "properties", "folder"))

	attr := byName(t, dig(t, cube, "attributes", "keyed-attribute"), "Region")
	require.Equal(t, dig(t, hier, "level", 0, "primary-attribute"), attr["id"])
	require.Equal(t, "Region", dig(t, attr, "properties", "caption"))
	require.NotContains(t, attr["properties"], "folder")

	key := dig(t, cube, "attributes", "attribute-key", -1)
	require.Equal(t, attr["key-ref"], dig(t, key, "id"))
	require.EqualValues(t, 1, dig(t, key, "properties", "columns"))

	logical := dig(t, cube, "data-sets", "data-set-ref", 0, "logical")
	attrRef := dig(t, logical, "attribute-ref", -1)
	require.Equal(t, true, dig(t, attrRef, "complete"))
	require.Equal(t, attr["id"], dig(t, attrRef, "id"))
	keyRef := dig(t, logical, "key-ref", -1)
	require.Equal(t, "true", dig(t, keyRef, "complete"))
	require.Equal(t, false, dig(t, keyRef, "unique"))
	require.Equal(t, []any{"region"}, dig(t, keyRef, "column"))
}

func TestCreateSecondaryAttributeOnProjectLevel(t *testing.T) {
	f := newFixture(t)
	err := f.svc.CreateSecondaryAttribute(ctx, project.SecondaryAttribute{
		Dataset: "sales_fact", Column: "region", Name: "Country Region",
		Hierarchy: "Location", Level: "Country",
		Metadata: project.Metadata{Folder: "Geography"},
	}, true)
	require.NoError(t, err)

	doc := f.document(t)
	attr := byName(t, dig(t, doc, "attributes", "keyed-attribute"), "Country Region")
	require.Equal(t, "Geography", dig(t, attr, "properties", "folder"))
	require.Equal(t, "Country Region", dig(t, attr, "properties", "caption"))

	levelRef := dig(t, doc, "dimensions", "dimension", 0, "hierarchy", 0, "level", 0, "keyed-attribute-ref", 0)
	require.Equal(t, attr["id"], dig(t, levelRef, "attribute-id"))
	require.Equal(t, map[string]any{}, dig(t, levelRef, "properties", "multiplicity"))

	logical := dig(t, doc, "datasets", "data-set", 0, "logical")
	require.Equal(t, attr["key-ref"], dig(t, logical, "key-ref", -1, "id"))
	require.Equal(t, attr["id"], dig(t, logical, "attribute-ref", -1, "id"))
}

func TestCreateSecondaryAttributeOnCubeLevel(t *testing.T) {
	f := newFixture(t)
	err := f.svc.CreateSecondaryAttribute(ctx, project.SecondaryAttribute{
		Dataset: "sales_fact", Column: "region", Name: "City Region",
		Hierarchy: "Location", Level: "City",
	}, false)
	require.NoError(t, err)

	doc := f.document(t)
	levelRef := dig(t, doc, "cubes", "cube", 0, "dimensions", "dimension", 0, "hierarchy", 0, "level", 0, "keyed-attribute-ref", 0)
	attr := byName(t, dig(t, doc, "attributes", "keyed-attribute"), "City Region")
	require.Equal(t, attr["id"], dig(t, levelRef, "attribute-id"))
}

func TestCreateSecondaryAttributeUnknownLevel(t *testing.T) {
	f := newFixture(t)
	err := f.svc.CreateSecondaryAttribute(ctx, project.SecondaryAttribute{
		Dataset: "sales_fact", Column: "region", Name: "Odd", Hierarchy: "Location", Level: "Year",
	}, false)
	require.ErrorIs(t, err, schema.ErrUnknownHierarchy)
	require.ErrorIs(t, err, schema.ErrNotFound)

	err = f.svc.CreateSecondaryAttribute(ctx, project.SecondaryAttribute{
		Dataset: "sales_fact", Column: "region", Name: "Odd", Hierarchy: "Nope", Level: "Year",
	}, false)
	require.ErrorIs(t, err, schema.ErrUnknownHierarchy)
	require.Empty(t, f.store.calls)
}

func strPtr(s string) *string { return &s }

func TestUpdateAggregateFeatureMetadata(t *testing.T) {
	f := newFixture(t)
	err := f.svc.UpdateAggregateFeatureMetadata(ctx, "sales", project.MetadataPatch{
		Caption: strPtr("Gross Sales"),
		Format:  strPtr("Percent"),
	}, true)
	require.NoError(t, err)

	measure := byName(t, dig(t, f.document(t), "cubes", "cube", 0, "attributes", "attribute"), "sales")
	props := measure["properties"]
	require.Equal(t, "Gross Sales", dig(t, props, "caption"))
	require.Equal(t, "Revenue", dig(t, props, "folder"))
	require.Equal(t, "Percent", dig(t, props, "formatting", "format-string"))
}

func TestUpdateMetadataChecksFeatureKind(t *testing.T) {
	f := newFixture(t)
	err := f.svc.UpdateAggregateFeatureMetadata(ctx, "profit_ratio", project.MetadataPatch{Caption: strPtr("x")}, true)
	require.ErrorIs(t, err, schema.ErrUnknownFeature)

	err = f.svc.UpdateCalculatedFeatureMetadata(ctx, "sales", project.MetadataPatch{Caption: strPtr("x")}, true)
	require.ErrorIs(t, err, schema.ErrUnknownFeature)

	err = f.svc.UpdateCalculatedFeatureMetadata(ctx, "missing", project.MetadataPatch{Caption: strPtr("x")}, true)
	require.ErrorIs(t, err, schema.ErrNotFound)
	require.Empty(t, f.store.calls)
}

func TestUpdateCalculatedFeatureMetadata(t *testing.T) {
	f := newFixture(t)
	err := f.svc.UpdateCalculatedFeatureMetadata(ctx, "profit_ratio", project.MetadataPatch{
		Description: strPtr("profit over sales"),
		Format:      strPtr("Percent"),
	}, true)
	require.NoError(t, err)

	member := byName(t, dig(t, f.document(t), "calculated-members", "calculated-member"), "profit_ratio")
	require.Equal(t, "profit over sales", dig(t, member, "properties", "description"))
	require.Equal(t, "Percent", dig(t, member, "properties", "formatting", "named-format"))
	require.Equal(t, "profit_ratio", dig(t, member, "properties", "caption"))
}

func TestUpdateSecondaryAttributeMetadata(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.UpdateSecondaryAttributeMetadata(ctx, "Country", project.MetadataPatch{Folder: strPtr("Places")}, true))
	attr := byName(t, dig(t, f.document(t), "attributes", "keyed-attribute"), "Country")
	require.Equal(t, "Places", dig(t, attr, "properties", "folder"))

	err := f.svc.UpdateSecondaryAttributeMetadata(ctx, "City", project.MetadataPatch{Folder: strPtr("Places")}, true)
	require.ErrorIs(t, err, schema.ErrUnknownFeature)
}

func TestCreateCalculatedColumn(t *testing.T) {
	f := newFixture(t)
	at := remote.ExpressionContext{ConnectionID: "conn-dw", Table: "SALES_FACT", Schema: "public", Database: "dw"}
	f.meta.On("EvaluateExpression", mock.Anything, at, "amount / 2").Return("Decimal", nil).Once()

	require.NoError(t, f.svc.CreateCalculatedColumn(ctx, "sales_fact", "half", "amount / 2", true))
	f.meta.AssertExpectations(t)

	col := byName(t, dig(t, f.document(t), "datasets", "data-set", 0, "physical", "columns"), "half")
	require.Equal(t, "Decimal", dig(t, col, "type", "data-type"))
	require.Equal(t, "amount / 2", dig(t, col, "sqls", 0, "expression"))
}

func TestCreateCalculatedColumnEvaluationFailure(t *testing.T) {
	f := newFixture(t)
	f.meta.On("EvaluateExpression", mock.Anything, mock.Anything, "bad(").
		Return("", &remote.StatusError{StatusCode: 400, Message: "syntax error"})

	err := f.svc.CreateCalculatedColumn(ctx, "sales_fact", "broken", "bad(", true)
	require.ErrorIs(t, err, remote.ErrRemote)
	require.Equal(t, []string{"get"}, f.store.calls)
}

func TestCreateMappedColumns(t *testing.T) {
	f := newFixture(t)
	valid := project.MappedColumns{
		Dataset: "sales_fact", Column: "attrs",
		Names: []string{"weight", "label"}, Types: []string{"Double", "String"},
		KeyTerminator: "=", FieldTerminator: ";", KeyType: "String", ValueType: "String",
	}

	bad := valid
	bad.KeyTerminator = "#"
	require.ErrorIs(t, f.svc.CreateMappedColumns(ctx, bad, true), project.ErrInvalidInput)
	bad = valid
	bad.Types = []string{"Double", "Blob"}
	require.ErrorIs(t, f.svc.CreateMappedColumns(ctx, bad, true), project.ErrInvalidInput)
	bad = valid
	bad.Types = []string{"Double"}
	require.ErrorIs(t, f.svc.CreateMappedColumns(ctx, bad, true), project.ErrInvalidInput)
	require.Empty(t, f.store.calls)

	require.NoError(t, f.svc.CreateMappedColumns(ctx, valid, true))
	mapped := dig(t, f.document(t), "datasets", "data-set", 0, "physical", "map-column", -1)
	require.Equal(t, "attrs", dig(t, mapped, "name"))
	require.Equal(t, "=", dig(t, mapped, "delimited", "key-terminator"))
	require.Equal(t, ";", dig(t, mapped, "delimited", "field-terminator"))
	require.Equal(t, false, dig(t, mapped, "delimited", "prefixed"))
	require.Equal(t, "Double", dig(t, mapped, "columns", "columns", 0, "type", "data-type"))
	require.Equal(t, "label", dig(t, mapped, "columns", "columns", 1, "name"))
}

func TestAddColumnMapping(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.AddColumnMapping(ctx, "sales_fact", "attrs", "shade", "String", true))
	cols := dig(t, f.document(t), "datasets", "data-set", 0, "physical", "map-column", 0, "columns", "columns").([]any)
	require.Len(t, cols, 2)
	require.Equal(t, "shade", dig(t, cols, 1, "name"))

	err := f.svc.AddColumnMapping(ctx, "sales_fact", "region", "shade", "String", true)
	require.ErrorIs(t, err, project.ErrUnknownColumn)
	err = f.svc.AddColumnMapping(ctx, "sales_fact", "attrs", "shade", "Text", true)
	require.ErrorIs(t, err, project.ErrInvalidInput)
}

func TestJoinTable(t *testing.T) {
	f := newFixture(t)
	f.meta.On("RefreshTableCache", mock.Anything, "conn-dw").Return(nil).Once()
	f.meta.On("TableColumns", mock.Anything, "conn-dw", "GEO_DIM", "dw", "public").Return([]remote.TableColumn{
		{Name: "COUNTRY", DataType: "String"},
		{Name: "city", DataType: "String"},
		{Name: "POPULATION", DataType: "Long"},
	}, nil).Once()

	err := f.svc.JoinTable(ctx, project.Join{
		Table: "GEO_DIM", Features: []string{"Country", "City"}, Columns: []string{"country", "City"},
		ConnectionID: "conn-dw", Database: "dw", Schema: "public",
	}, true)
	require.NoError(t, err)
	f.meta.AssertExpectations(t)

	doc := f.document(t)
	ds := byName(t, dig(t, doc, "datasets", "data-set"), "GEO_DIM")
	require.Equal(t, "conn-dw", dig(t, ds, "physical", "connection", "id"))
	require.Equal(t, "dw", dig(t, ds, "physical", "tables", 0, "database"))
	require.Len(t, dig(t, ds, "physical", "columns"), 3)

	ref := dig(t, doc, "cubes", "cube", 0, "data-sets", "data-set-ref", -1)
	require.Equal(t, ds["id"], dig(t, ref, "id"))
	country := dig(t, ref, "logical", "key-ref", 0)
	require.Equal(t, "kr-country", dig(t, country, "id"))
	require.Equal(t, "false", dig(t, country, "complete"))
	require.Equal(t, []any{"COUNTRY"}, dig(t, country, "column"))
	city := dig(t, ref, "logical", "key-ref", 1)
	require.Equal(t, "kr-city", dig(t, city, "id"))
	require.Equal(t, "partial", dig(t, city, "complete"))
	require.Equal(t, []any{"city"}, dig(t, city, "column"))
	attrRef := dig(t, ref, "logical", "attribute-ref", 0)
	require.Equal(t, "ka-city", dig(t, attrRef, "id"))
	require.Equal(t, "partial", dig(t, attrRef, "complete"))
}

func TestJoinTableValidation(t *testing.T) {
	f := newFixture(t)
	err := f.svc.JoinTable(ctx, project.Join{Table: "T", Features: []string{"Country"}, Columns: []string{"a", "b"}, ConnectionID: "c"}, true)
	require.ErrorIs(t, err, project.ErrInvalidInput)
	err = f.svc.JoinTable(ctx, project.Join{Table: "T", Features: []string{"sales"}, ConnectionID: "c"}, true)
	require.ErrorIs(t, err, schema.ErrUnknownFeature)
	err = f.svc.JoinTable(ctx, project.Join{Table: "T", Features: []string{"Country"}}, true)
	require.ErrorIs(t, err, project.ErrInvalidInput)

	f.meta.On("RefreshTableCache", mock.Anything, "c").Return(nil)
	f.meta.On("TableColumns", mock.Anything, "c", "T", "", "").Return([]remote.TableColumn{{Name: "X", DataType: "String"}}, nil)
	err = f.svc.JoinTable(ctx, project.Join{Table: "T", Features: []string{"Country"}, ConnectionID: "c"}, true)
	require.ErrorIs(t, err, project.ErrUnknownColumn)
	require.Empty(t, f.store.calls)
}

func TestUpdateProjectTables(t *testing.T) {
	f := newFixture(t)
	same := []remote.TableColumn{
		{Name: "amount", DataType: "Decimal"},
		{Name: "region", DataType: "String"},
		{Name: "attrs", DataType: "String"},
	}
	f.meta.On("RefreshTableCache", mock.Anything, "conn-dw").Return(nil)
	f.meta.On("TableColumns", mock.Anything, "conn-dw", "SALES_FACT", "dw", "public").Return(same, nil).Once()

	changed, err := f.svc.UpdateProjectTables(ctx, nil, true)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, []string{"get"}, f.store.calls)

	grown := append(same, remote.TableColumn{Name: "units", DataType: "Long"})
	f.meta.On("TableColumns", mock.Anything, "conn-dw", "SALES_FACT", "dw", "public").Return(grown, nil).Once()
	changed, err = f.svc.UpdateProjectTables(ctx, []string{"SALES_FACT"}, true)
	require.NoError(t, err)
	require.True(t, changed)

	cols := dig(t, f.document(t), "datasets", "data-set", 0, "physical", "columns").([]any)
	require.Len(t, cols, 5)
	require.Equal(t, "amount_x2", dig(t, cols, 0, "name"))
	require.Equal(t, "Long", dig(t, byName(t, cols, "units"), "type", "data-type"))
}

func TestUpdateProjectTablesSkipsUnlistedTables(t *testing.T) {
	f := newFixture(t)
	f.meta.On("RefreshTableCache", mock.Anything, "conn-dw").Return(nil)
	changed, err := f.svc.UpdateProjectTables(ctx, []string{"OTHER"}, true)
	require.NoError(t, err)
	require.False(t, changed)
	f.meta.AssertNotCalled(t, "TableColumns", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
