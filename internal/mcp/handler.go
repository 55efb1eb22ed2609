package mcp

import (
	"context"
	"fmt"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/cubelink/internal/domain/project"
	"github.com/rpggio/cubelink/internal/domain/query"
)

// handler serializes tool calls onto the cube client, which is not safe
// for concurrent use.
type handler struct {
	mu   sync.Mutex
	cube Cube
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (h *handler) listFeatures(_ context.Context, _ *sdkmcp.CallToolRequest, in ListFeaturesParams) (*sdkmcp.CallToolResult, NamesResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var names []string
	switch in.Kind {
	case "", kindAll:
		names = h.cube.ListFeatures(in.Folder)
	case kindCategorical:
		names = h.cube.ListCategorical(in.Folder)
	case kindNumeric:
		names = h.cube.ListNumeric(in.Folder)
	default:
		return nil, NamesResult{}, mapError(fmt.Errorf("%w: kind %q, valid kinds are all, categorical and numeric", query.ErrInvalidInput, in.Kind))
	}
	return nil, NamesResult{Names: nonNil(names)}, nil
}

func (h *handler) listHierarchies(_ context.Context, _ *sdkmcp.CallToolRequest, in ListHierarchiesParams) (*sdkmcp.CallToolResult, NamesResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return nil, NamesResult{Names: nonNil(h.cube.ListHierarchies(in.Folder))}, nil
}

func (h *handler) listHierarchyLevels(_ context.Context, _ *sdkmcp.CallToolRequest, in ListHierarchyLevelsParams) (*sdkmcp.CallToolResult, NamesResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	levels, err := h.cube.ListLevels(in.Hierarchy)
	if err != nil {
		return nil, NamesResult{}, mapError(err)
	}
	return nil, NamesResult{Names: nonNil(levels)}, nil
}

func (h *handler) describeFeature(_ context.Context, _ *sdkmcp.CallToolRequest, in DescribeFeatureParams) (*sdkmcp.CallToolResult, FeatureResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	info, err := h.cube.Describe(in.Feature)
	if err != nil {
		return nil, FeatureResult{}, mapError(err)
	}
	return nil, FeatureResult{info}, nil
}

func (h *handler) listFolders(_ context.Context, _ *sdkmcp.CallToolRequest, _ NoParams) (*sdkmcp.CallToolResult, NamesResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return nil, NamesResult{Names: nonNil(h.cube.ListFolders())}, nil
}

func (h *handler) generateQuery(_ context.Context, _ *sdkmcp.CallToolRequest, in QueryParams) (*sdkmcp.CallToolResult, QueryTextResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	text, err := h.cube.GenerateQuery(in.request())
	if err != nil {
		return nil, QueryTextResult{}, mapError(err)
	}
	return nil, QueryTextResult{Query: text}, nil
}

func (h *handler) getData(ctx context.Context, _ *sdkmcp.CallToolRequest, in QueryParams) (*sdkmcp.CallToolResult, TableResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	table, err := h.cube.GetData(ctx, in.request())
	if err != nil {
		return nil, TableResult{}, mapError(err)
	}
	return nil, tableResult(table), nil
}

func (h *handler) customQuery(ctx context.Context, _ *sdkmcp.CallToolRequest, in CustomQueryParams) (*sdkmcp.CallToolResult, TableResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	opts := h.cube.DefaultQueryOptions()
	if in.Language != "" {
		opts.Language = query.Language(in.Language)
	}
	table, err := h.cube.CustomQuery(ctx, in.Query, opts)
	if err != nil {
		return nil, TableResult{}, mapError(err)
	}
	return nil, tableResult(table), nil
}

func (h *handler) explainQuery(ctx context.Context, _ *sdkmcp.CallToolRequest, in ExplainQueryParams) (*sdkmcp.CallToolResult, QueryTextResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	native, err := h.cube.Explain(ctx, in.Query)
	if err != nil {
		return nil, QueryTextResult{}, mapError(err)
	}
	return nil, QueryTextResult{Query: native}, nil
}

func metadata(m MetadataParams) project.Metadata {
	return project.Metadata{Description: m.Description, Caption: m.Caption, Folder: m.Folder, Format: m.Format}
}

func publish(p *bool) bool { return p == nil || *p }

func (h *handler) createCalculatedFeature(ctx context.Context, _ *sdkmcp.CallToolRequest, in CreateCalculatedFeatureParams) (*sdkmcp.CallToolResult, CreatedResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f := project.CalculatedFeature{Name: in.Name, Expression: in.Expression, Metadata: metadata(in.MetadataParams)}
	if err := h.cube.CreateCalculatedFeature(ctx, f, publish(in.Publish)); err != nil {
		return nil, CreatedResult{}, mapError(err)
	}
	return nil, CreatedResult{Name: in.Name, Published: publish(in.Publish)}, nil
}

func (h *handler) createAggregateFeature(ctx context.Context, _ *sdkmcp.CallToolRequest, in CreateAggregateFeatureParams) (*sdkmcp.CallToolResult, CreatedResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f := project.AggregateFeature{
		Dataset:     in.Dataset,
		Column:      in.Column,
		Name:        in.Name,
		Aggregation: in.Aggregation,
		Metadata:    metadata(in.MetadataParams),
	}
	if err := h.cube.CreateAggregateFeature(ctx, f, publish(in.Publish)); err != nil {
		return nil, CreatedResult{}, mapError(err)
	}
	return nil, CreatedResult{Name: in.Name, Published: publish(in.Publish)}, nil
}

func (h *handler) listSnapshots(ctx context.Context, _ *sdkmcp.CallToolRequest, _ NoParams) (*sdkmcp.CallToolResult, SnapshotsResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	snaps, err := h.cube.ListSnapshots(ctx)
	if err != nil {
		return nil, SnapshotsResult{}, mapError(err)
	}
	return nil, SnapshotsResult{Snapshots: nonNil(snaps)}, nil
}

func (h *handler) refreshProject(ctx context.Context, _ *sdkmcp.CallToolRequest, _ NoParams) (*sdkmcp.CallToolResult, NamesResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.cube.RefreshProject(ctx); err != nil {
		return nil, NamesResult{}, mapError(err)
	}
	return nil, NamesResult{Names: nonNil(h.cube.ListFeatures(""))}, nil
}
