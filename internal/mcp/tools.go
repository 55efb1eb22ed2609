package mcp

import (
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

func readOnly() *sdkmcp.ToolAnnotations {
	return &sdkmcp.ToolAnnotations{ReadOnlyHint: true}
}

func registerTools(server *sdkmcp.Server, h *handler) {
	// Schema
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_features",
		Description: "List the visible features of the model, optionally by folder and kind",
		Annotations: readOnly(),
	}, h.listFeatures)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_hierarchies",
		Description: "List the visible hierarchies of the model",
		Annotations: readOnly(),
	}, h.listHierarchies)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_hierarchy_levels",
		Description: "List the levels of a hierarchy from the top down",
		Annotations: readOnly(),
	}, h.listHierarchyLevels)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "describe_feature",
		Description: "Get the kind, caption, folder and description of a feature",
		Annotations: readOnly(),
	}, h.describeFeature)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_folders",
		Description: "List the folders features and hierarchies are grouped in",
		Annotations: readOnly(),
	}, h.listFolders)

	// Queries
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "generate_query",
		Description: "Build the SQL for a feature query without running it",
		Annotations: readOnly(),
	}, h.generateQuery)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_data",
		Description: "Query features through the semantic layer; rows are sorted by the categorical features",
		Annotations: readOnly(),
	}, h.getData)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "custom_query",
		Description: "Run a hand-written SQL or MDX query against the published project",
		Annotations: readOnly(),
	}, h.customQuery)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "explain_query",
		Description: "Return the warehouse SQL the server generates for a query",
	}, h.explainQuery)

	// Model changes
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "create_calculated_feature",
		Description: "Add a numeric feature defined by an MDX expression",
	}, h.createCalculatedFeature)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "create_aggregate_feature",
		Description: "Add a numeric feature aggregating a dataset column",
	}, h.createAggregateFeature)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_snapshots",
		Description: "List the project's snapshots, newest first",
		Annotations: readOnly(),
	}, h.listSnapshots)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "refresh_project",
		Description: "Reload the project and schema after changes made elsewhere",
	}, h.refreshProject)
}
