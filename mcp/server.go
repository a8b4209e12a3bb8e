// Package mcp provides the MCP (Model Context Protocol) server for fedgraph.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Benny93/fedgraph/internal/builder"
	"github.com/Benny93/fedgraph/internal/federation"
	"github.com/Benny93/fedgraph/internal/graph"
	"github.com/Benny93/fedgraph/internal/hierarchy"
)

const (
	serverName    = "fedgraph"
	serverVersion = "0.1.0"

	defaultNodeLimit = 50

	overviewURI = "fedgraph://overview"
	schemaURI   = "fedgraph://schema"
)

// Server exposes stored federations as MCP tools and resources.
type Server struct {
	storage StorageBackend
	opts    builder.Options
	server  *sdk.Server
}

// StorageBackend is the part of storage.StorageBackend the server reads.
type StorageBackend interface {
	ListFederations(ctx context.Context) ([]federation.Summary, error)
	LoadFederation(ctx context.Context, name string) (*federation.Federation, error)
	FederationCount() int
}

type listInput struct{}

type graphInput struct {
	Fed    string   `json:"fed" jsonschema:"Federation name (see fed_list)"`
	Edges  []string `json:"edges,omitempty" jsonschema:"Edge classes to keep; all when omitted"`
	Limit  int      `json:"limit,omitempty" jsonschema:"Maximum number of nodes listed"`
	Format string   `json:"format,omitempty" jsonschema:"Output format"`
}

type diagnosticsInput struct {
	Fed  string `json:"fed" jsonschema:"Federation name (see fed_list)"`
	Mode string `json:"mode,omitempty" jsonschema:"Graph mode"`
}

type nodeInput struct {
	Fed  string `json:"fed" jsonschema:"Federation name (see fed_list)"`
	Node string `json:"node" jsonschema:"Type name or instance id"`
	Mode string `json:"mode,omitempty" jsonschema:"Graph mode"`
}

var (
	edgeClassEnum = []any{
		string(graph.ClassExtends), string(graph.ClassComponent),
		string(graph.ClassReferenceHard), string(graph.ClassReferenceSoft),
	}
	modeEnum   = []any{string(builder.ModeTypes), string(builder.ModeInstances)}
	formatEnum = []any{"markdown", "json"}
)

// inputSchema infers the schema of T and restricts the named properties to
// the given values. Array properties restrict their items.
func inputSchema[T any](enums map[string][]any) *jsonschema.Schema {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("inferring tool schema: %v", err))
	}
	for name, values := range enums {
		prop, ok := schema.Properties[name]
		if !ok {
			panic("tool schema has no property " + name)
		}
		if prop.Items != nil {
			prop = prop.Items
		}
		prop.Enum = values
	}
	return schema
}

// NewServer creates a new MCP server. opts configures every graph build.
func NewServer(storage StorageBackend, opts builder.Options) *Server {
	s := &Server{
		storage: storage,
		opts:    opts,
		server: sdk.NewServer(&sdk.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}, nil),
	}
	s.addTools()
	s.addResources()
	return s
}

func (s *Server) addTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "fed_list",
		Description: "List all imported federations with their stores and entity counts.",
		InputSchema: inputSchema[listInput](nil),
	}, func(ctx context.Context, _ *sdk.CallToolRequest, _ listInput) (*sdk.CallToolResult, any, error) {
		return textResult(handleList(ctx, s.storage))
	})

	graphSchema := inputSchema[graphInput](map[string][]any{"edges": edgeClassEnum, "format": formatEnum})
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "fed_type_graph",
		Description: "Build the type graph of a federation: one node per entity type, with extends, component and reference edges.",
		InputSchema: graphSchema,
	}, func(ctx context.Context, _ *sdk.CallToolRequest, in graphInput) (*sdk.CallToolResult, any, error) {
		return textResult(s.handleGraph(ctx, builder.ModeTypes, in))
	})
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "fed_instance_graph",
		Description: "Build the instance graph of a federation: one node per entity instance, with parent and resolved reference edges.",
		InputSchema: graphSchema,
	}, func(ctx context.Context, _ *sdk.CallToolRequest, in graphInput) (*sdk.CallToolResult, any, error) {
		return textResult(s.handleGraph(ctx, builder.ModeInstances, in))
	})

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "fed_diagnostics",
		Description: "List the problems found while building a federation graph (dangling types, unresolved references, ...).",
		InputSchema: inputSchema[diagnosticsInput](map[string][]any{"mode": modeEnum}),
	}, func(ctx context.Context, _ *sdk.CallToolRequest, in diagnosticsInput) (*sdk.CallToolResult, any, error) {
		return textResult(s.handleDiagnostics(ctx, in))
	})

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "fed_node",
		Description: "Show one node of a federation graph with its incoming and outgoing edges.",
		InputSchema: inputSchema[nodeInput](map[string][]any{"mode": modeEnum}),
	}, func(ctx context.Context, _ *sdk.CallToolRequest, in nodeInput) (*sdk.CallToolResult, any, error) {
		return textResult(s.handleNode(ctx, in))
	})
}

func (s *Server) addResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         overviewURI,
		Name:        "Federation Overview",
		Description: "Imported federations with store and entity counts",
		MIMEType:    "text/markdown",
	}, func(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
		return markdownResource(req.Params.URI, getOverview(ctx, s.storage)), nil
	})
	s.server.AddResource(&sdk.Resource{
		URI:         schemaURI,
		Name:        "Graph Schema",
		Description: "Node kinds, edge kinds and properties of federation graphs",
		MIMEType:    "text/markdown",
	}, func(_ context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
		return markdownResource(req.Params.URI, getSchema()), nil
	})
}

// Run serves MCP over newline-delimited JSON-RPC on stdin and stdout until
// the client disconnects or ctx is cancelled. stdin is closed on shutdown
// when it is an io.ReadCloser.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return errors.New("stdin and stdout must not be nil")
	}
	reader, ok := stdin.(io.ReadCloser)
	if !ok {
		reader = io.NopCloser(stdin)
	}
	return s.server.Run(ctx, &sdk.IOTransport{
		Reader: reader,
		Writer: nopWriteCloser{stdout},
	})
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// textResult wraps a tool's markdown output. A returned error is reported to
// the client as a failed tool call.
func textResult(text string, err error) (*sdk.CallToolResult, any, error) {
	if err != nil {
		return nil, nil, err
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: text}},
	}, nil, nil
}

func markdownResource(uri, text string) *sdk.ReadResourceResult {
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{{URI: uri, MIMEType: "text/markdown", Text: text}},
	}
}

// build loads a federation and builds its graph. Build failures the user can
// act on are returned as text, not as errors.
func (s *Server) build(ctx context.Context, fedName string, mode builder.Mode) (*builder.Result, string, error) {
	if fedName == "" {
		return nil, "No federation provided. Use `fed_list` to see imported federations.", nil
	}
	fed, err := s.storage.LoadFederation(ctx, fedName)
	if err != nil {
		return nil, fmt.Sprintf("Federation '%s' not found. Use `fed_list` to see imported federations.", fedName), nil
	}

	opts := s.opts
	opts.Logger = slog.New(slog.DiscardHandler)
	result, err := builder.Build(fed.Stores, mode, opts)
	if err != nil {
		var cycle *hierarchy.CycleError
		if errors.As(err, &cycle) {
			return nil, fmt.Sprintf("Federation '%s' has an inheritance cycle through: %s", fedName, strings.Join(cycle.Types, ", ")), nil
		}
		return nil, "", err
	}
	return result, "", nil
}

func handleList(ctx context.Context, storage StorageBackend) (string, error) {
	summaries, err := storage.ListFederations(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("## Imported Federations\n\n")
	if len(summaries) == 0 {
		sb.WriteString("No federations imported yet. Run `fedgraph import <archive>` first.\n")
		return sb.String(), nil
	}

	for _, fs := range summaries {
		sb.WriteString(fmt.Sprintf("- **%s**: %d stores, %d entity types, %d entities (imported %s)\n",
			fs.Name, len(fs.Stores), fs.EntityTypes, fs.Entities, fs.ImportedAt.Format("2006-01-02 15:04")))
		if len(fs.Stores) > 0 {
			sb.WriteString(fmt.Sprintf("  Stores: %s\n", strings.Join(fs.Stores, ", ")))
		}
	}
	sb.WriteString("\nNext: Use `fed_type_graph` or `fed_instance_graph` on a federation.")

	return sb.String(), nil
}

func (s *Server) handleGraph(ctx context.Context, mode builder.Mode, in graphInput) (string, error) {
	classes, err := graph.ParseEdgeClasses(in.Edges...)
	if err != nil {
		return "", err
	}
	limit := defaultNodeLimit
	if in.Limit > 0 {
		limit = in.Limit
	}

	result, msg, err := s.build(ctx, in.Fed, mode)
	if result == nil {
		return msg, err
	}

	g := result.Graph
	if len(classes) > 0 {
		g = g.Filter(classes...)
	}

	if in.Format == "json" {
		data, err := json.Marshal(g)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	return formatGraph(in.Fed, result, g, limit), nil
}

func formatGraph(fedName string, result *builder.Result, g *graph.Graph, limit int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s graph of %s\n\n", strings.TrimSuffix(string(result.Mode), "s"), fedName))
	sb.WriteString(fmt.Sprintf("**Nodes:** %d  **Edges:** %d  **Diagnostics:** %d\n\n",
		g.NodeCount(), g.EdgeCount(), len(result.Diagnostics)))

	for _, kind := range []graph.EdgeKind{graph.EdgeExtends, graph.EdgeComponent, graph.EdgeReference} {
		if n := g.CountEdgesByKind(kind); n > 0 {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", kind, n))
		}
	}

	nodes := g.Nodes()
	sb.WriteString("\n### Nodes\n\n")
	for i, n := range nodes {
		if i == limit {
			sb.WriteString(fmt.Sprintf("\n... and %d more\n", len(nodes)-limit))
			break
		}
		root := ""
		if n.IsRoot {
			root = " root"
		}
		sb.WriteString(fmt.Sprintf("- `%s` %s [%s%s]", n.ID, n.Label, n.GroupKey, root))
		if out := g.GetOutgoing(n.ID); len(out) > 0 {
			targets := make([]string, 0, len(out))
			for _, e := range out {
				targets = append(targets, fmt.Sprintf("%s→%s", e.Class(), e.Target))
			}
			sb.WriteString(": " + strings.Join(targets, ", "))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nNext: Use `fed_node` on a node for its incoming and outgoing edges.")
	return sb.String()
}

func (s *Server) handleDiagnostics(ctx context.Context, in diagnosticsInput) (string, error) {
	mode, err := builder.ParseMode(in.Mode)
	if err != nil {
		return "", err
	}

	result, msg, err := s.build(ctx, in.Fed, mode)
	if result == nil {
		return msg, err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Diagnostics for %s (%s)\n\n", in.Fed, mode))
	if len(result.Diagnostics) == 0 {
		sb.WriteString("No problems found.\n")
		return sb.String(), nil
	}
	for _, d := range result.Diagnostics {
		sb.WriteString(fmt.Sprintf("- [%s] `%s` %s\n", d.Severity, d.Code, d.Message))
	}
	return sb.String(), nil
}

func (s *Server) handleNode(ctx context.Context, in nodeInput) (string, error) {
	if in.Node == "" {
		return "No node provided", nil
	}
	mode, err := builder.ParseMode(in.Mode)
	if err != nil {
		return "", err
	}

	result, msg, err := s.build(ctx, in.Fed, mode)
	if result == nil {
		return msg, err
	}

	g := result.Graph
	n := g.GetNode(in.Node)
	if n == nil {
		return fmt.Sprintf("Node '%s' not found in the %s graph of %s", in.Node, mode, in.Fed), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Node: **%s** (%s)\n\n", n.ID, n.Label))
	sb.WriteString(fmt.Sprintf("- Store: %s\n", n.GroupKey))
	sb.WriteString(fmt.Sprintf("- Root: %t\n", n.IsRoot))
	if n.HasMarker {
		sb.WriteString("- Marker: set\n")
	}
	for _, key := range []string{"type", "parentId", "parent", "rootType", "abstract"} {
		if v, ok := n.Properties[key]; ok && v != "" {
			sb.WriteString(fmt.Sprintf("- %s: %v\n", key, v))
		}
	}

	writeEdges := func(title string, edges []*graph.GraphEdge, other func(*graph.GraphEdge) string) {
		if len(edges) == 0 {
			return
		}
		sb.WriteString(fmt.Sprintf("\n## %s (%d)\n", title, len(edges)))
		for _, e := range edges {
			line := fmt.Sprintf("- %s `%s`", e.Class(), other(e))
			if e.Label != "" {
				line += " via " + e.Label
			}
			if e.UnresolvedTarget {
				line += " (unresolved)"
			}
			sb.WriteString(line + "\n")
		}
	}
	out := g.GetOutgoing(n.ID)
	incoming := g.GetIncoming(n.ID)
	writeEdges("Outgoing", out, func(e *graph.GraphEdge) string { return e.Target })
	writeEdges("Incoming", incoming, func(e *graph.GraphEdge) string { return e.Source })
	if len(out) == 0 && len(incoming) == 0 {
		sb.WriteString("\nNo edges. The node is isolated.\n")
	}

	return sb.String(), nil
}

func getOverview(ctx context.Context, storage StorageBackend) string {
	var sb strings.Builder
	sb.WriteString("# fedgraph Overview\n\n")
	sb.WriteString(fmt.Sprintf("**Federations:** %d\n\n", storage.FederationCount()))

	summaries, err := storage.ListFederations(ctx)
	if err != nil {
		sb.WriteString("Listing failed: " + err.Error() + "\n")
		return sb.String()
	}
	for _, fs := range summaries {
		sb.WriteString(fmt.Sprintf("- %s: %d stores, %d entity types, %d entities\n",
			fs.Name, len(fs.Stores), fs.EntityTypes, fs.Entities))
	}
	return sb.String()
}

func getSchema() string {
	var sb strings.Builder
	sb.WriteString("# fedgraph Graph Schema\n\n")
	sb.WriteString("## Node Kinds\n\n")
	sb.WriteString("| Kind | Mode | Key Properties |\n")
	sb.WriteString("|------|------|----------------|\n")
	sb.WriteString("| `type` | types | abstract, store, rootType, rootDomainIndex, parent |\n")
	sb.WriteString("| `instance` | instances | type, store, parentId, hasMarker |\n")
	sb.WriteString("\n## Edge Kinds\n\n")
	sb.WriteString("| Kind | Source → Target | Properties |\n")
	sb.WriteString("|------|-----------------|------------|\n")
	sb.WriteString("| `extends` | Type → Parent type | - |\n")
	sb.WriteString("| `component` | Type → Component type, Instance → Parent instance | cardinality |\n")
	sb.WriteString("| `reference` | Type → Target type, Instance → Target instance | label (field), cardinality, isHard |\n")
	sb.WriteString("\n## Edge Classes\n\n")
	sb.WriteString("`extends`, `component`, `referenceHard`, `referenceSoft`\n")

	return sb.String()
}
