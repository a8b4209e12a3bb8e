// Package cmd provides CLI command implementations for fedgraph.
package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/Benny93/fedgraph/internal/builder"
	"github.com/Benny93/fedgraph/internal/config"
	"github.com/Benny93/fedgraph/internal/ctxlog"
	"github.com/Benny93/fedgraph/internal/diagnostics"
	"github.com/Benny93/fedgraph/internal/graph"
	"github.com/Benny93/fedgraph/internal/ingestion"
	"github.com/Benny93/fedgraph/internal/server"
	"github.com/Benny93/fedgraph/internal/storage"
	"github.com/Benny93/fedgraph/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
)

// Globals holds the flags shared by every command.
type Globals struct {
	Config    string `help:"Path to a YAML config file" type:"path" env:"FEDGRAPH_CONFIG"`
	Store     string `help:"Federation store directory (overrides config)" type:"path"`
	LogLevel  string `help:"Log level: debug, info, warn, error (overrides config)"`
	LogFormat string `help:"Log format: text or json (overrides config)"`
	Verbose   bool   `short:"v" help:"Enable verbose output"`
	Quiet     bool   `short:"q" help:"Suppress non-essential output"`

	stdout io.Writer `kong:"-"`
	stdin  io.Reader `kong:"-"`
}

func (g *Globals) out() io.Writer {
	if g.stdout != nil {
		return g.stdout
	}
	return os.Stdout
}

func (g *Globals) in() io.Reader {
	if g.stdin != nil {
		return g.stdin
	}
	return os.Stdin
}

// load resolves the configuration: file, then environment, then flags.
func (g *Globals) load() (config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return config.Config{}, err
	}
	if g.Store != "" {
		cfg.StorePath = g.Store
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.LogFormat = g.LogFormat
	}
	if g.Verbose {
		cfg.LogLevel = "debug"
	}
	if g.Quiet {
		cfg.LogLevel = "error"
	}
	return cfg, cfg.Validate()
}

// context returns a context carrying the configured logger that is
// cancelled on SIGINT or SIGTERM.
func (g *Globals) context(cfg config.Config) (context.Context, context.CancelFunc) {
	logger := ctxlog.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// openStore opens the badger store. A read-only open of a store that was
// never written fails with a hint to import first.
func openStore(cfg config.Config, readOnly bool) (*storage.BadgerBackend, error) {
	if readOnly {
		if _, err := os.Stat(cfg.StorePath); os.IsNotExist(err) {
			return nil, fmt.Errorf("no federation store at %s. Run 'fedgraph import' first", cfg.StorePath)
		}
	} else if err := os.MkdirAll(cfg.StorePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	store := storage.NewBadgerBackend()
	if err := store.Initialize(cfg.StorePath, readOnly); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return store, nil
}

// ImportCmd imports a federation archive into the store.
type ImportCmd struct {
	Archive string `arg:"" type:"existingfile" help:"Federation archive (.fed zip)"`
	Name    string `short:"n" help:"Federation name (defaults to the archive name)"`
}

// Run executes the import command.
func (c *ImportCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	ctx, cancel := g.context(cfg)
	defer cancel()

	store, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	w := g.out()
	opts := cfg.ImportOptions()
	opts.Name = c.Name

	var progress ingestion.ProgressCallback
	if !g.Quiet {
		green.Fprintf(w, "Importing %s\n", c.Archive)
		progress = func(phase string, pct float64) {
			fmt.Fprintf(w, "\r\033[K%s (%.0f%%)", phase, pct*100)
		}
	}

	_, result, err := ingestion.RunPipeline(ctx, c.Archive, store, opts, progress)
	if err != nil {
		return fmt.Errorf("running pipeline: %w", err)
	}

	if g.Quiet {
		return nil
	}
	fmt.Fprintln(w)
	printResult(w, result)
	return nil
}

func printResult(w io.Writer, result *ingestion.PipelineResult) {
	green.Fprintf(w, "✓ Imported %s\n", result.Federation)
	fmt.Fprintf(w, "  Stores:          %d\n", result.Stores)
	fmt.Fprintf(w, "  Entity types:    %d\n", result.EntityTypes)
	fmt.Fprintf(w, "  Entities:        %d\n", result.Entities)
	fmt.Fprintf(w, "  Type graph:      %d nodes, %d edges\n", result.TypeNodes, result.TypeEdges)
	fmt.Fprintf(w, "  Instance graph:  %d nodes, %d edges\n", result.InstanceNodes, result.InstanceEdges)
	if n := result.TypeDiagnostics + result.InstanceDiagnostics; n > 0 {
		yellow.Fprintf(w, "  Diagnostics:     %d\n", n)
	}
	fmt.Fprintf(w, "  Duration:        %.2fs\n", result.DurationSecs)
}

// GraphCmd prints the graph of a stored federation as JSON.
type GraphCmd struct {
	Name   string   `arg:"" help:"Federation name"`
	Mode   string   `short:"m" enum:"types,instances" default:"types" help:"Graph mode (types, instances)"`
	Edges  []string `short:"e" help:"Edge classes to keep: extends, component, referenceHard, referenceSoft"`
	Out    string   `short:"o" type:"path" help:"Write to file instead of stdout"`
	Indent bool     `help:"Indent the JSON output"`
}

// Run executes the graph command.
func (c *GraphCmd) Run(g *Globals) error {
	classes, err := graph.ParseEdgeClasses(c.Edges...)
	if err != nil {
		return err
	}

	result, err := buildStored(g, c.Name, c.Mode)
	if err != nil {
		return err
	}

	var data []byte
	if c.Indent {
		data, err = json.MarshalIndent(result.Document(classes...), "", "  ")
	} else {
		data, err = json.Marshal(result.Document(classes...))
	}
	if err != nil {
		return fmt.Errorf("encoding graph: %w", err)
	}
	data = append(data, '\n')

	if c.Out == "" {
		_, err = g.out().Write(data)
		return err
	}
	if err := os.WriteFile(c.Out, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", c.Out, err)
	}
	if !g.Quiet {
		green.Fprintf(g.out(), "Wrote %s graph of %s to %s\n", result.Mode, c.Name, c.Out)
	}
	return nil
}

// DiagnosticsCmd prints the diagnostics of building a stored federation.
type DiagnosticsCmd struct {
	Name string `arg:"" help:"Federation name"`
	Mode string `short:"m" enum:"types,instances" default:"types" help:"Graph mode (types, instances)"`
	JSON bool   `help:"Print diagnostics as JSON"`
}

// Run executes the diagnostics command.
func (c *DiagnosticsCmd) Run(g *Globals) error {
	result, err := buildStored(g, c.Name, c.Mode)
	if err != nil {
		return err
	}

	w := g.out()
	if c.JSON {
		return json.NewEncoder(w).Encode(result.Diagnostics)
	}

	if len(result.Diagnostics) == 0 {
		green.Fprintf(w, "No problems found in %s (%s)\n", c.Name, result.Mode)
		return nil
	}
	for _, d := range result.Diagnostics {
		switch d.Severity {
		case diagnostics.SeverityInfo:
			cyan.Fprintln(w, d.String())
		default:
			yellow.Fprintln(w, d.String())
		}
	}
	fmt.Fprintf(w, "\n%d diagnostics\n", len(result.Diagnostics))
	return nil
}

// buildStored loads a federation read-only and builds its graph.
func buildStored(g *Globals, name, modeName string) (*builder.Result, error) {
	mode, err := builder.ParseMode(modeName)
	if err != nil {
		return nil, err
	}
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	ctx, cancel := g.context(cfg)
	defer cancel()

	store, err := openStore(cfg, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	fed, err := store.LoadFederation(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}

	opts := cfg.BuildOptions()
	opts.Logger = ctxlog.FromContext(ctx)
	return builder.Build(fed.Stores, mode, opts)
}

// ListCmd lists all imported federations.
type ListCmd struct{}

// Run executes the list command.
func (c *ListCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}

	w := g.out()
	if _, err := os.Stat(cfg.StorePath); os.IsNotExist(err) {
		fmt.Fprintln(w, "No federations imported")
		return nil
	}

	store, err := openStore(cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	summaries, err := store.ListFederations(context.Background())
	if err != nil {
		return fmt.Errorf("listing federations: %w", err)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No federations imported")
		return nil
	}

	fmt.Fprintln(w, "Imported federations:")
	for _, s := range summaries {
		fmt.Fprintf(w, "\n  %s\n", s.Name)
		fmt.Fprintf(w, "    Stores:       %s\n", strings.Join(s.Stores, ", "))
		fmt.Fprintf(w, "    Entity types: %d\n", s.EntityTypes)
		fmt.Fprintf(w, "    Entities:     %d\n", s.Entities)
		fmt.Fprintf(w, "    Imported:     %s\n", s.ImportedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// DeleteCmd deletes a federation from the store.
type DeleteCmd struct {
	Name  string `arg:"" help:"Federation name"`
	Force bool   `short:"f" help:"Skip confirmation"`
}

// Run executes the delete command.
func (c *DeleteCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}

	w := g.out()
	if !c.Force {
		fmt.Fprintf(w, "Delete federation %s? [y/N] ", c.Name)
		response, _ := bufio.NewReader(g.in()).ReadString('\n')
		response = strings.TrimSpace(response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(w, "Aborted")
			return nil
		}
	}

	store, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.DeleteFederation(context.Background(), c.Name); err != nil {
		return fmt.Errorf("deleting %s: %w", c.Name, err)
	}

	green.Fprintf(w, "Deleted %s\n", c.Name)
	return nil
}

// ServeCmd starts the HTTP API.
type ServeCmd struct {
	Port  int    `short:"p" help:"Listen port (overrides config)"`
	Watch string `short:"w" type:"existingfile" help:"Archive to import and re-import on change"`
}

// Run executes the serve command.
func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Port = c.Port
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	ctx, cancel := g.context(cfg)
	defer cancel()
	logger := ctxlog.FromContext(ctx)

	store, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if c.Watch != "" {
		go func() {
			err := ingestion.WatchFederation(ctx, c.Watch, store, cfg.ImportOptions(), nil)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watch stopped", "error", err)
			}
		}()
	}

	srv := server.New(store, server.Options{
		Import:         cfg.ImportOptions(),
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		Logger:         logger,
	})
	return srv.ListenAndServe(ctx, cfg.Addr())
}

// MCPCmd starts the MCP server.
type MCPCmd struct{}

// Run executes the mcp command.
func (c *MCPCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	ctx, cancel := g.context(cfg)
	defer cancel()

	store, err := openStore(cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// stdout carries JSON-RPC only.
	err = mcp.NewServer(store, cfg.BuildOptions()).Run(ctx, g.in(), g.out())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// WatchCmd re-imports an archive whenever it changes.
type WatchCmd struct {
	Archive string `arg:"" type:"existingfile" help:"Federation archive (.fed zip)"`
	Name    string `short:"n" help:"Federation name (defaults to the archive name)"`
}

// Run executes the watch command.
func (c *WatchCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	ctx, cancel := g.context(cfg)
	defer cancel()

	store, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	w := g.out()
	fmt.Fprintln(w, "## Watch Mode")
	fmt.Fprintf(w, "Watching %s for changes (Ctrl+C to stop)\n\n", c.Archive)

	opts := cfg.ImportOptions()
	opts.Name = c.Name
	err = ingestion.WatchFederation(ctx, c.Archive, store, opts, func(result *ingestion.PipelineResult, err error) {
		if err != nil {
			yellow.Fprintf(w, "Import failed: %v\n", err)
			return
		}
		printResult(w, result)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch error: %w", err)
	}

	fmt.Fprintln(w, "Watch mode stopped.")
	return nil
}

// CLI is the root Kong command structure.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version information"`

	// Commands
	Import      ImportCmd      `cmd:"" help:"Import a federation archive"`
	Graph       GraphCmd       `cmd:"" help:"Print the type or instance graph of a federation as JSON"`
	Diagnostics DiagnosticsCmd `cmd:"" help:"Show problems found while building a federation graph"`
	List        ListCmd        `cmd:"" help:"List imported federations"`
	Delete      DeleteCmd      `cmd:"" help:"Delete an imported federation"`
	Serve       ServeCmd       `cmd:"" help:"Start the HTTP API"`
	MCP         MCPCmd         `cmd:"" help:"Start MCP server (stdio transport)"`
	Watch       WatchCmd       `cmd:"" help:"Re-import an archive whenever it changes"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	parser, err := kong.New(c,
		kong.Name("fedgraph"),
		kong.Description("Type and instance graphs for entity-store federations"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kongCtx.Run(&c.Globals)
}
