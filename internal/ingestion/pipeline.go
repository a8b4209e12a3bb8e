package ingestion

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Benny93/fedgraph/internal/builder"
	"github.com/Benny93/fedgraph/internal/ctxlog"
	"github.com/Benny93/fedgraph/internal/federation"
	"github.com/Benny93/fedgraph/internal/parsers"
	"github.com/Benny93/fedgraph/internal/storage"
)

// Options configures an import.
type Options struct {
	// Name overrides the federation name derived from the archive.
	Name string

	// Parser configures store decoding.
	Parser parsers.Options

	// Build configures the verification builds run before storing.
	Build builder.Options

	// IgnorePatterns are extra gitignore-style archive exclusions.
	IgnorePatterns []string

	// Workers bounds parallel store decoding. Zero uses GOMAXPROCS.
	Workers int

	// Debounce is the quiet period WatchFederation waits for before
	// re-importing. Zero uses DefaultDebounce.
	Debounce time.Duration
}

// PipelineResult summarizes a pipeline run.
type PipelineResult struct {
	Federation          string
	ID                  string
	Stores              int
	EntityTypes         int
	Entities            int
	TypeNodes           int
	TypeEdges           int
	InstanceNodes       int
	InstanceEdges       int
	TypeDiagnostics     int
	InstanceDiagnostics int
	DurationSecs        float64
}

// ProgressCallback is called with phase name and progress (0.0-1.0).
type ProgressCallback func(phase string, progress float64)

// RunPipeline imports the archive at archivePath: it decodes every store,
// builds both graphs to verify the federation, and saves it when store is
// not nil. An inheritance cycle fails the import.
func RunPipeline(
	ctx context.Context,
	archivePath string,
	store storage.StorageBackend,
	opts Options,
	progress ProgressCallback,
) (*federation.Federation, *PipelineResult, error) {
	start := time.Now()
	logger := ctxlog.FromContext(ctx)

	// Phase 1: Archive
	if progress != nil {
		progress("Reading archive", 0.0)
	}
	entries, err := WalkArchiveFile(archivePath, opts.IgnorePatterns)
	if err != nil {
		return nil, nil, fmt.Errorf("reading archive: %w", err)
	}
	if progress != nil {
		progress("Reading archive", 1.0)
	}

	// Phase 2: Stores
	if progress != nil {
		progress("Decoding stores", 0.0)
	}
	stores, err := DecodeEntries(ctx, entries, opts)
	if err != nil {
		return nil, nil, err
	}
	if progress != nil {
		progress("Decoding stores", 1.0)
	}

	name := opts.Name
	if name == "" {
		name = FederationName(archivePath)
	}
	fed := newFederation(name, entries, stores)
	summary := fed.Summary()
	result := &PipelineResult{
		Federation:  fed.Name,
		ID:          fed.ID,
		Stores:      len(fed.Stores),
		EntityTypes: summary.EntityTypes,
		Entities:    summary.Entities,
	}

	// Phase 3: Type graph
	if progress != nil {
		progress("Building type graph", 0.0)
	}
	types, err := builder.Build(fed.Stores, builder.ModeTypes, opts.Build)
	if err != nil {
		return nil, nil, fmt.Errorf("building type graph: %w", err)
	}
	result.TypeNodes = types.Graph.NodeCount()
	result.TypeEdges = types.Graph.EdgeCount()
	result.TypeDiagnostics = len(types.Diagnostics)
	if progress != nil {
		progress("Building type graph", 1.0)
	}

	// Phase 4: Instance graph
	if progress != nil {
		progress("Building instance graph", 0.0)
	}
	instances, err := builder.Build(fed.Stores, builder.ModeInstances, opts.Build)
	if err != nil {
		return nil, nil, fmt.Errorf("building instance graph: %w", err)
	}
	result.InstanceNodes = instances.Graph.NodeCount()
	result.InstanceEdges = instances.Graph.EdgeCount()
	result.InstanceDiagnostics = len(instances.Diagnostics)
	if progress != nil {
		progress("Building instance graph", 1.0)
	}

	// Phase 5: Storage
	if store != nil {
		if progress != nil {
			progress("Loading to storage", 0.0)
		}
		if err := store.SaveFederation(ctx, fed); err != nil {
			return nil, nil, fmt.Errorf("saving federation: %w", err)
		}
		if progress != nil {
			progress("Loading to storage", 1.0)
		}
	}

	result.DurationSecs = time.Since(start).Seconds()
	logger.Info("federation imported",
		"federation", fed.Name,
		"stores", result.Stores,
		"types", result.EntityTypes,
		"entities", result.Entities,
		"diagnostics", result.TypeDiagnostics+result.InstanceDiagnostics,
		"duration", time.Since(start))

	return fed, result, nil
}

// DecodeArchive decodes an archive held in r into a federation named name.
// Nothing is stored.
func DecodeArchive(ctx context.Context, r io.ReaderAt, size int64, name string, opts Options) (*federation.Federation, error) {
	entries, err := WalkArchive(r, size, opts.IgnorePatterns)
	if err != nil {
		return nil, err
	}
	stores, err := DecodeEntries(ctx, entries, opts)
	if err != nil {
		return nil, err
	}
	return newFederation(name, entries, stores), nil
}

// DecodeBytes is DecodeArchive over an in-memory archive.
func DecodeBytes(ctx context.Context, data []byte, name string, opts Options) (*federation.Federation, error) {
	return DecodeArchive(ctx, bytes.NewReader(data), int64(len(data)), name, opts)
}

// Digest hashes the entry names and content hashes in archive order.
// Re-zipping unchanged stores yields the same digest.
func Digest(entries []ArchiveEntry) string {
	h := sha256.New()
	for _, e := range entries {
		fmt.Fprintf(h, "%s\x00%s\n", e.Name, e.SHA256)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DecodeEntries decodes entries in parallel. Stores are returned in entry
// order regardless of completion order.
func DecodeEntries(ctx context.Context, entries []ArchiveEntry, opts Options) ([]federation.Store, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	stores := make([]federation.Store, len(entries))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for i, entry := range entries {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p := parsers.ForPath(entry.Name, opts.Parser)
			if p == nil {
				return fmt.Errorf("no parser for %s", entry.Name)
			}
			s, err := p.Parse(entry.Name, entry.Content)
			if err != nil {
				return err
			}
			stores[i] = *s
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("decoding stores: %w", err)
	}
	return stores, nil
}

func newFederation(name string, entries []ArchiveEntry, stores []federation.Store) *federation.Federation {
	return &federation.Federation{
		ID:         uuid.NewString(),
		Name:       name,
		Digest:     Digest(entries),
		Stores:     stores,
		ImportedAt: time.Now().UTC(),
	}
}
