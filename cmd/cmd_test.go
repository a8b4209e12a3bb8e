package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/fedgraph/internal/builder"
	"github.com/Benny93/fedgraph/internal/config"
	"github.com/Benny93/fedgraph/internal/graph"
	"github.com/Benny93/fedgraph/internal/hierarchy"
	"github.com/Benny93/fedgraph/internal/storage"
)

const animalsXML = `<entityStoreData>
  <entityType name="Animal"/>
  <entityType name="Dog" extends="Animal">
    <field name="owner" type="@Person" cardinality="1"/>
  </entityType>
  <entity entityPK="d1" parentPK="0" type="Dog">
    <fval name="owner"><value><key type="Person"><id field="name" value="Alice"/></key></value></fval>
  </entity>
</entityStoreData>`

const peopleXML = `<entityStoreData>
  <entityType name="Person">
    <field name="name" type="string"/>
  </entityType>
  <entity entityPK="p1" parentPK="0" type="Person">
    <fval name="name"><value>Alice</value></fval>
  </entity>
</entityStoreData>`

// writeArchive writes a zip archive of files (name, content pairs) to
// dir/name and returns its path.
func writeArchive(t *testing.T, dir, name string, files ...string) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i := 0; i+1 < len(files); i += 2 {
		w, err := zw.Create(files[i])
		require.NoError(t, err)
		_, err = w.Write([]byte(files[i+1]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))
	return p
}

func newGlobals(t *testing.T) (*Globals, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &Globals{
		Store:  filepath.Join(t.TempDir(), "store"),
		stdout: &out,
	}, &out
}

func importPets(t *testing.T, g *Globals) {
	t.Helper()
	archive := writeArchive(t, t.TempDir(), "pets.fed", "animals.xml", animalsXML, "people.xml", peopleXML)
	require.NoError(t, (&ImportCmd{Archive: archive}).Run(g))
}

func TestImportCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("PrintsSummary", func(t *testing.T) {
		t.Parallel()
		g, out := newGlobals(t)

		importPets(t, g)

		assert.Contains(t, out.String(), "Imported pets")
		assert.Contains(t, out.String(), "Stores:          2")
		assert.Contains(t, out.String(), "Type graph:      3 nodes, 2 edges")
		assert.Contains(t, out.String(), "Instance graph:  2 nodes, 1 edges")
	})

	t.Run("Quiet", func(t *testing.T) {
		t.Parallel()
		g, out := newGlobals(t)
		g.Quiet = true

		importPets(t, g)
		assert.Empty(t, out.String())
	})

	t.Run("NameOverride", func(t *testing.T) {
		t.Parallel()
		g, out := newGlobals(t)
		archive := writeArchive(t, t.TempDir(), "x.fed", "animals.xml", animalsXML)

		require.NoError(t, (&ImportCmd{Archive: archive, Name: "zoo"}).Run(g))
		assert.Contains(t, out.String(), "Imported zoo")
	})

	t.Run("Cycle", func(t *testing.T) {
		t.Parallel()
		g, _ := newGlobals(t)
		archive := writeArchive(t, t.TempDir(), "loop.fed", "loop.xml",
			`<entityStoreData><entityType name="A" extends="B"/><entityType name="B" extends="A"/></entityStoreData>`)

		err := (&ImportCmd{Archive: archive}).Run(g)
		assert.ErrorIs(t, err, hierarchy.ErrHierarchyCycle)
	})
}

func TestGraphCmd_Run(t *testing.T) {
	t.Parallel()

	g, out := newGlobals(t)
	importPets(t, g)

	run := func(t *testing.T, cmd *GraphCmd) builder.Document {
		t.Helper()
		out.Reset()
		require.NoError(t, cmd.Run(g))
		var doc builder.Document
		require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
		return doc
	}

	t.Run("Types", func(t *testing.T) {
		doc := run(t, &GraphCmd{Name: "pets", Mode: "types"})
		assert.Equal(t, builder.ModeTypes, doc.Mode)
		assert.Len(t, doc.Nodes, 3)
		assert.Len(t, doc.Edges, 2)
	})

	t.Run("InstancesFiltered", func(t *testing.T) {
		doc := run(t, &GraphCmd{Name: "pets", Mode: "instances", Edges: []string{"referenceSoft"}})
		assert.Len(t, doc.Nodes, 2)
		assert.Empty(t, doc.Edges)
	})

	t.Run("OutFile", func(t *testing.T) {
		out.Reset()
		path := filepath.Join(t.TempDir(), "graph.json")
		require.NoError(t, (&GraphCmd{Name: "pets", Mode: "types", Out: path, Indent: true}).Run(g))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "{\n  "))
		assert.Contains(t, out.String(), "Wrote types graph of pets")
	})

	t.Run("UnknownFederation", func(t *testing.T) {
		err := (&GraphCmd{Name: "nope", Mode: "types"}).Run(g)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("UnknownEdgeClass", func(t *testing.T) {
		err := (&GraphCmd{Name: "pets", Edges: []string{"calls"}}).Run(g)
		assert.ErrorIs(t, err, graph.ErrUnknownEdgeClass)
	})
}

func TestGraphCmd_NoStore(t *testing.T) {
	t.Parallel()
	g, _ := newGlobals(t)

	err := (&GraphCmd{Name: "pets", Mode: "types"}).Run(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Run 'fedgraph import' first")
}

func TestDiagnosticsCmd_Run(t *testing.T) {
	t.Parallel()

	g, out := newGlobals(t)
	archive := writeArchive(t, t.TempDir(), "wild.fed", "s.xml",
		`<entityStoreData><entityType name="Dog" extends="Wolf"/></entityStoreData>`)
	require.NoError(t, (&ImportCmd{Archive: archive}).Run(g))

	t.Run("Text", func(t *testing.T) {
		out.Reset()
		require.NoError(t, (&DiagnosticsCmd{Name: "wild", Mode: "types"}).Run(g))
		assert.Contains(t, out.String(), "dangling-extends")
		assert.Contains(t, out.String(), "diagnostics")
	})

	t.Run("JSON", func(t *testing.T) {
		out.Reset()
		require.NoError(t, (&DiagnosticsCmd{Name: "wild", Mode: "types", JSON: true}).Run(g))

		var items []map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &items))
		require.NotEmpty(t, items)
		assert.Equal(t, "dangling-extends", items[0]["code"])
	})
}

func TestListCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("NoStore", func(t *testing.T) {
		t.Parallel()
		g, out := newGlobals(t)

		require.NoError(t, (&ListCmd{}).Run(g))
		assert.Contains(t, out.String(), "No federations imported")
	})

	t.Run("Imported", func(t *testing.T) {
		t.Parallel()
		g, out := newGlobals(t)
		importPets(t, g)
		out.Reset()

		require.NoError(t, (&ListCmd{}).Run(g))
		assert.Contains(t, out.String(), "Imported federations:")
		assert.Contains(t, out.String(), "pets")
		assert.Contains(t, out.String(), "animals, people")
	})
}

func TestDeleteCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("Aborted", func(t *testing.T) {
		t.Parallel()
		g, out := newGlobals(t)
		importPets(t, g)
		g.stdin = strings.NewReader("n\n")

		require.NoError(t, (&DeleteCmd{Name: "pets"}).Run(g))
		assert.Contains(t, out.String(), "Aborted")

		out.Reset()
		require.NoError(t, (&ListCmd{}).Run(g))
		assert.Contains(t, out.String(), "pets")
	})

	t.Run("Confirmed", func(t *testing.T) {
		t.Parallel()
		g, out := newGlobals(t)
		importPets(t, g)
		g.stdin = strings.NewReader("y\n")

		require.NoError(t, (&DeleteCmd{Name: "pets"}).Run(g))
		assert.Contains(t, out.String(), "Deleted pets")
	})

	t.Run("Missing", func(t *testing.T) {
		t.Parallel()
		g, _ := newGlobals(t)

		err := (&DeleteCmd{Name: "pets", Force: true}).Run(g)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestGlobals_Load(t *testing.T) {
	t.Parallel()

	t.Run("FlagsOverride", func(t *testing.T) {
		t.Parallel()
		g := &Globals{Store: "/tmp/x", LogFormat: "json", Verbose: true}

		cfg, err := g.load()
		require.NoError(t, err)
		assert.Equal(t, "/tmp/x", cfg.StorePath)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("QuietWins", func(t *testing.T) {
		t.Parallel()
		g := &Globals{Store: "/tmp/x", Verbose: true, Quiet: true}

		cfg, err := g.load()
		require.NoError(t, err)
		assert.Equal(t, "error", cfg.LogLevel)
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		t.Parallel()
		g := &Globals{Store: "/tmp/x", LogLevel: "trace"}

		_, err := g.load()
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "fedgraph.yaml")
		require.NoError(t, os.WriteFile(path, []byte("store_path: /srv/feds\nport: 9090\n"), 0o644))

		cfg, err := (&Globals{Config: path}).load()
		require.NoError(t, err)
		assert.Equal(t, "/srv/feds", cfg.StorePath)
		assert.Equal(t, 9090, cfg.Port)
	})
}

func TestCLI_Execute(t *testing.T) {
	t.Parallel()

	t.Run("UnknownCommand", func(t *testing.T) {
		t.Parallel()
		err := NewCLI().Execute([]string{"analyze"})
		assert.Error(t, err)
	})

	t.Run("BadModeEnum", func(t *testing.T) {
		t.Parallel()
		err := NewCLI().Execute([]string{"--store", t.TempDir(), "graph", "pets", "--mode", "calls"})
		assert.Error(t, err)
	})

	t.Run("List", func(t *testing.T) {
		t.Parallel()
		cli := NewCLI()
		var out bytes.Buffer
		cli.stdout = &out

		require.NoError(t, cli.Execute([]string{"--store", filepath.Join(t.TempDir(), "none"), "list"}))
		assert.Contains(t, out.String(), "No federations imported")
	})
}
