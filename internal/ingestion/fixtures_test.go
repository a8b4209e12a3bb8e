package ingestion

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
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

const cyclicXML = `<entityStoreData>
  <entityType name="A" extends="B"/>
  <entityType name="B" extends="A"/>
</entityStoreData>`

type zipFile struct {
	name    string
	content string
}

// buildArchive returns a zip archive holding files in order.
func buildArchive(t *testing.T, files ...zipFile) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// petArchive is a two-store federation with a cross-store reference.
func petArchive(t *testing.T) []byte {
	t.Helper()
	return buildArchive(t,
		zipFile{"META-INF/MANIFEST.MF", "Manifest-Version: 1.0"},
		zipFile{"META-INF/extra.xml", "<not-a-store/>"},
		zipFile{"animals.xml", animalsXML},
		zipFile{"stores/people.xml", peopleXML},
		zipFile{"README.txt", "ignored"},
	)
}

// writeArchive writes data to dir/name and returns the path.
func writeArchive(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}
