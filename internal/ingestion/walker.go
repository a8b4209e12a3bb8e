// Package ingestion turns federation archives into stored federations.
package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/klauspost/compress/zip"

	"github.com/Benny93/fedgraph/internal/parsers"
)

// ErrInvalidArchive is returned when an archive is not a readable zip file.
var ErrInvalidArchive = errors.New("invalid federation archive")

// ArchiveEntry is one entity store document read from an archive.
type ArchiveEntry struct {
	// Name is the entry path inside the archive.
	Name string

	// StoreName is the store the entry decodes to.
	StoreName string

	// Content is the uncompressed entry content.
	Content []byte

	// SHA256 is the hash of the content.
	SHA256 string
}

// Entries skipped in every archive, in gitignore syntax.
var defaultIgnorePatterns = []string{
	"META-INF/",
	"__MACOSX/",
	".DS_Store",
	"._*",
}

// WalkArchive returns the entity store entries of a zip archive in archive
// order. Directories, ignored entries and entries no parser handles are
// skipped. extraPatterns are additional gitignore-style exclusions.
func WalkArchive(r io.ReaderAt, size int64, extraPatterns []string) ([]ArchiveEntry, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}

	matcher := newMatcher(extraPatterns)

	var entries []ArchiveEntry
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		name := strings.ReplaceAll(f.Name, "\\", "/")
		if matcher.Match(splitPath(name), false) {
			continue
		}
		if !isStoreEntry(name) {
			continue
		}

		content, err := readEntry(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}

		hash := sha256.Sum256(content)
		entries = append(entries, ArchiveEntry{
			Name:      name,
			StoreName: parsers.StoreName(name),
			Content:   content,
			SHA256:    hex.EncodeToString(hash[:]),
		})
	}
	return entries, nil
}

// WalkArchiveFile is WalkArchive over a file on disk.
func WalkArchiveFile(archivePath string, extraPatterns []string) ([]ArchiveEntry, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("reading archive info: %w", err)
	}
	return WalkArchive(f, info.Size(), extraPatterns)
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// newMatcher combines the default patterns with extra ones. Blank lines and
// comments in extra are ignored.
func newMatcher(extra []string) gitignore.Matcher {
	patterns := make([]gitignore.Pattern, 0, len(defaultIgnorePatterns)+len(extra))
	for _, p := range defaultIgnorePatterns {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}
	for _, line := range extra {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return gitignore.NewMatcher(patterns)
}

// isStoreEntry checks if an entry has a parser.
func isStoreEntry(name string) bool {
	return parsers.ForPath(name, parsers.Options{}) != nil
}

// splitPath splits an archive path into its components.
func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}

// FederationName derives a federation name from an archive path: the base
// name without its extension.
func FederationName(archivePath string) string {
	base := path.Base(strings.ReplaceAll(archivePath, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}
