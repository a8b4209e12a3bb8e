// Package parsers decodes entity store documents into the federation model.
package parsers

import (
	"errors"
	"path"
	"strings"

	"github.com/Benny93/fedgraph/internal/federation"
)

// ErrMalformedStore is returned when a document cannot be read as an entity
// store.
var ErrMalformedStore = errors.New("malformed entity store")

// Options configures store decoding.
type Options struct {
	// Sentinel is the parent assumed for entity types without extends.
	Sentinel string

	// MarkerAttribute is the entity attribute that flags an instance.
	MarkerAttribute string

	// NullReference is the parent id, besides "" and "0", that marks a
	// top-level instance.
	NullReference string
}

// DefaultOptions returns the stock decoding options.
func DefaultOptions() Options {
	return Options{
		Sentinel:        federation.DefaultSentinel,
		MarkerAttribute: "finalizer",
		NullReference:   federation.DefaultNullReference,
	}
}

// EntityStoreParser decodes one entity store document.
type EntityStoreParser interface {
	// Parse decodes the document at filePath. The store is named after the
	// file.
	Parse(filePath string, content []byte) (*federation.Store, error)

	// Format returns the document format this parser handles.
	Format() string
}

// StoreName derives a store name from an archive entry path: the base name
// without its extension.
func StoreName(filePath string) string {
	base := path.Base(strings.ReplaceAll(filePath, "\\", "/"))
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// ForPath returns the parser for a file, or nil when no parser handles it.
func ForPath(filePath string, opts Options) EntityStoreParser {
	if strings.EqualFold(path.Ext(filePath), ".xml") {
		return NewXMLStoreParser(opts)
	}
	return nil
}

func flag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no":
		return false
	default:
		return true
	}
}
