package builder

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Benny93/fedgraph/internal/federation"
	"github.com/Benny93/fedgraph/internal/resolver"
)

// ErrUnknownMode is returned for a graph mode other than types or instances.
var ErrUnknownMode = errors.New("unknown graph mode")

// Mode selects which graph Build produces.
type Mode string

const (
	// ModeTypes builds one node per entity type.
	ModeTypes Mode = "types"

	// ModeInstances builds one node per entity instance.
	ModeInstances Mode = "instances"
)

// ParseMode parses a mode name. An empty name selects ModeTypes.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "types", "type":
		return ModeTypes, nil
	case "instances", "instance":
		return ModeInstances, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Weights are the layout weights attached to edges.
type Weights struct {
	Extends       int `yaml:"extends" json:"extends"`
	Component     int `yaml:"component" json:"component"`
	HardReference int `yaml:"hard_reference" json:"hardReference"`
	SoftReference int `yaml:"soft_reference" json:"softReference"`
	Parent        int `yaml:"parent" json:"parent"`
}

// DefaultWeights returns the stock weights. Extends binds tightest, soft
// references loosest.
func DefaultWeights() Weights {
	return Weights{
		Extends:       10,
		Component:     5,
		HardReference: 5,
		SoftReference: 3,
		Parent:        5,
	}
}

func (w Weights) reference(hard bool) int {
	if hard {
		return w.HardReference
	}
	return w.SoftReference
}

// Options configures a build. Zero fields take their defaults.
type Options struct {
	// Sentinel is the implicit base type name.
	Sentinel string

	// RootAliases are container types whose children count as top-level.
	RootAliases []string

	// NameFields are the fields tried, in order, for instance labels.
	NameFields []string

	// LabelMaxLength bounds the name part of instance labels, in runes.
	LabelMaxLength int

	// NullReference is the literal treated as "no target".
	NullReference string

	// Weights are the edge layout weights.
	Weights Weights

	// EdgeAlpha is the opacity applied to edge colors.
	EdgeAlpha float64

	// Logger receives every diagnostic at debug level. Nil discards.
	Logger *slog.Logger
}

// DefaultOptions returns the stock build options.
func DefaultOptions() Options {
	return Options{
		Sentinel:       federation.DefaultSentinel,
		RootAliases:    []string{"RootChild"},
		NameFields:     []string{"name"},
		LabelMaxLength: 20,
		NullReference:  resolver.DefaultNullReference,
		Weights:        DefaultWeights(),
		EdgeAlpha:      0.5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Sentinel == "" {
		o.Sentinel = d.Sentinel
	}
	if o.RootAliases == nil {
		o.RootAliases = d.RootAliases
	}
	if len(o.NameFields) == 0 {
		o.NameFields = d.NameFields
	}
	if o.LabelMaxLength <= 0 {
		o.LabelMaxLength = d.LabelMaxLength
	}
	if o.NullReference == "" {
		o.NullReference = d.NullReference
	}
	if o.Weights == (Weights{}) {
		o.Weights = d.Weights
	}
	if o.EdgeAlpha <= 0 || o.EdgeAlpha > 1 {
		o.EdgeAlpha = d.EdgeAlpha
	}
	return o
}
