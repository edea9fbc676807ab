package vectorstore

import "pulsecorr/internal/config"

// Kind names the three collection families the pipeline maintains.
type Kind string

const (
	KindLog       Kind = "log"
	KindPrototype Kind = "prototype"
	KindTemplate  Kind = "template"
)

// Collections resolves the configured per-kind prefixes into concrete
// collection names, namespaced by OS and embedding id so that switching
// embedding models never mixes incompatible vector spaces.
type Collections struct {
	prefixes config.CollectionPrefixes
	embedID  string
}

// NewCollections builds a resolver from loaded config.
func NewCollections(prefixes config.CollectionPrefixes, embedID string) Collections {
	if embedID == "" {
		embedID = "default"
	}
	return Collections{prefixes: prefixes, embedID: embedID}
}

// Name returns the concrete collection name for a kind + OS pair, e.g.
// "logs_linux__default".
func (c Collections) Name(kind Kind, osName string) string {
	var prefix string
	switch kind {
	case KindPrototype:
		prefix = c.prefixes.Prototype
	case KindTemplate:
		prefix = c.prefixes.Template
	default:
		prefix = c.prefixes.Log
	}
	return prefix + osName + "__" + c.embedID
}
