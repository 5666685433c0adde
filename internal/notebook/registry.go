package notebook

import (
	"context"
	"sync"

	"github.com/starford/ansuz/internal/nbformat"
)

// Fetcher retrieves the persisted document for a notebook. The remote store
// client satisfies this.
type Fetcher interface {
	FetchDocument(ctx context.Context, server, id string) (*nbformat.Document, error)
}

type registryKey struct {
	server string
	id     string
}

// The process-wide registry of open notebooks prevents two in-memory copies
// of the same remote notebook from diverging. Only Lookup, Register and
// Unregister touch the map.
var (
	registryMu sync.Mutex
	registry   = map[registryKey]*Notebook{}
)

// Lookup returns the live notebook registered for (server, id), or nil.
func Lookup(server, id string) *Notebook {
	registryMu.Lock()
	defer registryMu.Unlock()
	return registry[registryKey{server, id}]
}

// Register records nb as the live instance for its identity.
func Register(nb *Notebook) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[registryKey{nb.server, nb.id}] = nb
}

// Unregister removes nb from the registry if it is the registered instance.
func Unregister(nb *Notebook) {
	registryMu.Lock()
	defer registryMu.Unlock()
	key := registryKey{nb.server, nb.id}
	if registry[key] == nb {
		delete(registry, key)
	}
}

// Open returns the live notebook for (server, id), reusing a registered
// instance when one exists. Otherwise it fetches the document, builds the
// notebook, and registers it. The kernel session is not started here.
func Open(ctx context.Context, f Fetcher, server, id string) (*Notebook, error) {
	if nb := Lookup(server, id); nb != nil {
		return nb, nil
	}

	doc, err := f.FetchDocument(ctx, server, id)
	if err != nil {
		return nil, err
	}
	nb := New(server, id)
	if err := nb.LoadWire(doc); err != nil {
		return nil, err
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	key := registryKey{server, id}
	if existing := registry[key]; existing != nil {
		return existing, nil
	}
	registry[key] = nb
	return nb, nil
}
