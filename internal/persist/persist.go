// Package persist implements the save protocol: serialize the document,
// checkpoint it locally, submit it to the remote store, and disambiguate the
// store's status signal with a bounded retry.
package persist

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checkpoint"
	"github.com/starford/ansuz/internal/events"
	"github.com/starford/ansuz/internal/nbformat"
	"github.com/starford/ansuz/internal/notebook"
)

// Putter is the slice of the remote store client the manager needs.
type Putter interface {
	PutDocument(ctx context.Context, server, id string, body []byte) (int, error)
}

// Settings configures the save protocol.
type Settings struct {
	// MaxRetries bounds the ambiguous-response retries. The total number of
	// submissions is at most MaxRetries+1.
	MaxRetries int
	// DiscardOutputs is evaluated at serialization time; nil keeps outputs.
	DiscardOutputs notebook.DiscardPolicy
	// Checkpoints, when non-nil, receives a snapshot before every save.
	Checkpoints checkpoint.Storer
	// CheckpointKeep bounds snapshots retained per notebook; 0 keeps all.
	CheckpointKeep int
}

// DefaultSettings returns the default save settings.
func DefaultSettings() *Settings {
	return &Settings{MaxRetries: 1}
}

// Manager submits documents to the remote store.
//
// The store signals success for a full-document replace with 204 No Content.
// Any other status on an otherwise-successful call is treated as ambiguous
// rather than failed: the observed transport occasionally loses the expected
// signal on a correctly-applied write. Ambiguous responses are retried up to
// MaxRetries times; transport-level failures are surfaced immediately and
// never retried, since retrying those would double-submit.
type Manager struct {
	store    Putter
	logger   *slog.Logger
	settings *Settings
}

// NewManager creates a save manager.
func NewManager(store Putter, logger *slog.Logger, settings *Settings) *Manager {
	if settings == nil {
		settings = DefaultSettings()
	}
	return &Manager{store: store, logger: logger, settings: settings}
}

// Save serializes nb and replaces the server copy. Exactly one of saved or
// save_failed is triggered on nb's bus per call, after a saving event at the
// start. On success the dirty flag is cleared.
func (m *Manager) Save(ctx context.Context, nb *notebook.Notebook) error {
	bus := nb.Bus()
	bus.Trigger(events.Saving, nb)

	data, err := nbformat.Encode(nb.WireDocument(m.settings.DiscardOutputs))
	if err != nil {
		bus.Trigger(events.SaveFailed, err)
		return err
	}
	m.checkpoint(nb, data)

	for retry := 0; ; retry++ {
		status, err := m.store.PutDocument(ctx, nb.Server(), nb.ID(), data)
		if err != nil {
			// Network error, not an ambiguous-success case.
			bus.Trigger(events.SaveFailed, err)
			return err
		}
		if status == http.StatusNoContent {
			nb.SetDirty(false)
			bus.Trigger(events.Saved, nb)
			return nil
		}
		if retry >= m.settings.MaxRetries {
			err := fmt.Errorf("save %s/%s: status %d after %d attempts: %w",
				nb.Server(), nb.ID(), status, retry+1, apperr.ErrAmbiguousSaveResponse)
			bus.Trigger(events.SaveFailed, err)
			return err
		}
		m.logger.Info("ambiguous save response, retrying",
			slog.String("notebook", nb.ID()),
			slog.Int("status", status),
			slog.Int("retry", retry+1))
	}
}

func (m *Manager) checkpoint(nb *notebook.Notebook, data []byte) {
	cp := m.settings.Checkpoints
	if cp == nil {
		return
	}
	if err := cp.Put(nb.Server(), nb.ID(), data); err != nil {
		m.logger.Warn("checkpoint failed", slog.String("error", err.Error()))
		return
	}
	if keep := m.settings.CheckpointKeep; keep > 0 {
		if err := cp.Prune(nb.Server(), nb.ID(), keep); err != nil {
			m.logger.Warn("checkpoint prune failed", slog.String("error", err.Error()))
		}
	}
}
