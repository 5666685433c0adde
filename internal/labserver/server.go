// Package labserver implements a small notebook server for local
// development and integration testing: documents over HTTP backed by a disk
// directory, and an echo kernel over websocket speaking the client's message
// types.
package labserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/nbformat"
	"github.com/starford/ansuz/internal/storage"
)

// Settings configures server behavior.
type Settings struct {
	// AmbiguousEvery, when > 0, makes every Nth applied PUT answer 200
	// instead of 204, reproducing the store quirk the client retries around.
	// Useful for exercising the save-retry path by hand.
	AmbiguousEvery int
}

// Server serves notebooks from a document directory.
type Server struct {
	store    *storage.FS
	cache    *docCache
	logger   *slog.Logger
	settings *Settings
	puts     atomic.Int64
}

// New creates a server over store. A nil settings means no quirks.
func New(store *storage.FS, logger *slog.Logger, settings *Settings) *Server {
	if settings == nil {
		settings = &Settings{}
	}
	return &Server{
		store:    store,
		cache:    newDocCache(),
		logger:   logger,
		settings: settings,
	}
}

// Router returns the HTTP surface: document CRUD plus the kernel websocket
// endpoint.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/notebooks", s.handleList)
	r.Get("/notebooks/{id}", s.handleGet)
	r.Put("/notebooks/{id}", s.handlePut)
	r.Get("/kernels/{id}", s.handleKernel)
	return r
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	docs, err := s.store.List()
	if err != nil {
		s.logger.Error("list failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("list failed"))
		return
	}
	if docs == nil {
		docs = []storage.DocumentInfo{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, ok := s.cache.get(id)
	if !ok {
		var err error
		data, err = s.store.Read(id)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				writeJSON(w, http.StatusNotFound, errorBody("no such notebook"))
				return
			}
			s.logger.Error("read failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("read failed"))
			return
		}
		s.cache.set(id, data)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("unreadable body"))
		return
	}
	if _, err := nbformat.Decode(body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("not a notebook document"))
		return
	}
	if err := s.store.Write(id, body); err != nil {
		s.logger.Error("write failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("write failed"))
		return
	}
	s.cache.set(id, body)

	n := s.puts.Add(1)
	if q := int64(s.settings.AmbiguousEvery); q > 0 && n%q == 0 {
		// The write was applied; only the signal is off.
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}
