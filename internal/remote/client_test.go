package remote_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/remote"
)

const storedDoc = `{
  "metadata": {"name": "demo"},
  "nbformat": 3,
  "worksheets": [{"cells": [{"cell_type": "code", "input": "x = 1"}]}]
}`

func TestNotebookURL(t *testing.T) {
	cases := []struct {
		server, id, want string
	}{
		{"http://host:8988", "nb1", "http://host:8988/notebooks/nb1"},
		{"http://host:8988/", "nb1", "http://host:8988/notebooks/nb1"},
		{"http://host", "with space", "http://host/notebooks/with%20space"},
	}
	for _, c := range cases {
		if got := remote.NotebookURL(c.server, c.id); got != c.want {
			t.Errorf("NotebookURL(%q, %q) = %q, want %q", c.server, c.id, got, c.want)
		}
	}
}

func TestFetchDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/notebooks/demo" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		io.WriteString(w, storedDoc)
	}))
	defer srv.Close()

	doc, err := remote.NewClient(srv.Client()).FetchDocument(context.Background(), srv.URL, "demo")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Metadata.Name != "demo" {
		t.Errorf("name = %q", doc.Metadata.Name)
	}
	if cells := doc.FirstWorksheet(); len(cells) != 1 || cells[0].Input != "x = 1" {
		t.Errorf("cells = %+v", cells)
	}
}

func TestFetchDocumentNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := remote.NewClient(srv.Client()).FetchDocument(context.Background(), srv.URL, "missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFetchDocumentTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse connections

	_, err := remote.NewClient(nil).FetchDocument(context.Background(), srv.URL, "nb")
	if !errors.Is(err, apperr.ErrTransportFailure) {
		t.Fatalf("err = %v, want ErrTransportFailure", err)
	}
}

func TestPutDocumentReturnsRawStatus(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	status := http.StatusNoContent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	client := remote.NewClient(srv.Client())
	code, err := client.PutDocument(context.Background(), srv.URL, "demo", []byte(storedDoc))
	if err != nil {
		t.Fatal(err)
	}
	if code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", code)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q", gotContentType)
	}
	if string(gotBody) != storedDoc {
		t.Errorf("body altered in transit")
	}

	// A non-204 is reported, not turned into an error.
	status = http.StatusOK
	code, err = client.PutDocument(context.Background(), srv.URL, "demo", []byte(storedDoc))
	if err != nil {
		t.Fatal(err)
	}
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
}
