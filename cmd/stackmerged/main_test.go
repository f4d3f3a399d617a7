package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/andybalholm/brotli"

	"github.com/getsentry/stackmerge/internal/storageprovider"
	"github.com/getsentry/stackmerge/internal/storageutil"
	"github.com/getsentry/stackmerge/internal/testutil"
)

const (
	mainFrame = `{"file":"a.c","func":"main","ip":"0x4005d0","lineno":1}`
	fooFrame  = `{"file":"b.c","func":"foo","ip":"0x400700","lineno":5}`
)

func newTestEnvironment(t *testing.T) (*environment, string) {
	t.Helper()
	root := t.TempDir()
	return &environment{
		config:  ServiceConfig{Environment: "test", MaxBodyBytes: 1 << 20},
		storage: &storageprovider.Directory{Root: root},
	}, root
}

func serve(t *testing.T, e *environment, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	router, err := e.newRouter()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestGetHealth(t *testing.T) {
	e, _ := newTestEnvironment(t)
	w := serve(t, e, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected %d, got %d", http.StatusNoContent, w.Code)
	}
}

func TestPostMerge(t *testing.T) {
	body := `{"ranks":[0,1,2],"stacks":[[` + fooFrame + `,` + mainFrame + `],[` + fooFrame + `,` + mainFrame + `],[` + mainFrame + `]]}`
	want := "main (a.c:1)@0-2| @2|0-1 1\n" +
		"main (a.c:1)@0-2|;foo (b.c:5)@0-1|2 @0-1|2 1\n"

	e, root := newTestEnvironment(t)
	w := serve(t, e, httptest.NewRequest(http.MethodPost, "/merge", bytes.NewBufferString(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if diff := testutil.Diff(w.Body.String(), want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	id := w.Header().Get(mergeIDHeader)
	if id == "" {
		t.Fatal("expected a merge id")
	}
	stored, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(storageutil.ServiceListingPath(id))))
	if err != nil {
		t.Fatalf("we should be able to read the stored listing: %v", err)
	}
	if diff := testutil.Diff(string(stored), want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestPostMergeCompact(t *testing.T) {
	body := `{"ranks":[0,1,2],"stacks":[[` + mainFrame + `],[` + mainFrame + `],[` + mainFrame + `]],"compact":true}`

	var compressed bytes.Buffer
	bw := brotli.NewWriter(&compressed)
	_, _ = bw.Write([]byte(body))
	_ = bw.Close()

	e, _ := newTestEnvironment(t)
	e.storage = nil
	r := httptest.NewRequest(http.MethodPost, "/merge", &compressed)
	r.Header.Set("Content-Encoding", "br")
	w := serve(t, e, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if diff := testutil.Diff(w.Body.String(), "main (a.c:1)@0-2| 1\n"); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestPostMergeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "malformed body", body: `{"ranks":[0]`, want: http.StatusBadRequest},
		{name: "malformed stacks", body: `{"ranks":[0],"stacks":[[{"func":"main"}]]}`, want: http.StatusBadRequest},
		{name: "null stack", body: `{"ranks":[0,1],"stacks":[null]}`, want: http.StatusBadRequest},
		{name: "missing stacks", body: `{"ranks":[0]}`, want: http.StatusBadRequest},
		{name: "no ranks", body: `{"stacks":[[` + mainFrame + `]]}`, want: http.StatusBadRequest},
		{name: "duplicate ranks", body: `{"ranks":[1,1],"stacks":[[` + mainFrame + `]]}`, want: http.StatusBadRequest},
		{name: "too many stacks", body: `{"ranks":[0],"stacks":[[` + mainFrame + `],[` + mainFrame + `]]}`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEnvironment(t)
			w := serve(t, e, httptest.NewRequest(http.MethodPost, "/merge", bytes.NewBufferString(tt.body)))
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}
