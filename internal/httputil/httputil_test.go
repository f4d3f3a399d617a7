package httputil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/getsentry/sentry-go"
	"github.com/pierrec/lz4/v4"
)

func TestDecompressPayload(t *testing.T) {
	payload := []byte(`{"ranks":[0],"stacks":[[]]}`)

	brotliBody := new(bytes.Buffer)
	bw := brotli.NewWriter(brotliBody)
	_, _ = bw.Write(payload)
	_ = bw.Close()

	lz4Body := new(bytes.Buffer)
	zw := lz4.NewWriter(lz4Body)
	_, _ = zw.Write(payload)
	_ = zw.Close()

	tests := []struct {
		name     string
		encoding string
		body     []byte
	}{
		{name: "identity", body: payload},
		{name: "brotli", encoding: "br", body: brotliBody.Bytes()},
		{name: "lz4", encoding: "lz4", body: lz4Body.Bytes()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []byte
			h := DecompressPayload(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = io.ReadAll(r.Body)
			}))
			r := httptest.NewRequest(http.MethodPost, "/merge", bytes.NewReader(tt.body))
			if tt.encoding != "" {
				r.Header.Set("Content-Encoding", tt.encoding)
			}
			h.ServeHTTP(httptest.NewRecorder(), r)
			if !bytes.Equal(got, payload) {
				t.Fatalf("expected %s, got %s", payload, got)
			}
		})
	}
}

func TestSetHTTPStatusCodeTag(t *testing.T) {
	e := SetHTTPStatusCodeTag(&sentry.Event{}, &sentry.EventHint{Response: &http.Response{StatusCode: 400}})
	if got := e.Tags[HTTPStatusCodeTag]; got != "400" {
		t.Fatalf("expected %q, got %q", "400", got)
	}
	e = SetHTTPStatusCodeTag(&sentry.Event{}, &sentry.EventHint{})
	if _, exists := e.Tags[HTTPStatusCodeTag]; exists {
		t.Fatal("expected no tag without a response")
	}
}
