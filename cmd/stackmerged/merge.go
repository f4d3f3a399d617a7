package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/getsentry/stackmerge/internal/collapsed"
	"github.com/getsentry/stackmerge/internal/errorutil"
	"github.com/getsentry/stackmerge/internal/merge"
	"github.com/getsentry/stackmerge/internal/storageutil"
)

const mergeIDHeader = "Stackmerge-Merge-Id"

type (
	MergeRequest struct {
		Ranks          []uint32        `json:"ranks"`
		Stacks         json.RawMessage `json:"stacks"`
		TruncateMarker string          `json:"truncate_marker"`
		Compact        bool            `json:"compact"`
	}

	// MergeKafkaMessage announces a merged listing.
	MergeKafkaMessage struct {
		ID         string   `json:"merge_id"`
		ObjectName string   `json:"object_name,omitempty"`
		Paths      int      `json:"paths"`
		Ranks      []uint32 `json:"ranks"`
		Received   int64    `json:"received"`
	}
)

func (e *environment) postMerge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	received := time.Now()

	s := sentry.StartSpan(ctx, "processing")
	s.Description = "Read HTTP body"
	var body []byte
	var err error
	if e.config.MaxBodyBytes > 0 {
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, e.config.MaxBodyBytes))
	} else {
		body, err = io.ReadAll(r.Body)
	}
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var req MergeRequest
	s = sentry.StartSpan(ctx, "json.unmarshal")
	s.Description = "Unmarshal merge request"
	err = json.Unmarshal(body, &req)
	s.Finish()
	if err != nil {
		http.Error(w, fmt.Sprintf("%v: %v", errorutil.ErrDecode, err), http.StatusBadRequest)
		return
	}

	hub.Scope().SetContext("Merge", map[string]interface{}{
		"ranks": len(req.Ranks),
		"size":  len(body),
	})

	s = sentry.StartSpan(ctx, "merge")
	s.Description = "Merge stacks"
	trie, err := merge.MergeJSON(req.Stacks, req.Ranks, merge.Options{TruncateMarker: req.TruncateMarker})
	if err == nil {
		err = trie.Validate()
	}
	s.Finish()
	if err != nil {
		status := statusFromError(err)
		if status >= http.StatusInternalServerError {
			hub.CaptureException(err)
		}
		http.Error(w, err.Error(), status)
		return
	}

	var listing bytes.Buffer
	opts := collapsed.Options{Compact: req.Compact}
	records := collapsed.Records(trie)
	for _, rec := range records {
		listing.WriteString(rec.Line(opts))
		listing.WriteByte('\n')
	}

	id := uuid.New().String()
	logger := log.With().Str("merge_id", id).Logger()

	var objectName string
	if e.storage != nil {
		objectName = storageutil.ServiceListingPath(id)
		s = sentry.StartSpan(ctx, "storage.write")
		s.Description = "Write listing"
		err = storageutil.WriteObject(ctx, e.storage, objectName, listing.Bytes())
		s.Finish()
		if err != nil {
			hub.CaptureException(err)
			logger.Error().Err(err).Msg("couldn't store the listing")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	if e.listingsWriter != nil {
		s = sentry.StartSpan(ctx, "json.marshal")
		s.Description = "Marshal merge Kafka message"
		b, err := json.Marshal(MergeKafkaMessage{
			ID:         id,
			ObjectName: objectName,
			Paths:      len(records),
			Ranks:      req.Ranks,
			Received:   received.Unix(),
		})
		s.Finish()
		if err != nil {
			hub.CaptureException(err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		s = sentry.StartSpan(ctx, "processing")
		s.Description = "Send merge to Kafka"
		err = e.listingsWriter.WriteMessages(ctx, kafka.Message{
			Key:   []byte(id),
			Value: b,
		})
		s.Finish()
		if err != nil {
			hub.CaptureException(err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	logger.Debug().Int("paths", len(records)).Int("ranks", len(req.Ranks)).Msg("stacks merged")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set(mergeIDHeader, id)
	_, _ = w.Write(listing.Bytes())
}

// statusFromError tells client mistakes apart from server failures.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, errorutil.ErrDecode),
		errors.Is(err, errorutil.ErrEmptyInput),
		errors.Is(err, errorutil.ErrDuplicateRank),
		errors.Is(err, errorutil.ErrCardinality):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
