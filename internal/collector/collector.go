// Package collector fetches the current call stack of every rank over HTTP.
package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/goccy/go-json"
	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/getsentry/stackmerge/internal/errorutil"
	"github.com/getsentry/stackmerge/internal/rankconfig"
)

const (
	defaultTimeout        = 10 * time.Second
	defaultMaxConcurrency = 64
	defaultRetryBackoff   = 100 * time.Millisecond
)

type (
	Options struct {
		// Timeout bounds every attempt of a request.
		Timeout      time.Duration
		RetryCount   int
		RetryBackoff time.Duration
		// MaxConcurrency caps the number of requests in flight.
		MaxConcurrency int
		// Path is the call stack route served by every rank,
		// rankconfig.DefaultPath when empty.
		Path string
	}

	Collector struct {
		client *httpclient.Client
		opts   Options
	}

	// Batch holds the stacks that were collected. Ranks lists the ranks that
	// answered, in the order of Stacks, followed by the ranks that failed, so
	// pairing Stacks with Ranks positionally attributes every stack to the
	// right rank and failed ranks end up without a stack.
	Batch struct {
		Ranks  []uint32
		Stacks []json.RawMessage
		Failed []uint32
	}
)

func New(opts Options) *Collector {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if opts.Path == "" {
		opts.Path = rankconfig.DefaultPath
	}
	backoff := heimdall.NewConstantBackoff(opts.RetryBackoff, opts.RetryBackoff/2)
	return &Collector{
		client: httpclient.NewClient(
			httpclient.WithHTTPTimeout(opts.Timeout),
			httpclient.WithRetryCount(opts.RetryCount),
			httpclient.WithRetrier(heimdall.NewRetrier(backoff)),
		),
		opts: opts,
	}
}

// Collect requests the stack of every endpoint concurrently and waits for all
// of them. A rank failing to answer is logged and reported, it only fails the
// collection when no rank answered at all.
func (c *Collector) Collect(ctx context.Context, endpoints []rankconfig.Endpoint) (Batch, error) {
	if len(endpoints) == 0 {
		return Batch{}, fmt.Errorf("%w: no endpoints", errorutil.ErrEmptyInput)
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}

	bodies := make([]json.RawMessage, len(endpoints))
	errs := make([]error, len(endpoints))

	var g errgroup.Group
	g.SetLimit(c.opts.MaxConcurrency)
	for i, e := range endpoints {
		i, e := i, e
		g.Go(func() error {
			bodies[i], errs[i] = c.fetch(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	var b Batch
	for i, e := range endpoints {
		if errs[i] != nil {
			log.Warn().Err(errs[i]).Uint32("rank", e.Rank).Str("address", e.Address).Msg("couldn't collect the call stack")
			hub.CaptureException(errs[i])
			b.Failed = append(b.Failed, e.Rank)
			continue
		}
		b.Ranks = append(b.Ranks, e.Rank)
		b.Stacks = append(b.Stacks, bodies[i])
	}
	b.Ranks = append(b.Ranks, b.Failed...)

	log.Info().Int("collected", len(b.Stacks)).Int("failed", len(b.Failed)).Msg("call stacks collected")

	if len(b.Stacks) == 0 {
		return b, fmt.Errorf("%w: no rank answered", errorutil.ErrEmptyInput)
	}
	return b, nil
}

func (c *Collector) fetch(ctx context.Context, e rankconfig.Endpoint) (json.RawMessage, error) {
	url := e.URL(c.opts.Path)

	s := sentry.StartSpan(ctx, "http.client")
	s.Description = "GET " + url
	defer s.Finish()

	req, err := http.NewRequestWithContext(s.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: rank %d: %v", errorutil.ErrFetch, e.Rank, err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("referer", "stackmerge")
	resp, err := c.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: rank %d: %v", errorutil.ErrFetch, e.Rank, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: rank %d: http status %d", errorutil.ErrFetch, e.Rank, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: rank %d: %v", errorutil.ErrFetch, e.Rank, err)
	}
	// A stack is an array of frames, anything else would only fail later
	// when merging the whole batch.
	var frames []json.RawMessage
	if err := json.Unmarshal(body, &frames); err != nil {
		return nil, fmt.Errorf("%w: rank %d: body isn't a stack: %v", errorutil.ErrFetch, e.Rank, err)
	}
	if frames == nil {
		return nil, fmt.Errorf("%w: rank %d: body isn't a stack: null", errorutil.ErrFetch, e.Rank)
	}
	return body, nil
}

// JSON renders the collected stacks as one batch, the input of a merge.
func (b Batch) JSON() ([]byte, error) {
	stacks := b.Stacks
	if stacks == nil {
		stacks = []json.RawMessage{}
	}
	return json.Marshal(stacks)
}
