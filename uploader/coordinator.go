// Package uploader drains the local store to the training service and clears
// only what the service has acknowledged.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"drive_collector/config"
	"drive_collector/logger"
	"drive_collector/models"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	maxResponseBytes = 1 << 20
	maxErrorBody     = 512
)

// Batch is the part of the store a drain cycle needs
type Batch interface {
	FetchAll(ctx context.Context) ([]models.SampleRecord, error)
	ClearThrough(ctx context.Context, maxID uint64) (int64, error)
}

// Session is the outcome of a successful drain
type Session struct {
	SessionID int64
	RequestID string
	Records   int
	Dropped   int
}

// Result pairs a drain outcome for asynchronous delivery
type Result struct {
	Session Session
	Err     error
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(c HTTPClient) Option {
	return func(co *Coordinator) { co.client = c }
}

// WithRequestID replaces the uuid generator for X-Request-ID
func WithRequestID(fn func() string) Option {
	return func(co *Coordinator) { co.newID = fn }
}

// Coordinator runs drain cycles, one at a time
type Coordinator struct {
	store    Batch
	client   HTTPClient
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	url      string
	token    string
	platform string
	timeout  time.Duration
	newID    func() string

	mu sync.Mutex
}

// New builds a coordinator from the upload section of the configuration
func New(store Batch, cfg config.UploadConfig, opts ...Option) (*Coordinator, error) {
	if cfg.Token == "" {
		return nil, ErrMissingCredential
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upload url %q", cfg.URL)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Coordinator{
		store:    store,
		client:   &http.Client{Timeout: timeout},
		breaker:  newBreaker(cfg.BreakerFailures, time.Duration(cfg.BreakerCooldownSeconds)*time.Second),
		url:      cfg.URL,
		token:    cfg.Token,
		platform: cfg.Platform,
		timeout:  timeout,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Drain uploads everything currently stored and, once the service returns a
// session id, deletes exactly the uploaded snapshot. On every failure before
// the acknowledgement the store is left untouched.
func (c *Coordinator) Drain(ctx context.Context) (Session, error) {
	if !c.mu.TryLock() {
		return Session{}, ErrCycleInProgress
	}
	defer c.mu.Unlock()

	records, err := c.store.FetchAll(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("upload: %w", err)
	}
	if len(records) == 0 {
		logger.Printf("upload: nothing to send")
		return Session{}, ErrNoData
	}

	var maxID uint64
	for _, r := range records {
		if r.ID > maxID {
			maxID = r.ID
		}
	}

	data, dropped := Transform(records)
	if len(data) == 0 {
		logger.Warnf("upload: all %d records invalid", len(records))
		return Session{}, ErrNoValidData
	}

	sess := Session{RequestID: c.newID(), Records: len(data), Dropped: dropped}

	// Once issued the exchange completes regardless of the caller; the
	// acknowledgement must not be lost to a cancellation.
	detached := context.WithoutCancel(ctx)

	id, err := c.send(detached, sess.RequestID, data)
	if err != nil {
		logger.LogResult("upload", false, fmt.Sprintf("request=%s records=%d: %v", sess.RequestID, len(data), err))
		return Session{}, err
	}
	sess.SessionID = id

	cleared, err := c.store.ClearThrough(detached, maxID)
	if err != nil {
		logger.Errorf("upload: session %d acknowledged but clear failed: %v", id, err)
		return sess, fmt.Errorf("upload acknowledged as session %d: %w", id, err)
	}

	logger.LogResult("upload", true, fmt.Sprintf("session=%d request=%s records=%d dropped=%d cleared=%d",
		id, sess.RequestID, sess.Records, sess.Dropped, cleared))
	return sess, nil
}

// DrainAsync runs Drain on its own goroutine and delivers the result once
func (c *Coordinator) DrainAsync(ctx context.Context) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		s, err := c.Drain(ctx)
		ch <- Result{Session: s, Err: err}
	}()
	return ch
}

func (c *Coordinator) send(ctx context.Context, requestID string, data []WireRecord) (int64, error) {
	body, err := json.Marshal(Payload{Platform: c.platform, Data: data})
	if err != nil {
		return 0, fmt.Errorf("upload: encode payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.token)
	req.Header.Set("X-Request-ID", requestID)

	logger.Debugf("upload: POST %s request=%s records=%d bytes=%d", c.url, requestID, len(data), len(body))

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.client.Do(req)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(raw)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return 0, &ServerRejectedError{StatusCode: resp.StatusCode, Body: snippet}
	}

	return parseSessionID(raw)
}

type ackResponse struct {
	IsError *bool `json:"isError"`
	Data    *struct {
		SessionID json.RawMessage `json:"sessionId"`
	} `json:"data"`
}

// parseSessionID accepts only {"isError": false, "data": {"sessionId": <integer>}}
func parseSessionID(raw []byte) (int64, error) {
	var ack ackResponse
	if err := json.Unmarshal(raw, &ack); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if ack.IsError == nil {
		return 0, fmt.Errorf("%w: isError missing", ErrMalformedResponse)
	}
	if *ack.IsError {
		return 0, fmt.Errorf("%w: service reported an error", ErrMalformedResponse)
	}
	if ack.Data == nil || len(ack.Data.SessionID) == 0 || bytes.Equal(ack.Data.SessionID, []byte("null")) {
		return 0, fmt.Errorf("%w: sessionId missing", ErrMalformedResponse)
	}

	var id int64
	if err := json.Unmarshal(ack.Data.SessionID, &id); err != nil {
		return 0, fmt.Errorf("%w: sessionId %s is not an integer", ErrMalformedResponse, ack.Data.SessionID)
	}
	return id, nil
}

// IsTransient reports whether a later drain of the same backlog may succeed
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrServerRejected) || errors.Is(err, ErrCycleInProgress)
}
