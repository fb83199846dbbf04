// Package shipper forwards log records to a remote HTTP collector on a best
// effort basis. Sends never block or fail the caller.
package shipper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"tasks-api/internal/logging"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// timestampLayout matches the millisecond UTC form collectors expect.
const timestampLayout = "2006-01-02T15:04:05.000Z"

type Meta map[string]any

type Record struct {
	Level     Level
	Message   string
	Timestamp time.Time
	Meta      Meta
}

// MarshalJSON flattens Meta into the top level object. level, message and
// timestamp are written last so meta keys cannot shadow them.
func (r Record) MarshalJSON() ([]byte, error) {
	payload := make(map[string]any, len(r.Meta)+3)
	for k, v := range r.Meta {
		payload[k] = v
	}
	payload["level"] = r.Level
	payload["message"] = r.Message
	payload["timestamp"] = r.Timestamp.UTC().Format(timestampLayout)
	return json.Marshal(payload)
}

type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

type Shipper struct {
	url    string
	token  string
	client *http.Client
	now    func() time.Time
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func New(cfg Config) *Shipper {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Shipper{
		url:    cfg.URL,
		token:  cfg.Token,
		client: client,
		now:    time.Now,
	}
}

func (s *Shipper) Info(message string, meta Meta) {
	s.ship(LevelInfo, message, meta)
}

func (s *Shipper) Error(message string, meta Meta) {
	s.ship(LevelError, message, meta)
}

// Enabled reports whether a destination is configured.
func (s *Shipper) Enabled() bool {
	return s != nil && s.url != ""
}

// Wait blocks until every in-flight send has finished.
func (s *Shipper) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

// Close stops accepting records and waits for in-flight sends. Records
// shipped after Close are dropped with a local warning.
func (s *Shipper) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Shipper) ship(level Level, message string, meta Meta) {
	if !s.Enabled() {
		logging.Warn().Str("message_dropped", message).Msg("log shipper URL not configured")
		return
	}

	record := Record{
		Level:     level,
		Message:   message,
		Timestamp: s.now(),
		Meta:      meta,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		logging.Warn().Str("message_dropped", message).Msg("log shipper closed")
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.Error().Interface("panic", r).Msg("log shipper panicked")
			}
		}()

		if err := s.send(context.Background(), record); err != nil {
			logging.Err(err).Str("level", string(level)).Msg("failed to ship log record")
			return
		}
		logging.Debug().Str("level", string(level)).Str("shipped", message).Msg("log record shipped")
	}()
}

func (s *Shipper) send(ctx context.Context, record Record) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode log record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build log request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post log record: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("log collector responded with status %d", resp.StatusCode)
	}

	return nil
}
