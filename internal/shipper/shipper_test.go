package shipper

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasks-api/internal/logging"
)

type collector struct {
	mu       sync.Mutex
	bodies   []map[string]any
	headers  []http.Header
	requests int32
	status   int
}

func newCollector(t *testing.T, status int) (*collector, *httptest.Server) {
	t.Helper()
	c := &collector{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&c.requests, 1)
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.headers = append(c.headers, r.Header.Clone())
		c.mu.Unlock()

		w.WriteHeader(c.status)
	}))
	t.Cleanup(srv.Close)
	return c, srv
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	logging.SetLogger(logging.NewTestLogger(&syncWriter{w: &buf}))
	t.Cleanup(func() { logging.Init(logging.DefaultConfig()) })
	return &buf
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func TestRecord_MarshalJSON(t *testing.T) {
	rec := Record{
		Level:     LevelInfo,
		Message:   "task created",
		Timestamp: time.Date(2024, 3, 5, 12, 30, 45, 123456789, time.UTC),
		Meta:      Meta{"id": 7, "level": "spoofed"},
	}

	raw, err := rec.MarshalJSON()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.Equal(t, "info", got["level"])
	assert.Equal(t, "task created", got["message"])
	assert.Equal(t, "2024-03-05T12:30:45.123Z", got["timestamp"])
	assert.Equal(t, float64(7), got["id"])
}

func TestRecord_MarshalJSON_ConvertsToUTC(t *testing.T) {
	zone := time.FixedZone("BRT", -3*60*60)
	rec := Record{Level: LevelError, Timestamp: time.Date(2024, 1, 1, 21, 0, 0, 0, zone)}

	raw, err := rec.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"timestamp":"2024-01-02T00:00:00.000Z"`)
}

func TestShipper_PostsRecord(t *testing.T) {
	c, srv := newCollector(t, http.StatusAccepted)

	s := New(Config{URL: srv.URL, Token: "secret"})
	s.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	s.Error("failed to create task", Meta{"error": "connection refused"})
	s.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&c.requests))
	body := c.bodies[0]
	assert.Equal(t, "error", body["level"])
	assert.Equal(t, "failed to create task", body["message"])
	assert.Equal(t, "connection refused", body["error"])
	assert.Equal(t, "2024-01-01T00:00:00.000Z", body["timestamp"])
	assert.Equal(t, "Bearer secret", c.headers[0].Get("Authorization"))
	assert.Equal(t, "application/json", c.headers[0].Get("Content-Type"))
}

func TestShipper_NoTokenNoAuthHeader(t *testing.T) {
	c, srv := newCollector(t, http.StatusOK)

	s := New(Config{URL: srv.URL})
	s.Info("API started", nil)
	s.Wait()

	require.Len(t, c.headers, 1)
	assert.Empty(t, c.headers[0].Get("Authorization"))
}

func TestShipper_NotConfiguredWarnsLocally(t *testing.T) {
	logs := captureLogs(t)

	s := New(Config{})
	assert.False(t, s.Enabled())

	s.Info("task created", Meta{"id": 1})
	s.Wait()

	assert.Contains(t, logs.String(), "log shipper URL not configured")
	assert.Contains(t, logs.String(), `"level":"warn"`)
}

func TestShipper_NilIsNotConfigured(t *testing.T) {
	logs := captureLogs(t)

	var s *Shipper
	assert.NotPanics(t, func() {
		s.Info("hello", nil)
		s.Error("hello", nil)
		s.Wait()
	})
	assert.Contains(t, logs.String(), "log shipper URL not configured")
}

func TestShipper_NonSuccessStatusIsContained(t *testing.T) {
	logs := captureLogs(t)
	c, srv := newCollector(t, http.StatusInternalServerError)

	s := New(Config{URL: srv.URL})
	assert.NotPanics(t, func() {
		s.Info("task updated", nil)
		s.Wait()
	})

	assert.Equal(t, int32(1), atomic.LoadInt32(&c.requests))
	assert.Contains(t, logs.String(), "failed to ship log record")
	assert.Contains(t, logs.String(), "status 500")
}

func TestShipper_UnreachableIsContained(t *testing.T) {
	logs := captureLogs(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := New(Config{URL: url, Timeout: time.Second})
	assert.NotPanics(t, func() {
		s.Error("failed to list tasks", Meta{"error": "boom"})
		s.Wait()
	})
	assert.Contains(t, logs.String(), "failed to ship log record")
}

func TestShipper_InfoReturnsBeforeDelivery(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(Config{URL: srv.URL})

	done := make(chan struct{})
	go func() {
		s.Info("slow", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Info blocked on the network call")
	}

	close(release)
	s.Wait()
}

func TestShipper_UnencodableMetaIsContained(t *testing.T) {
	logs := captureLogs(t)
	c, srv := newCollector(t, http.StatusOK)

	s := New(Config{URL: srv.URL})
	s.Info("bad meta", Meta{"ch": make(chan int)})
	s.Wait()

	assert.Equal(t, int32(0), atomic.LoadInt32(&c.requests))
	assert.Contains(t, logs.String(), "failed to ship log record")
}

func TestNew_DefaultTimeout(t *testing.T) {
	s := New(Config{URL: "http://example.invalid"})
	assert.Equal(t, 5*time.Second, s.client.Timeout)

	custom := &http.Client{Timeout: time.Millisecond}
	s = New(Config{URL: "http://example.invalid", Client: custom, Timeout: time.Hour})
	assert.Same(t, custom, s.client)
}

func TestShipper_CloseDrainsAndRejects(t *testing.T) {
	logs := captureLogs(t)
	c, srv := newCollector(t, http.StatusOK)

	s := New(Config{URL: srv.URL})
	s.Info("before close", nil)
	s.Close()
	require.Equal(t, int32(1), atomic.LoadInt32(&c.requests))

	s.Info("after close", nil)
	s.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&c.requests))
	assert.Contains(t, logs.String(), "log shipper closed")
	assert.Contains(t, logs.String(), `"message_dropped":"after close"`)
}

func TestShipper_CloseRacesWithShip(t *testing.T) {
	_, srv := newCollector(t, http.StatusOK)
	captureLogs(t)

	s := New(Config{URL: srv.URL})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Info("task created", nil)
		}()
	}
	s.Close()
	wg.Wait()
	s.Wait()
}

func TestShipper_NilClose(t *testing.T) {
	var s *Shipper
	assert.NotPanics(t, s.Close)
}

func TestShipper_LogsShippedAtDebug(t *testing.T) {
	logs := captureLogs(t)
	_, srv := newCollector(t, http.StatusOK)

	s := New(Config{URL: srv.URL})
	s.Info("task deleted", nil)
	s.Close()

	assert.Contains(t, logs.String(), `"level":"debug"`)
	assert.Contains(t, logs.String(), "log record shipped")
}
