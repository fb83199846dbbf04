package monitoring

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const checkTimeout = 5 * time.Second

type Metrics struct {
	mu              sync.RWMutex
	RequestCount    int64            `json:"request_count"`
	RequestDuration time.Duration    `json:"avg_request_duration_ns"`
	ActiveRequests  int64            `json:"active_requests"`
	ErrorCount      int64            `json:"error_count"`
	StatusCodes     map[string]int64 `json:"status_codes"`
	Endpoints       map[string]int64 `json:"endpoint_calls"`
	StartTime       time.Time        `json:"start_time"`
	LastRequest     time.Time        `json:"last_request"`
	totalDuration   time.Duration
}

type HealthCheck struct {
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	Message  string    `json:"message,omitempty"`
	Critical bool      `json:"critical"`
	LastRun  time.Time `json:"last_run"`
}

type HealthCheckFunc func(ctx context.Context) error

// StatsFunc reports a component's counters for /metrics.
type StatsFunc func() map[string]interface{}

type registeredCheck struct {
	fn       HealthCheckFunc
	critical bool
}

type registry struct {
	mu     sync.RWMutex
	checks map[string]registeredCheck
	stats  map[string]StatsFunc
}

var globalMetrics = newMetrics()

var globalRegistry = &registry{
	checks: make(map[string]registeredCheck),
	stats:  make(map[string]StatsFunc),
}

func newMetrics() *Metrics {
	return &Metrics{
		StatusCodes: make(map[string]int64),
		Endpoints:   make(map[string]int64),
		StartTime:   time.Now(),
	}
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		globalMetrics.mu.Lock()
		globalMetrics.ActiveRequests++
		globalMetrics.mu.Unlock()

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		endpoint := c.Request.Method + " " + route

		globalMetrics.mu.Lock()
		defer globalMetrics.mu.Unlock()
		globalMetrics.RequestCount++
		globalMetrics.ActiveRequests--
		globalMetrics.totalDuration += duration
		globalMetrics.RequestDuration = globalMetrics.totalDuration / time.Duration(globalMetrics.RequestCount)
		globalMetrics.LastRequest = time.Now()
		if statusCode >= 400 {
			globalMetrics.ErrorCount++
		}
		globalMetrics.StatusCodes[strconv.Itoa(statusCode)]++
		globalMetrics.Endpoints[endpoint]++
	}
}

// GetMetrics returns a copy of the request counters.
func GetMetrics() *Metrics {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()

	metrics := &Metrics{
		RequestCount:    globalMetrics.RequestCount,
		RequestDuration: globalMetrics.RequestDuration,
		ActiveRequests:  globalMetrics.ActiveRequests,
		ErrorCount:      globalMetrics.ErrorCount,
		StatusCodes:     make(map[string]int64, len(globalMetrics.StatusCodes)),
		Endpoints:       make(map[string]int64, len(globalMetrics.Endpoints)),
		StartTime:       globalMetrics.StartTime,
		LastRequest:     globalMetrics.LastRequest,
	}
	for k, v := range globalMetrics.StatusCodes {
		metrics.StatusCodes[k] = v
	}
	for k, v := range globalMetrics.Endpoints {
		metrics.Endpoints[k] = v
	}
	return metrics
}

// Reset clears request counters, health checks and stats sources.
func Reset() {
	fresh := newMetrics()
	globalMetrics.mu.Lock()
	globalMetrics.RequestCount = 0
	globalMetrics.RequestDuration = 0
	globalMetrics.ActiveRequests = 0
	globalMetrics.ErrorCount = 0
	globalMetrics.StatusCodes = fresh.StatusCodes
	globalMetrics.Endpoints = fresh.Endpoints
	globalMetrics.StartTime = fresh.StartTime
	globalMetrics.LastRequest = time.Time{}
	globalMetrics.totalDuration = 0
	globalMetrics.mu.Unlock()

	globalRegistry.mu.Lock()
	globalRegistry.checks = make(map[string]registeredCheck)
	globalRegistry.stats = make(map[string]StatsFunc)
	globalRegistry.mu.Unlock()
}

type SystemMetrics struct {
	Uptime         string      `json:"uptime"`
	MemoryUsage    MemoryStats `json:"memory"`
	GoroutineCount int         `json:"goroutine_count"`
	CPUCount       int         `json:"cpu_count"`
	GoVersion      string      `json:"go_version"`
}

type MemoryStats struct {
	Alloc        uint64 `json:"alloc_mb"`
	TotalAlloc   uint64 `json:"total_alloc_mb"`
	Sys          uint64 `json:"sys_mb"`
	NumGC        uint32 `json:"num_gc"`
	GCPauseTotal string `json:"gc_pause_total"`
}

func GetSystemMetrics() SystemMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemMetrics{
		Uptime: uptime().String(),
		MemoryUsage: MemoryStats{
			Alloc:        bToMb(m.Alloc),
			TotalAlloc:   bToMb(m.TotalAlloc),
			Sys:          bToMb(m.Sys),
			NumGC:        m.NumGC,
			GCPauseTotal: time.Duration(m.PauseTotalNs).String(),
		},
		GoroutineCount: runtime.NumGoroutine(),
		CPUCount:       runtime.NumCPU(),
		GoVersion:      runtime.Version(),
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

func uptime() time.Duration {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()
	return time.Since(globalMetrics.StartTime).Truncate(time.Second)
}

// RegisterHealthCheck adds a named check. A failing critical check makes
// the service not ready; a failing non-critical one only degrades /health.
func RegisterHealthCheck(name string, critical bool, checkFunc HealthCheckFunc) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.checks[name] = registeredCheck{fn: checkFunc, critical: critical}
}

func RegisterStats(name string, fn StatsFunc) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.stats[name] = fn
}

// RunHealthChecks runs every registered check, each under its own timeout.
func RunHealthChecks(ctx context.Context) map[string]HealthCheck {
	globalRegistry.mu.RLock()
	checks := make(map[string]registeredCheck, len(globalRegistry.checks))
	for name, rc := range globalRegistry.checks {
		checks[name] = rc
	}
	globalRegistry.mu.RUnlock()

	results := make(map[string]HealthCheck, len(checks))
	for name, rc := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := rc.fn(checkCtx)
		cancel()

		check := HealthCheck{
			Name:     name,
			Status:   "healthy",
			Critical: rc.critical,
			LastRun:  time.Now(),
		}
		if err != nil {
			check.Status = "unhealthy"
			check.Message = err.Error()
		}
		results[name] = check
	}
	return results
}

func componentStats() map[string]interface{} {
	globalRegistry.mu.RLock()
	names := make([]string, 0, len(globalRegistry.stats))
	for name := range globalRegistry.stats {
		names = append(names, name)
	}
	sort.Strings(names)
	fns := make([]StatsFunc, len(names))
	for i, name := range names {
		fns[i] = globalRegistry.stats[name]
	}
	globalRegistry.mu.RUnlock()

	out := make(map[string]interface{}, len(names))
	for i, name := range names {
		out[name] = fns[i]()
	}
	return out
}

func MetricsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"application": GetMetrics(),
			"system":      GetSystemMetrics(),
			"components":  componentStats(),
			"timestamp":   time.Now().UTC(),
		})
	}
}

func HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := RunHealthChecks(c.Request.Context())

		overallStatus := "healthy"
		for _, check := range checks {
			if check.Status == "healthy" {
				continue
			}
			if check.Critical {
				overallStatus = "unhealthy"
				break
			}
			overallStatus = "degraded"
		}

		status := http.StatusOK
		if overallStatus == "unhealthy" {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"status":    overallStatus,
			"timestamp": time.Now().UTC(),
			"checks":    checks,
			"uptime":    uptime().String(),
		})
	}
}

func ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, check := range RunHealthChecks(c.Request.Context()) {
			if check.Critical && check.Status != "healthy" {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":    "not ready",
					"reason":    check.Name,
					"timestamp": time.Now().UTC(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
		})
	}
}

func LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"timestamp": time.Now().UTC(),
			"uptime":    uptime().String(),
		})
	}
}
