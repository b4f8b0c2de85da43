package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	log     *logger.Logger
	checks  map[string]Pinger
	timeout time.Duration
}

// NewHealthHandler takes named readiness checks, e.g. "database" and "vector_store".
func NewHealthHandler(log *logger.Logger, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{log: log.With("handler", "HealthHandler"), checks: checks, timeout: 5 * time.Second}
}

// GET /healthcheck, GET /api/health/status
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

// GET /api/health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		details = make(map[string]string, len(h.checks))
		failed  bool
	)
	var g errgroup.Group
	for name, ping := range h.checks {
		name, ping := name, ping
		g.Go(func() error {
			err := ping(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = true
				details[name] = "unavailable"
				h.log.Warn("Readiness check failed", "check", name, "error", err)
				return nil
			}
			details[name] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	body := gin.H{"checks": details, "timestamp": time.Now().UTC().Format(time.RFC3339)}
	if failed {
		body["status"] = "unavailable"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	c.JSON(http.StatusOK, body)
}
