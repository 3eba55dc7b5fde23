package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"comment-insights/shared/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RunHistory lists recorded pipeline runs for the status endpoint
type RunHistory interface {
	RecentRuns(ctx context.Context, limit int) ([]storage.Run, error)
}

type HealthServer struct {
	monitor *Monitor
	history RunHistory
	port    int
	logger  *zap.Logger
	engine  *gin.Engine
}

// NewHealthServer builds the health server; history may be nil
func NewHealthServer(monitor *Monitor, history RunHistory, port int, logger *zap.Logger) *HealthServer {
	if port == 0 {
		port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	h := &HealthServer{
		monitor: monitor,
		history: history,
		port:    port,
		logger:  logger,
		engine:  gin.New(),
	}
	h.engine.Use(gin.Recovery())
	h.engine.GET("/health", h.healthHandler)
	h.engine.GET("/status", h.statusHandler)
	return h
}

// Handler exposes the routes for embedding and tests
func (h *HealthServer) Handler() http.Handler {
	return h.engine
}

// Start serves until ctx is cancelled
func (h *HealthServer) Start(ctx context.Context) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", h.port),
		Handler:           h.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	h.logger.Info("Health check server starting", zap.Int("port", h.port))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("Health server error", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			h.logger.Warn("Health server shutdown", zap.Error(err))
		}
	}()
}

func (h *HealthServer) healthHandler(c *gin.Context) {
	if h.monitor.IsHealthy() {
		c.String(http.StatusOK, "OK - %s", h.monitor.GetStatusSummary())
		return
	}
	c.String(http.StatusServiceUnavailable, "Service unhealthy - %s", h.monitor.GetStatusSummary())
}

type runView struct {
	ID         string     `json:"id"`
	Command    string     `json:"command"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (h *HealthServer) statusHandler(c *gin.Context) {
	body := gin.H{"monitor": h.monitor.Snapshot()}

	if h.history != nil {
		runs, err := h.history.RecentRuns(c.Request.Context(), 5)
		if err != nil {
			h.logger.Warn("Failed to load run history", zap.Error(err))
		} else {
			views := make([]runView, 0, len(runs))
			for _, r := range runs {
				v := runView{ID: r.ID, Command: r.Command, Status: string(r.Status), Error: r.Error, StartedAt: r.StartedAt}
				if !r.FinishedAt.IsZero() {
					finished := r.FinishedAt
					v.FinishedAt = &finished
				}
				views = append(views, v)
			}
			body["recent_runs"] = views
		}
	}

	c.JSON(http.StatusOK, body)
}
