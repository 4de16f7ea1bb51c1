package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const pingTimeout = 3 * time.Second

// DatabaseHealth summarizes connection pool state for the health endpoint.
type DatabaseHealth struct {
	Reachable       bool   `json:"reachable"`
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Error           string `json:"error,omitempty"`
}

// HealthStatus is the body served on /health.
type HealthStatus struct {
	Status   string         `json:"status"`
	Database DatabaseHealth `json:"database"`
}

// HealthHandler reports readiness for the admission API. Every write path
// here needs the database, so the service is ok only while a ping answers
// within pingTimeout.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
		defer cancel()

		stat := pool.Stat()
		health := HealthStatus{
			Status: "ok",
			Database: DatabaseHealth{
				Reachable:       true,
				TotalConns:      stat.TotalConns(),
				IdleConns:       stat.IdleConns(),
				AcquiredConns:   stat.AcquiredConns(),
				MaxConns:        stat.MaxConns(),
				AcquireCount:    stat.AcquireCount(),
				AcquireDuration: stat.AcquireDuration().String(),
			},
		}

		if err := pool.Ping(ctx); err != nil {
			health.Status = "degraded"
			health.Database.Reachable = false
			health.Database.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, health)
		}
		return c.JSON(http.StatusOK, health)
	}
}
