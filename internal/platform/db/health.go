package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the pool section of the database health payload.
type PoolStats struct {
	Total         int32  `json:"total"`
	Idle          int32  `json:"idle"`
	Acquired      int32  `json:"acquired"`
	Max           int32  `json:"max"`
	AcquireCount  int64  `json:"acquire_count"`
	AvgAcquireDur string `json:"avg_acquire_duration"`
}

func snapshotPool(pool *pgxpool.Pool) PoolStats {
	stat := pool.Stat()
	var avg time.Duration
	if n := stat.AcquireCount(); n > 0 {
		avg = stat.AcquireDuration() / time.Duration(n)
	}
	return PoolStats{
		Total:         stat.TotalConns(),
		Idle:          stat.IdleConns(),
		Acquired:      stat.AcquiredConns(),
		Max:           stat.MaxConns(),
		AcquireCount:  stat.AcquireCount(),
		AvgAcquireDur: avg.String(),
	}
}

type healthPayload struct {
	Status string    `json:"status"`
	Error  string    `json:"error,omitempty"`
	Pool   PoolStats `json:"pool"`
}

// HealthHandler reports whether the database answers a ping, with a
// snapshot of the pool. A failed ping answers 503.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		payload := healthPayload{Status: "ok", Pool: snapshotPool(pool)}
		if err := pool.Ping(ctx); err != nil {
			payload.Status = "unavailable"
			payload.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, payload)
		}
		return c.JSON(http.StatusOK, payload)
	}
}
