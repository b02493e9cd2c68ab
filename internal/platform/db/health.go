package db

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	Dialect       string `json:"dialect"`
	TotalConns    int32  `json:"total_conns"`
	IdleConns     int32  `json:"idle_conns"`
	AcquiredConns int32  `json:"acquired_conns"`
	MaxConns      int32  `json:"max_conns"`
	WaitCount     int64  `json:"wait_count"`
	WaitDuration  string `json:"wait_duration"`
	Healthy       bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics for either backend.
func GetPoolStats(s *Store) *PoolStats {
	if s.Pool != nil {
		stat := s.Pool.Stat()
		return &PoolStats{
			Dialect:       string(s.Dialect),
			TotalConns:    stat.TotalConns(),
			IdleConns:     stat.IdleConns(),
			AcquiredConns: stat.AcquiredConns(),
			MaxConns:      stat.MaxConns(),
			WaitCount:     stat.EmptyAcquireCount(),
			WaitDuration:  stat.AcquireDuration().String(),
			Healthy:       stat.TotalConns() > 0,
		}
	}

	stat := s.SQL.Stats()
	return &PoolStats{
		Dialect:       string(s.Dialect),
		TotalConns:    int32(stat.OpenConnections),
		IdleConns:     int32(stat.Idle),
		AcquiredConns: int32(stat.InUse),
		MaxConns:      int32(stat.MaxOpenConnections),
		WaitCount:     stat.WaitCount,
		WaitDuration:  stat.WaitDuration.String(),
		Healthy:       stat.OpenConnections > 0,
	}
}

// HealthHandler returns a handler for the database health check endpoint.
func HealthHandler(s *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := s.Ping(ctx)
		stats := GetPoolStats(s)

		if err != nil {
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   stats,
			})
		}

		stats.Healthy = true
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   stats,
		})
	}
}
