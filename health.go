package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/coti-io/coti-explorer-api-sub000/stats"
)

const healthTimeout = 2 * time.Second

type componentHealth struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type healthResponse struct {
	OK bool `json:"ok"`
	// Degraded is set when an optional upstream is failing
	Degraded   bool                       `json:"degraded,omitempty"`
	Now        int64                      `json:"now"`
	Components map[string]componentHealth `json:"components"`
}

// healthComponent is one dependency reported by the healthcheck. Only
// required components fail it.
type healthComponent struct {
	name     string
	required bool
	check    func(ctx context.Context) error
}

var components []healthComponent

type upstream interface {
	IsHealthy() bool
}

func redisComponent(rdb *redis.Client) healthComponent {
	return healthComponent{name: "redis", required: true, check: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}}
}

// upstreamComponent reports the last request outcome of an HTTP upstream.
func upstreamComponent(name string, u upstream) healthComponent {
	return healthComponent{name: name, check: func(ctx context.Context) error {
		if !u.IsHealthy() {
			return fmt.Errorf("%s: %w", name, stats.ErrServiceUnavailable)
		}
		return nil
	}}
}

// HealthCheck fails only on required components; failing upstreams mark
// the response degraded.
func HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	response := healthResponse{
		OK:         true,
		Now:        time.Now().Unix(),
		Components: make(map[string]componentHealth, len(components)),
	}
	for _, comp := range components {
		status := componentHealth{OK: true}
		if err := comp.check(ctx); err != nil {
			status = componentHealth{Error: err.Error()}
			if comp.required {
				response.OK = false
			} else {
				response.Degraded = true
			}
		}
		response.Components[comp.name] = status
	}

	if response.OK {
		return c.Status(fiber.StatusOK).JSON(response)
	}
	return c.Status(fiber.StatusServiceUnavailable).JSON(response)
}
