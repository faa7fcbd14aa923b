package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lac-hong-legacy/lms_api/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCounter struct{}

func (failingCounter) IncrementWindow(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("redis down")
}

func newLimitedApp(svc *RateLimitService, endpoint string) *fiber.App {
	app := fiber.New()
	app.Post("/limited", func(c *fiber.Ctx) error {
		if user := c.Get("X-Test-User"); user != "" {
			c.Locals(shared.UserID, user)
		}
		return c.Next()
	}, svc.RateLimit(endpoint), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})
	return app
}

func TestRateLimitAllowsWithoutCounter(t *testing.T) {
	svc := NewRateLimitService(nil)

	allowed, info, err := svc.IsAllowed(context.Background(), "alice", EndpointCertificateIssue)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, -1, info.Remaining)
}

func TestRateLimitBlocksAfterMax(t *testing.T) {
	_, redisSvc := newTestRedis(t)
	svc := NewRateLimitService(redisSvc)
	app := newLimitedApp(svc, EndpointCertificateIssue)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/limited", nil)
		req.Header.Set("X-Test-User", "alice")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "5", resp.Header.Get("X-RateLimit-Limit"))
	}

	req := httptest.NewRequest(http.MethodPost, "/limited", nil)
	req.Header.Set("X-Test-User", "alice")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Another user has their own window.
	req = httptest.NewRequest(http.MethodPost, "/limited", nil)
	req.Header.Set("X-Test-User", "bob")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRateLimitFallsBackToClientIP(t *testing.T) {
	_, redisSvc := newTestRedis(t)
	svc := NewRateLimitService(redisSvc)
	app := newLimitedApp(svc, EndpointCertificateVerify)

	status := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/limited", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	for i := 0; i < 60; i++ {
		require.Equal(t, http.StatusNoContent, status("203.0.113.7"))
	}
	assert.Equal(t, http.StatusTooManyRequests, status("203.0.113.7"))
	assert.Equal(t, http.StatusNoContent, status("198.51.100.2"))
}

func TestRateLimitFailsOpen(t *testing.T) {
	svc := NewRateLimitService(failingCounter{})
	app := newLimitedApp(svc, EndpointCertificateIssue)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/limited", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
