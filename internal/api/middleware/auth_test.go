package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProtectedApp(config JWTConfig) *fiber.App {
	app := fiber.New()
	app.Use(JWTMiddleware(config))
	app.Get("/api/v1/bus/ping/1", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"username": c.Locals("username")})
	})
	app.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})
	return app
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	config := JWTConfig{SecretKey: "test-secret"}
	app := newProtectedApp(config)

	token, err := GenerateToken(config, "operator")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/bus/ping/1", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	app := newProtectedApp(JWTConfig{SecretKey: "test-secret"})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/bus/ping/1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTMiddleware_MalformedHeader(t *testing.T) {
	app := newProtectedApp(JWTConfig{SecretKey: "test-secret"})

	req := httptest.NewRequest("GET", "/api/v1/bus/ping/1", nil)
	req.Header.Set("Authorization", "Basic abc123")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTMiddleware_WrongSecret(t *testing.T) {
	app := newProtectedApp(JWTConfig{SecretKey: "test-secret"})

	token, err := GenerateToken(JWTConfig{SecretKey: "other-secret"}, "operator")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/bus/ping/1", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	config := JWTConfig{SecretKey: "test-secret"}
	app := newProtectedApp(config)

	token, err := GenerateToken(JWTConfig{
		SecretKey:  "test-secret",
		Expiration: -time.Hour,
	}, "operator")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/bus/ping/1", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTMiddleware_SkipPaths(t *testing.T) {
	app := newProtectedApp(JWTConfig{
		SecretKey: "test-secret",
		SkipPaths: []string{"/api/health"},
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
