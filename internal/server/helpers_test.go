package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"vibefeed/internal/config"
	"vibefeed/internal/database"
	"vibefeed/internal/middleware"
	"vibefeed/internal/models"
	"vibefeed/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testJWTSecret = "test-secret-key-12345678901234567890123456789012"

func testConfig() *config.Config {
	return &config.Config{
		Port:                   "0",
		Env:                    "test",
		JWTSecret:              testJWTSecret,
		AllowedOrigins:         "http://localhost:5173",
		FeatureFlags:           "typing_indicators=on,story_views=on",
		ChatStore:              config.ChatStoreSQL,
		ToggleMaxAttempts:      5,
		TrendRecomputeInterval: time.Minute,
		TrendWindowHours:       168,
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) *Server {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	s, err := NewServerWithDeps(cfg, setupTestDB(t), nil, opts...)
	require.NoError(t, err)
	return s
}

func tokenFor(t *testing.T, userID uint, username string) string {
	t.Helper()
	tok, err := middleware.NewJWTVerifier(testJWTSecret).
		Issue(models.Principal{UserID: userID, Username: username}, time.Hour)
	require.NoError(t, err)
	return tok
}

// doJSON performs a request against the app and decodes the response into out
// when out is non-nil.
func doJSON(t *testing.T, app *fiber.App, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out), "body: %s", raw)
	}
	return resp.StatusCode
}

func assertErrorCode(t *testing.T, app *fiber.App, method, path, token string, body interface{}, wantStatus int, wantCode string) {
	t.Helper()
	var resp models.ErrorResponse
	status := doJSON(t, app, method, path, token, body, &resp)
	assert.Equal(t, wantStatus, status)
	assert.Equal(t, wantCode, resp.Code)
}

type wireEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// connectClient registers an in-process realtime client for userID.
func connectClient(t *testing.T, s *Server, userID uint) *notifications.Client {
	t.Helper()
	c := notifications.NewClient(s.hub, nil, models.Principal{UserID: userID, Username: "user"})
	require.NoError(t, s.hub.Register(context.Background(), c))
	t.Cleanup(func() { s.hub.UnregisterClient(c) })
	return c
}

// drainEvents returns every event currently queued for c.
func drainEvents(t *testing.T, c *notifications.Client) []wireEvent {
	t.Helper()
	var out []wireEvent
	for {
		select {
		case raw, ok := <-c.Send:
			if !ok {
				return out
			}
			var evt wireEvent
			require.NoError(t, json.Unmarshal(raw, &evt))
			out = append(out, evt)
		default:
			return out
		}
	}
}

func eventsOfType(events []wireEvent, eventType string) []wireEvent {
	var out []wireEvent
	for _, e := range events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func command(t *testing.T, cmdType string, payload interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{"type": cmdType, "payload": payload})
	require.NoError(t, err)
	return raw
}
