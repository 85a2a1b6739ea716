// Package gateway implements the Event Stream Gateway (C16): the
// WebSocket front door that runs a scan and streams its event
// sequence to the caller, plus health, metrics, and screenshot
// retrieval endpoints.
package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"brandscan/internal/cache"
	"brandscan/internal/config"
	"brandscan/internal/metrics"
	"brandscan/internal/model"
	"brandscan/internal/scan"
)

// Server is the Gateway's fiber.App plus its collaborators.
type Server struct {
	app    *fiber.App
	config *config.Config
	logger *slog.Logger
}

// NewServer wires the middleware stack and routes, in the teacher's
// request-logging-plus-metrics idiom.
func NewServer(cfg *config.Config, scanDeps scan.Deps, shots *cache.ScreenshotCache, logger *slog.Logger) *Server {
	app := fiber.New()

	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		path := c.Path()

		metrics.RecordRequest(method, path, status, latency.Milliseconds())
		if logger != nil {
			logger.Info("request", "request_id", reqID, "method", method, "path", path, "status", status, "latency_ms", latency.Milliseconds())
		}
		return err
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	app.Get("/screenshot/:id", screenshotHandler(shots))

	app.Use("/ws/scan", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/scan", websocket.New(scanWebsocketHandler(scanDeps, logger)))

	return &Server{app: app, config: cfg, logger: logger}
}

// Listen starts the HTTP/WebSocket server.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}

func screenshotHandler(shots *cache.ScreenshotCache) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		id = strings.TrimSuffix(id, ".jpg")
		id = strings.TrimSuffix(id, ".jpeg")
		id = strings.TrimSuffix(id, ".png")

		if shots != nil {
			if shot, ok := shots.Get(id); ok {
				c.Set(fiber.HeaderContentType, shot.MIME)
				c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
				return c.Send(shot.Bytes)
			}
		}

		if data, mime, ok := legacyDataURI(id); ok {
			c.Set(fiber.HeaderContentType, mime)
			c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
			return c.Send(data)
		}

		return fiber.NewError(fiber.StatusNotFound, "screenshot not found")
	}
}

// scanRequestPayload is the inbound control message on /ws/scan.
type scanRequestPayload struct {
	SeedURL       string `json:"seed_url"`
	Mode          string `json:"mode"`
	PreferredLang string `json:"preferred_lang"`
}

func scanWebsocketHandler(scanDeps scan.Deps, logger *slog.Logger) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		defer conn.Close()

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var payload scanRequestPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			writeEvent(conn, model.Event{Kind: model.EventError, Error: "invalid scan request payload"})
			return
		}

		mode := model.ModeDiscovery
		if payload.Mode == string(model.ModeDiagnosis) {
			mode = model.ModeDiagnosis
		}

		req := model.ScanRequest{
			ScanID:        uuid.New().String(),
			SeedURL:       payload.SeedURL,
			Mode:          mode,
			PreferredLang: payload.PreferredLang,
		}

		metrics.RecordScanStarted(string(mode))
		if logger != nil {
			logger.Info("scan started", "scan_id", req.ScanID, "mode", mode, "seed_url", req.SeedURL)
		}

		events := scan.Run(conn.Context(), scanDeps, req)
		for ev := range events {
			if err := writeEvent(conn, ev); err != nil {
				return
			}
			if ev.Kind == model.EventError {
				metrics.RecordScanError()
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// legacyDataURI accepts a base64/data-URI screenshot id for backward
// compatibility with callers that pre-date the opaque cache-id scheme.
func legacyDataURI(raw string) ([]byte, string, bool) {
	if !strings.HasPrefix(raw, "data:") {
		return nil, "", false
	}
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return nil, "", false
	}
	meta := parts[0]
	mime := "image/jpeg"
	if strings.Contains(meta, "image/png") {
		mime = "image/png"
	}
	data, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, "", false
	}
	return data, mime, true
}
