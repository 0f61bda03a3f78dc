package internal

import (
	"strings"

	"github.com/prappser/prappser_cdn/internal/catalog"
	"github.com/prappser/prappser_cdn/internal/health"
	"github.com/prappser/prappser_cdn/internal/middleware"
	"github.com/prappser/prappser_cdn/internal/status"
	"github.com/prappser/prappser_cdn/internal/websocket"
	"github.com/valyala/fasthttp"
)

// NewRequestHandler routes the HTTP API. resourceEndpoints and wsHandler may
// be nil when the catalog or the broker is disabled.
func NewRequestHandler(config *Config, healthEndpoints *health.HealthEndpoints, statusEndpoints *status.StatusEndpoints, resourceEndpoints *catalog.Endpoints, wsHandler *websocket.Handler) fasthttp.RequestHandler {
	corsMiddleware := middleware.NewCORSMiddleware(config.Server.AllowedOrigins)
	brokerPath := config.Broker.Path

	handler := func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())

		switch {
		case !ctx.IsGet() && !ctx.IsHead():
			ctx.Error("Method Not Allowed", fasthttp.StatusMethodNotAllowed)

		case path == "/health":
			healthEndpoints.Health(ctx)
		case path == "/status":
			statusEndpoints.Status(ctx)

		case resourceEndpoints != nil && path == "/resources":
			resourceEndpoints.ListResources(ctx)
		case resourceEndpoints != nil && strings.HasPrefix(path, "/resources/"):
			// Resource names may contain slashes.
			ctx.SetUserValue("resourceName", strings.TrimPrefix(path, "/resources/"))
			resourceEndpoints.GetResource(ctx)

		default:
			ctx.Error("Not Found", fasthttp.StatusNotFound)
		}
	}

	cors := corsMiddleware.Handle(handler)
	return func(ctx *fasthttp.RequestCtx) {
		if wsHandler != nil && string(ctx.Path()) == brokerPath {
			wsHandler.HandleFastHTTP(ctx)
			return
		}
		cors(ctx)
	}
}
