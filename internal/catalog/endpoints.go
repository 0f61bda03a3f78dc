package catalog

import (
	"errors"

	"github.com/goccy/go-json"
	"github.com/prappser/prappser_cdn/internal/cdnerr"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

type Endpoints struct {
	catalog *Catalog
}

func NewEndpoints(catalog *Catalog) *Endpoints {
	return &Endpoints{catalog: catalog}
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("[CATALOG] Failed to encode response")
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(body)
}

// ListResources handles GET /resources
func (e *Endpoints) ListResources(ctx *fasthttp.RequestCtx) {
	entries, err := e.catalog.List()
	if err != nil {
		log.Error().Err(err).Msg("[CATALOG] Failed to list resources")
		ctx.Error("Failed to list resources", fasthttp.StatusInternalServerError)
		return
	}
	writeJSON(ctx, entries)
}

// GetResource handles GET /resources/{resourceName}
func (e *Endpoints) GetResource(ctx *fasthttp.RequestCtx) {
	name, _ := ctx.UserValue("resourceName").(string)
	if name == "" {
		ctx.Error("Resource name is required", fasthttp.StatusBadRequest)
		return
	}

	entry, err := e.catalog.Get(name)
	if err != nil {
		if errors.Is(err, cdnerr.ErrNotFound) {
			ctx.Error("Resource not found", fasthttp.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("resource", name).Msg("[CATALOG] Failed to get resource")
		ctx.Error("Failed to get resource", fasthttp.StatusInternalServerError)
		return
	}
	writeJSON(ctx, entry)
}
