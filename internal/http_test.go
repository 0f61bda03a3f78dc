package internal

import (
	"path/filepath"
	"testing"

	"github.com/prappser/prappser_cdn/internal/catalog"
	"github.com/prappser/prappser_cdn/internal/health"
	"github.com/prappser/prappser_cdn/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func serve(handler fasthttp.RequestHandler, method, path string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	handler(ctx)
	return ctx
}

func TestRequestHandler_ShouldRouteReadOnlyAPI(t *testing.T) {
	// given
	config, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer cat.Close()

	handler := NewRequestHandler(config,
		health.NewEndpoints("test"),
		status.NewEndpoints("test", nil, cat),
		catalog.NewEndpoints(cat),
		nil,
	)

	tests := []struct {
		method, path string
		want         int
	}{
		{fasthttp.MethodGet, "/health", fasthttp.StatusOK},
		{fasthttp.MethodGet, "/status", fasthttp.StatusOK},
		{fasthttp.MethodGet, "/resources", fasthttp.StatusOK},
		{fasthttp.MethodGet, "/resources/docs/missing.bin", fasthttp.StatusNotFound},
		{fasthttp.MethodPost, "/resources", fasthttp.StatusMethodNotAllowed},
		{fasthttp.MethodOptions, "/resources", fasthttp.StatusNoContent},
		{fasthttp.MethodGet, "/ws", fasthttp.StatusNotFound},
		{fasthttp.MethodGet, "/nowhere", fasthttp.StatusNotFound},
	}

	for _, tt := range tests {
		// when
		ctx := serve(handler, tt.method, tt.path)

		// then
		assert.Equal(t, tt.want, ctx.Response.StatusCode(), "%s %s", tt.method, tt.path)
	}
}
