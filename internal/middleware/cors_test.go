package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func newRequest(method, origin string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	if origin != "" {
		ctx.Request.Header.Set("Origin", origin)
	}
	return ctx
}

func TestCORS_PreflightShouldNotReachHandler(t *testing.T) {
	// given
	called := false
	handler := NewCORSMiddleware(nil).Handle(func(ctx *fasthttp.RequestCtx) { called = true })
	ctx := newRequest(fasthttp.MethodOptions, "https://example.com")

	// when
	handler(ctx)

	// then
	assert.False(t, called)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	assert.Equal(t, "*", string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")))
}

func TestCORS_ShouldEchoAllowedOrigins(t *testing.T) {
	tests := []struct {
		origin string
		want   string
	}{
		{"https://cdn.example.com", "https://cdn.example.com"},
		{"http://localhost:5173", "http://localhost:5173"},
		{"https://evil.example.com", ""},
	}

	cors := NewCORSMiddleware([]string{"https://cdn.example.com", "http://localhost:*"})
	for _, tt := range tests {
		// given
		handler := cors.Handle(func(ctx *fasthttp.RequestCtx) {})
		ctx := newRequest(fasthttp.MethodGet, tt.origin)

		// when
		handler(ctx)

		// then
		assert.Equal(t, tt.want, string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")), tt.origin)
	}
}
