package health

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

const checkTimeout = 2 * time.Second

// Check tests one dependency. A nil error means healthy.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

type HealthEndpoints struct {
	version string
	checks  []Check
}

func NewEndpoints(version string, checks ...Check) *HealthEndpoints {
	return &HealthEndpoints{
		version: version,
		checks:  checks,
	}
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Health handles GET /health. It answers 503 when any check fails.
func (h *HealthEndpoints) Health(ctx *fasthttp.RequestCtx) {
	response := HealthResponse{
		Status:  "ok",
		Version: h.version,
	}
	statusCode := fasthttp.StatusOK

	if len(h.checks) > 0 {
		response.Checks = make(map[string]string, len(h.checks))
		checkCtx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()

		for _, check := range h.checks {
			if err := check.Run(checkCtx); err != nil {
				log.Warn().Err(err).Str("check", check.Name).Msg("Health check failed")
				response.Checks[check.Name] = err.Error()
				response.Status = "degraded"
				statusCode = fasthttp.StatusServiceUnavailable
				continue
			}
			response.Checks[check.Name] = "ok"
		}
	}

	responseJSON, err := json.Marshal(response)
	if err != nil {
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(statusCode)
	ctx.SetBody(responseJSON)
}
