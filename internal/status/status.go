package status

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

// BrokerStats is implemented by the websocket hub.
type BrokerStats interface {
	GetStats() (totalClients, totalSubscriptions, totalQueryables int)
}

// ResourceCounter is implemented by the catalog.
type ResourceCounter interface {
	Count() (int, error)
}

type StatusEndpoints struct {
	version   string
	startedAt time.Time
	broker    BrokerStats
	resources ResourceCounter
}

// NewEndpoints builds the status endpoint. broker and resources may be nil.
func NewEndpoints(version string, broker BrokerStats, resources ResourceCounter) *StatusEndpoints {
	return &StatusEndpoints{
		version:   version,
		startedAt: time.Now(),
		broker:    broker,
		resources: resources,
	}
}

type BrokerStatus struct {
	Clients       int `json:"clients"`
	Subscriptions int `json:"subscriptions"`
	Queryables    int `json:"queryables"`
}

type StatusResponse struct {
	Health        string        `json:"health"`
	Version       string        `json:"version"`
	UptimeSeconds int64         `json:"uptimeSeconds"`
	Broker        *BrokerStatus `json:"broker,omitempty"`
	Resources     *int          `json:"resources,omitempty"`
}

// Status handles GET /status
func (se *StatusEndpoints) Status(ctx *fasthttp.RequestCtx) {
	response := StatusResponse{
		Health:        "OK",
		Version:       se.version,
		UptimeSeconds: int64(time.Since(se.startedAt).Seconds()),
	}

	if se.broker != nil {
		clients, subscriptions, queryables := se.broker.GetStats()
		response.Broker = &BrokerStatus{
			Clients:       clients,
			Subscriptions: subscriptions,
			Queryables:    queryables,
		}
	}

	if se.resources != nil {
		count, err := se.resources.Count()
		if err != nil {
			log.Warn().Err(err).Msg("[CATALOG] Failed to count resources")
		} else {
			response.Resources = &count
		}
	}

	responseJSON, err := json.Marshal(response)
	if err != nil {
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(responseJSON)
}
