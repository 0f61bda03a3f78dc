package status

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type fakeBroker struct{}

func (fakeBroker) GetStats() (int, int, int) { return 2, 3, 1 }

type fakeCounter int

func (c fakeCounter) Count() (int, error) { return int(c), nil }

func TestStatus_ShouldReportBrokerAndResources(t *testing.T) {
	// given
	endpoints := NewEndpoints("1.0.0", fakeBroker{}, fakeCounter(4))
	ctx := &fasthttp.RequestCtx{}

	// when
	endpoints.Status(ctx)

	// then
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var response StatusResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
	assert.Equal(t, "1.0.0", response.Version)
	require.NotNil(t, response.Broker)
	assert.Equal(t, BrokerStatus{Clients: 2, Subscriptions: 3, Queryables: 1}, *response.Broker)
	require.NotNil(t, response.Resources)
	assert.Equal(t, 4, *response.Resources)
}

func TestStatus_ShouldOmitMissingSources(t *testing.T) {
	// given
	endpoints := NewEndpoints("1.0.0", nil, nil)
	ctx := &fasthttp.RequestCtx{}

	// when
	endpoints.Status(ctx)

	// then
	var response StatusResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
	assert.Nil(t, response.Broker)
	assert.Nil(t, response.Resources)
}
