package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prappser/prappser_cdn/internal"
	"github.com/prappser/prappser_cdn/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func startBroker(t *testing.T, compress bool) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := websocket.NewHub(nil, compress)
	go hub.Run(ctx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &fasthttp.Server{Handler: websocket.NewHandler(hub).HandleFastHTTP}
	go server.Serve(ln)

	t.Cleanup(func() {
		cancel()
		_ = server.Shutdown()
	})
	return "ws://" + ln.Addr().String() + "/ws"
}

func TestConnect_ShouldFollowBrokerCompression(t *testing.T) {
	for _, compress := range []bool{true, false} {
		// given
		config := &internal.Config{}
		config.Client.BrokerURL = startBroker(t, compress)
		config.Broker.Compress = compress

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		// when
		session, err := connect(ctx, config)
		cancel()

		// then
		require.NoError(t, err)
		assert.Equal(t, compress, session.Compressing())
		require.NoError(t, session.Close())
	}
}
