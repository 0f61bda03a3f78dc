package websocket

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/prappser/prappser_cdn/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func startBroker(t *testing.T, compress bool) (*Hub, string) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, compress)
	go hub.Run(ctx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := NewHandler(hub)
	server := &fasthttp.Server{Handler: handler.HandleFastHTTP}
	go server.Serve(ln)

	t.Cleanup(func() {
		cancel()
		_ = server.Shutdown()
	})
	return hub, "ws://" + ln.Addr().String() + "/ws"
}

func dial(t *testing.T, url string, compress bool) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := Dial(ctx, url, compress)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestCodec_ShouldCompressLargePayloads(t *testing.T) {
	// given
	payload := bytes.Repeat([]byte("chunk"), 4096)
	frame := valueFrame(FrameTypePut, "", "/cdn/files/a/0", transport.Binary(payload))

	// when
	data, err := encodeFrame(frame, true)
	require.NoError(t, err)
	decoded, err := decodeFrame(data)
	require.NoError(t, err)

	// then
	assert.Less(t, len(data), len(payload))
	assert.False(t, frame.Compressed)
	assert.Equal(t, payload, decoded.Payload)
	assert.Equal(t, transport.EncodingBinary, decoded.value().Encoding)
}

func TestCodec_ShouldLeaveSmallPayloadsUncompressed(t *testing.T) {
	// given
	frame := valueFrame(FrameTypeSample, "sub", "/cdn/files/a/0", transport.Binary([]byte{1, 2, 3}))

	// when
	data, err := encodeFrame(frame, true)
	require.NoError(t, err)
	decoded, err := decodeFrame(data)
	require.NoError(t, err)

	// then
	assert.Equal(t, []byte{1, 2, 3}, decoded.Payload)
	assert.Equal(t, "sub", decoded.ID)
}

func TestCodec_ShouldRejectPayloadAboveLimit(t *testing.T) {
	// given
	frame := valueFrame(FrameTypePut, "", "/cdn/files/big/0", transport.Binary(make([]byte, MaxPayloadSize+1)))

	// when
	_, err := encodeFrame(frame, false)

	// then
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestSession_OversizedPutShouldFailWithoutDroppingSession(t *testing.T) {
	// given
	_, url := startBroker(t, false)
	session := dial(t, url, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := session.Subscribe(ctx, "/cdn/files/**")
	require.NoError(t, err)

	// when
	oversizedErr := session.Put(ctx, "/cdn/files/big/0", transport.Binary(make([]byte, 40<<20)))
	smallErr := session.Put(ctx, "/cdn/files/big/1", transport.Binary([]byte{1}))

	// then
	assert.ErrorIs(t, oversizedErr, ErrPayloadTooLarge)
	require.NoError(t, smallErr)

	select {
	case change := <-changes:
		assert.Equal(t, "/cdn/files/big/1", change.Key)
	case <-time.After(5 * time.Second):
		t.Fatal("session stopped delivering after oversized put")
	}
}

func TestSession_PutShouldReachSubscriber(t *testing.T) {
	// given
	_, url := startBroker(t, true)
	session := dial(t, url, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := session.Subscribe(ctx, "/cdn/files/**")
	require.NoError(t, err)

	payload := bytes.Repeat([]byte{7}, 10000)

	// when
	require.NoError(t, session.Put(ctx, "/cdn/files/a/0", transport.Binary(payload)))
	require.NoError(t, session.Put(ctx, "/other/key", transport.Binary([]byte{1})))
	require.NoError(t, session.Delete(ctx, "/cdn/files/a/0"))

	// then
	select {
	case change := <-changes:
		assert.Equal(t, "/cdn/files/a/0", change.Key)
		assert.Equal(t, transport.ChangePut, change.Kind)
		assert.Equal(t, payload, change.Value.Payload)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for put")
	}

	select {
	case change := <-changes:
		assert.Equal(t, "/cdn/files/a/0", change.Key)
		assert.Equal(t, transport.ChangeDelete, change.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delete")
	}
}

func TestSession_GetShouldCollectRepliesFromRemoteQueryable(t *testing.T) {
	// given
	hub, url := startBroker(t, false)
	responder := dial(t, url, false)
	querier := dial(t, url, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queries, err := responder.DeclareQueryable(ctx, "/cdn/files/**")
	require.NoError(t, err)
	go func() {
		for q := range queries {
			_ = q.Reply(q.Selector(), transport.Binary([]byte("hello")))
			q.Finish()
		}
	}()

	require.Eventually(t, func() bool {
		_, _, queryables := hub.GetStats()
		return queryables == 1
	}, 5*time.Second, 10*time.Millisecond)

	// when
	replies, err := querier.Get(ctx, "/cdn/files/a/3")

	// then
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "/cdn/files/a/3", replies[0].Key)
	assert.Equal(t, []byte("hello"), replies[0].Value.Payload)
}

func TestSession_GetWithoutQueryablesShouldReturnNoReplies(t *testing.T) {
	// given
	_, url := startBroker(t, false)
	session := dial(t, url, false)

	// when
	replies, err := session.Get(context.Background(), "/cdn/files/missing/metadata")

	// then
	require.NoError(t, err)
	assert.Empty(t, replies)
}

func TestSession_ClosedSessionShouldRejectPut(t *testing.T) {
	// given
	_, url := startBroker(t, false)
	session := dial(t, url, false)
	require.NoError(t, session.Close())

	// when
	err := session.Put(context.Background(), "/cdn/files/a/0", transport.Binary(nil))

	// then
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestHub_ShouldDropClientRoutesOnDisconnect(t *testing.T) {
	// given
	hub, url := startBroker(t, false)
	session := dial(t, url, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := session.Subscribe(ctx, "/cdn/**")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		clients, subs, _ := hub.GetStats()
		return clients == 1 && subs == 1
	}, 5*time.Second, 10*time.Millisecond)

	// when
	require.NoError(t, session.Close())

	// then
	require.Eventually(t, func() bool {
		clients, subs, _ := hub.GetStats()
		return clients == 0 && subs == 0
	}, 5*time.Second, 10*time.Millisecond)
}
