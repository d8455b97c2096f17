package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/phishcoach/internal/interaction"
)

func readEvents(t *testing.T, ctx context.Context, conn *websocket.Conn) []streamEvent {
	t.Helper()
	var events []streamEvent
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			require.NotEqual(t, websocket.StatusCode(-1), websocket.CloseStatus(err), "unexpected read error: %v", err)
			return events
		}
		var ev streamEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		events = append(events, ev)
	}
}

func TestStreamPushesMessagesUntilCompleted(t *testing.T) {
	s := newTestServer(t, 3)
	s.sess.Start()

	srv := httptest.NewServer(NewStreamHandler(s.sess, []string{"*"}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	events := readEvents(t, ctx, conn)
	require.Len(t, events, 4)
	for i := 0; i < 3; i++ {
		assert.Equal(t, "message", events[i].Type)
		require.NotNil(t, events[i].Message)
		assert.Equal(t, i, events[i].Message.ID)
	}
	assert.Equal(t, "completed", events[3].Type)
	assert.Equal(t, 3, events[3].Count)
	assert.Equal(t, interaction.Engaged, s.sess.State())
}

func TestStreamAfterGenerationReplaysAccumulated(t *testing.T) {
	s := newTestServer(t, 2)
	s.sess.Start()
	s.pollAll(t)

	srv := httptest.NewServer(NewStreamHandler(s.sess, []string{"*"}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	events := readEvents(t, ctx, conn)
	require.Len(t, events, 3)
	assert.Equal(t, "completed", events[2].Type)
	assert.Equal(t, 2, events[2].Count)
}

func TestStreamCompletedFrameCarriesZeroCount(t *testing.T) {
	s := newTestServer(t, 0)
	s.sess.Start()

	srv := httptest.NewServer(NewStreamHandler(s.sess, []string{"*"}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type": "completed", "count": 0}`, string(data))
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"*"}, OriginPatterns([]string{"https://a.test", "*"}))
	assert.Equal(t, []string{"a.test", "b.test:8080", "c.test"}, OriginPatterns([]string{"https://a.test", "http://b.test:8080", "c.test"}))
}
