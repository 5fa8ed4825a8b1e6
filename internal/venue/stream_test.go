package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/domain"
)

type testFrame struct {
	Kind         string `json:"kind"`
	VenueOrderID string `json:"venue_order_id"`
	Status       string `json:"status"`
	CumFilled    string `json:"cum_filled"`
}

// jsonStreamHandler speaks the trivial framing the test server emits.
type jsonStreamHandler struct {
	url string
}

func (h *jsonStreamHandler) URL() string { return h.url }
func (h *jsonStreamHandler) ID() string  { return "test-stream" }

func (h *jsonStreamHandler) OnConnect(_ context.Context, conn *websocket.Conn) error {
	return conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"subscribe"}`))
}

func (h *jsonStreamHandler) Ping(_ context.Context, conn *websocket.Conn) error {
	return conn.WriteMessage(websocket.PingMessage, nil)
}

func (h *jsonStreamHandler) Decode(msg []byte) (OrderUpdate, bool, error) {
	var f testFrame
	if err := json.Unmarshal(msg, &f); err != nil {
		return OrderUpdate{}, false, err
	}
	if f.Kind != "order" {
		return OrderUpdate{}, false, nil
	}
	return OrderUpdate{
		VenueOrderID: f.VenueOrderID,
		Status:       domain.OrderStatus(f.Status),
		CumFilledQty: d(f.CumFilled),
		Timestamp:    time.Now().UTC(),
	}, true, nil
}

func newStreamServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Wait for the subscribe message before pushing frames.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUpdateStream_DispatchesDecodedFrames(t *testing.T) {
	srv := newStreamServer(t, []string{
		`{"kind":"heartbeat"}`,
		`{"kind":"order","venue_order_id":"v-1","status":"PARTIALLY_FILLED","cum_filled":"0.4"}`,
		`not json at all`,
		`{"kind":"order","venue_order_id":"v-1","status":"FILLED","cum_filled":"1"}`,
	})

	var mu sync.Mutex
	var got []OrderUpdate
	handler := &jsonStreamHandler{url: "ws" + strings.TrimPrefix(srv.URL, "http")}
	stream := NewUpdateStream(handler, func(u OrderUpdate) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, u)
	}, zap.NewNop())
	stream.PingInterval = 0

	stream.Start(context.Background())
	defer stream.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	// Heartbeats and undecodable frames were skipped.
	assert.Equal(t, "v-1", got[0].VenueOrderID)
	assert.Equal(t, domain.StatusPartiallyFilled, got[0].Status)
	assert.True(t, got[0].CumFilledQty.Equal(d("0.4")))
	assert.Equal(t, domain.StatusFilled, got[1].Status)
}

func TestUpdateStream_StopTerminates(t *testing.T) {
	srv := newStreamServer(t, nil)

	handler := &jsonStreamHandler{url: "ws" + strings.TrimPrefix(srv.URL, "http")}
	stream := NewUpdateStream(handler, func(OrderUpdate) {}, zap.NewNop())
	stream.PingInterval = 0

	stream.Start(context.Background())
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		stream.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}
