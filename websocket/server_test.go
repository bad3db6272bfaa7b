package websocket

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	field "github.com/esimov/pixel-particles/particle-field"
)

func startServer(t *testing.T, p HttpParams) (*Server, *httptest.Server) {
	t.Helper()
	if p.Root == "" {
		p.Root = t.TempDir()
	}
	s := NewServer(p, zap.NewNop())
	h, err := s.Handler()
	require.NoError(t, err)
	return s, httptest.NewServer(h)
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func waitClients(t *testing.T, s *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Clients() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestEncodeFrame(t *testing.T) {
	msg := encodeFrame(7, []field.DrawCommand{
		{X: 1.5, Y: 2, Color: field.RGB{R: 255, G: 0, B: 10}, Radius: 2},
		{X: 3, Y: 4.25, Color: field.RGB{R: 1, G: 2, B: 3}, Radius: 2.5},
	})
	assert.JSONEq(t, `{"frame":7,"particles":[[1.5,2,255,0,10,2],[3,4.25,1,2,3,2.5]]}`, string(msg))

	assert.JSONEq(t, `{"frame":1,"particles":[]}`, string(encodeFrame(1, nil)))
}

func TestPointerMessages(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, ts := startServer(t, HttpParams{})
	defer ts.Close()

	conn := dial(t, ts)
	waitClients(t, s, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"x":12.5,"y":40}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"x":1,"y":2}`)))

	select {
	case ev := <-s.Events():
		assert.Equal(t, field.PointerEvent{X: 12.5, Y: 40}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("no pointer event received")
	}
	select {
	case ev := <-s.Events():
		assert.Equal(t, field.PointerEvent{X: 1, Y: 2}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("malformed message blocked the stream")
	}

	conn.Close()
	waitClients(t, s, 0)
}

func TestPointerRateLimit(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, ts := startServer(t, HttpParams{PointerRate: 0.001, PointerBurst: 2})
	defer ts.Close()

	conn := dial(t, ts)
	waitClients(t, s, 1)
	for i := 0; i < 10; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"x":1,"y":1}`)))
	}

	// Closing makes sure every message above has been read by the server.
	conn.Close()
	waitClients(t, s, 0)
	assert.Len(t, s.Events(), 2)
}

func TestRenderBroadcast(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, ts := startServer(t, HttpParams{})
	defer ts.Close()

	// Rendering without clients is a no-op.
	require.NoError(t, s.Render([]field.DrawCommand{{X: 1}}))

	a, b := dial(t, ts), dial(t, ts)
	waitClients(t, s, 2)

	cmds := []field.DrawCommand{{X: 10, Y: 20, Color: field.RGB{R: 9}, Radius: 2}}
	require.NoError(t, s.Render(cmds))

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"frame":2,"particles":[[10,20,9,0,0,2]]}`, string(msg))
	}

	a.Close()
	b.Close()
	waitClients(t, s, 0)
}

func TestSlowClientDropsFrames(t *testing.T) {
	s, ts := startServer(t, HttpParams{})
	defer ts.Close()

	conn := dial(t, ts)
	defer conn.Close()
	waitClients(t, s, 1)

	// Nobody reads on the client side; Render must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			s.Render([]field.DrawCommand{{X: float64(i)}})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Render blocked on a slow client")
	}
}

func TestStaticFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<canvas></canvas>"), 0644))

	_, ts := startServer(t, HttpParams{Root: root, Prefix: "/"})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/index.html")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCanvasSize(t *testing.T) {
	_, ts := startServer(t, HttpParams{Width: 320, Height: 240})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/canvas.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	var size struct{ Width, Height int }
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&size))
	assert.Equal(t, 320, size.Width)
	assert.Equal(t, 240, size.Height)
}
