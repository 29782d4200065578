package presencesvc_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ripoti/core/editor"
	"github.com/trezcool/ripoti/core/report"
	logsvc "github.com/trezcool/ripoti/services/logger"
	presencesvc "github.com/trezcool/ripoti/services/presence"
)

var errClosed = errors.New("connection closed")

// fakeConn is an in-memory websocket connection.
type fakeConn struct {
	written   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{written: make(chan []byte, 32), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errClosed
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errClosed
	default:
	}
	if messageType == websocket.TextMessage {
		c.written <- data
	}
	return nil
}

func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type message struct {
	Type     string          `json:"type"`
	ReportID string          `json:"report_id"`
	Data     json.RawMessage `json:"data"`
}

func next(t *testing.T, c *fakeConn) message {
	t.Helper()
	select {
	case raw := <-c.written:
		var msg message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	return message{}
}

func roster(t *testing.T, msg message) []string {
	t.Helper()
	require.Equal(t, presencesvc.EventRoster, msg.Type)
	var members []presencesvc.Member
	require.NoError(t, json.Unmarshal(msg.Data, &members))
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	return names
}

func startHub(t *testing.T) *presencesvc.Hub {
	t.Helper()
	hub := presencesvc.NewHub(logsvc.NewRecorderLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func TestHub(t *testing.T) {
	hub := startHub(t)
	olive := presencesvc.Member{UserID: "u1", Name: "Olive", Role: report.RoleOwner}
	ed := presencesvc.Member{UserID: "u2", Name: "Ed", Role: report.RoleEditor}

	c1 := newFakeConn()
	require.NoError(t, hub.Join("r1", olive, c1))
	assert.Equal(t, []string{"Olive"}, roster(t, next(t, c1)))

	c2 := newFakeConn()
	require.NoError(t, hub.Join("r1", ed, c2))
	assert.Equal(t, []string{"Ed", "Olive"}, roster(t, next(t, c1)))
	assert.Equal(t, []string{"Ed", "Olive"}, roster(t, next(t, c2)))

	other := newFakeConn()
	require.NoError(t, hub.Join("r2", olive, other))
	assert.Equal(t, []string{"Olive"}, roster(t, next(t, other)))

	hub.Broadcast("r1", editor.Event{Type: editor.EventReportSaved, UserID: "u2"})
	for _, c := range []*fakeConn{c1, c2} {
		msg := next(t, c)
		assert.Equal(t, editor.EventReportSaved, msg.Type)
		assert.Equal(t, "r1", msg.ReportID)
	}
	select {
	case raw := <-other.written:
		t.Fatalf("unexpected message in another room: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}

	// disconnecting updates the roster of the remaining members
	require.NoError(t, c2.Close())
	assert.Equal(t, []string{"Olive"}, roster(t, next(t, c1)))
	assert.Equal(t, []presencesvc.Member{olive}, hub.Members("r1"))
}

func TestHub_MembersAreDistinct(t *testing.T) {
	hub := startHub(t)
	olive := presencesvc.Member{UserID: "u1", Name: "Olive", Role: report.RoleOwner}

	c1, c2 := newFakeConn(), newFakeConn()
	require.NoError(t, hub.Join("r1", olive, c1))
	next(t, c1)
	require.NoError(t, hub.Join("r1", olive, c2)) // second tab
	assert.Equal(t, []string{"Olive"}, roster(t, next(t, c2)))
	assert.Len(t, hub.Members("r1"), 1)
	assert.Empty(t, hub.Members("r2"))
}

func TestHub_Stop(t *testing.T) {
	hub := startHub(t)
	c := newFakeConn()
	require.NoError(t, hub.Join("r1", presencesvc.Member{UserID: "u1", Name: "Olive"}, c))
	next(t, c)

	hub.Stop()
	select {
	case <-c.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection not closed on stop")
	}
	assert.ErrorIs(t, hub.Join("r1", presencesvc.Member{UserID: "u2"}, newFakeConn()), presencesvc.ErrHubStopped)
	hub.Broadcast("r1", editor.Event{Type: editor.EventReportSaved}) // must not block
}

func TestHub_Serve(t *testing.T) {
	hub := startHub(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := presencesvc.Member{UserID: r.URL.Query().Get("user"), Name: r.URL.Query().Get("user")}
		if err := hub.Serve(w, r, "r1", m); err != nil {
			t.Errorf("serve: %v", err)
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=ana"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, []string{"ana"}, roster(t, msg))

	hub.Broadcast("r1", editor.Event{Type: editor.EventReportPublished})
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, editor.EventReportPublished, msg.Type)
}
