package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ecg_go/internal/models"
)

type fakeProvider struct{}

func (fakeProvider) Status() models.MonitorStatus {
	return models.MonitorStatus{Status: models.StatusRunning, RunID: "run-1"}
}

func (fakeProvider) Snapshot() models.Snapshot {
	return models.Snapshot{Status: models.StatusRunning, Packets: 42, PeakCount: 3, WindowedBPM: 60}
}

func (fakeProvider) RecentSamples(n int) []models.SamplePoint {
	pts := []models.SamplePoint{{Time: 0, Value: 1}, {Time: 4, Value: 2}, {Time: 8, Value: 3}}
	if n > 0 && n < len(pts) {
		return pts[len(pts)-n:]
	}
	return pts
}

type received struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Error string          `json:"error"`
	Data  json.RawMessage `json:"data"`
}

func startHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()

	hub := NewHub(fakeProvider{})
	go hub.Run()

	srv := httptest.NewServer(NewHandler(hub, nil))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		hub.Shutdown()
		t.Fatalf("Dial: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		hub.Shutdown()
		srv.Close()
	})

	// Boas-vindas e status chegam logo após o registro
	if msg := readMessage(t, conn); msg.Type != models.MessageWelcome {
		t.Fatalf("primeira mensagem = %q, want welcome", msg.Type)
	}
	if msg := readMessage(t, conn); msg.Type != models.MessageStatus {
		t.Fatalf("segunda mensagem = %q, want status", msg.Type)
	}
	return hub, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg received
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func TestBroadcastPeak(t *testing.T) {
	hub, conn := startHub(t)

	if n := hub.ClientCount(); n != 1 {
		t.Fatalf("ClientCount = %d, want 1", n)
	}

	hub.OnPeak(models.PeakEvent{RunID: "run-1", Number: 1, Index: 800, Value: 3000})

	msg := readMessage(t, conn)
	if msg.Type != models.MessagePeak {
		t.Fatalf("Type = %q, want peak", msg.Type)
	}
	var ev models.PeakEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		t.Fatalf("Data: %v", err)
	}
	if ev.Index != 800 || ev.Value != 3000 {
		t.Errorf("peak = %+v", ev)
	}
}

func TestGetSnapshotCommand(t *testing.T) {
	_, conn := startHub(t)

	if err := conn.WriteJSON(models.CommandMessage{Type: CommandGetSnapshot, ID: "req-1"}); err != nil {
		t.Fatal(err)
	}

	msg := readMessage(t, conn)
	if msg.Type != models.MessageSnapshot || msg.ID != "req-1" {
		t.Fatalf("resposta = %+v", msg)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(msg.Data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Packets != 42 || snap.PeakCount != 3 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestGetSamplesCommand(t *testing.T) {
	_, conn := startHub(t)

	cmd := models.CommandMessage{Type: CommandGetSamples, Params: map[string]interface{}{"n": 2}}
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatal(err)
	}

	msg := readMessage(t, conn)
	if msg.Type != models.MessageSamples {
		t.Fatalf("Type = %q", msg.Type)
	}
	var pts []models.SamplePoint
	if err := json.Unmarshal(msg.Data, &pts); err != nil {
		t.Fatal(err)
	}
	if len(pts) != 2 || pts[0].Value != 2 {
		t.Errorf("samples = %+v", pts)
	}
}

func TestPingAndErrors(t *testing.T) {
	_, conn := startHub(t)

	ping := models.CommandMessage{Type: CommandPing, ID: "p", Params: map[string]interface{}{"time": 1234}}
	if err := conn.WriteJSON(ping); err != nil {
		t.Fatal(err)
	}
	msg := readMessage(t, conn)
	if msg.Type != models.MessagePong || msg.ID != "p" {
		t.Fatalf("resposta = %+v", msg)
	}
	var pong models.PongMessage
	if err := json.Unmarshal(msg.Data, &pong); err != nil {
		t.Fatal(err)
	}
	if pong.Time != 1234 || pong.ServerTime == 0 {
		t.Errorf("pong = %+v", pong)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"x","bogus":1}`)); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != models.MessageError {
		t.Errorf("campo desconhecido: Type = %q, want error", msg.Type)
	}

	if err := conn.WriteJSON(models.CommandMessage{Type: "reboot"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != models.MessageError {
		t.Errorf("comando desconhecido: Type = %q, want error", msg.Type)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://painel.local"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://painel.local")
	if !check(req) {
		t.Error("origem permitida foi recusada")
	}

	req.Header.Set("Origin", "http://outro")
	if check(req) {
		t.Error("origem não listada foi aceita")
	}

	if !originChecker([]string{"*"})(req) {
		t.Error("curinga deveria aceitar qualquer origem")
	}
}
