package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeStreamableServer answers initialize with JSON and everything
// else with a server-sent event stream, the way streamable HTTP
// servers commonly do.
type fakeStreamableServer struct {
	mu         sync.Mutex
	sessionIDs []string
	versions   []string
	deleted    bool
}

func (f *fakeStreamableServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.sessionIDs = append(f.sessionIDs, r.Header.Get(headerSessionID))
	f.versions = append(f.versions, r.Header.Get(headerProtocolVersion))
	f.mu.Unlock()

	if r.Method == http.MethodDelete {
		f.mu.Lock()
		f.deleted = true
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		http.Error(w, "client must accept text/event-stream", http.StatusNotAcceptable)
		return
	}

	body, _ := io.ReadAll(r.Body)
	var msg struct {
		ID     *int64 `json:"id"`
		Method string `json:"method"`
	}
	_ = json.Unmarshal(body, &msg)

	if msg.ID == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch msg.Method {
	case "initialize":
		w.Header().Set(headerSessionID, "sess-123")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":{"protocolVersion":"2024-11-05","serverInfo":{"name":"remote","version":"2.0"},"capabilities":{"tools":{}}}}`, *msg.ID)
	case "tools/call":
		w.Header().Set("Content-Type", "text/event-stream")
		// A progress notification precedes the response on the stream.
		fmt.Fprint(w, "event: message\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\",\"params\":{}}\n\n")
		fmt.Fprintf(w, "event: message\nid: 1\ndata: {\"jsonrpc\":\"2.0\",\"id\":%d,\"result\":{\"content\":[{\"type\":\"text\",\"text\":\"sunny\"}]}}\n\n", *msg.ID)
	case "unauthorized":
		http.Error(w, "bad token", http.StatusUnauthorized)
	default:
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
	}
}

func TestHTTPTransport_SessionAndEventStream(t *testing.T) {
	fake := &fakeStreamableServer{}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	tr := NewHTTPTransport(HTTPConfig{
		URL:     ts.URL,
		Headers: map[string]string{"Authorization": "Bearer test"},
	})

	ctx := context.Background()
	client, err := Connect(ctx, "remote", tr, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	res, err := client.CallTool(ctx, "get_weather", map[string]any{"latitude": 1.0, "longitude": 2.0})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.Text != "sunny" {
		t.Errorf("Text = %q, want sunny", res.Text)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()

	// initialize carries no session; everything after it does.
	if fake.sessionIDs[0] != "" {
		t.Errorf("initialize sent session %q", fake.sessionIDs[0])
	}
	for i, sid := range fake.sessionIDs[1:] {
		if sid != "sess-123" {
			t.Errorf("request %d session = %q, want sess-123", i+1, sid)
		}
		if fake.versions[i+1] != "2024-11-05" {
			t.Errorf("request %d protocol version = %q", i+1, fake.versions[i+1])
		}
	}
	if !fake.deleted {
		t.Error("Close did not delete the session")
	}
}

func TestHTTPTransport_StreamWithoutResponse(t *testing.T) {
	ts := httptest.NewServer(&fakeStreamableServer{})
	defer ts.Close()

	tr := NewHTTPTransport(HTTPConfig{URL: ts.URL})
	_, err := tr.Send(context.Background(), NewRequest(5, "ping", nil))
	if err == nil || !strings.Contains(err.Error(), "without a response") {
		t.Fatalf("Send = %v, want stream-ended error", err)
	}
}

func TestHTTPTransport_StatusError(t *testing.T) {
	ts := httptest.NewServer(&fakeStreamableServer{})
	defer ts.Close()

	client := NewClient("remote", NewHTTPTransport(HTTPConfig{URL: ts.URL}), nil)
	_, err := client.send(context.Background(), "unauthorized", nil)

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("error = %v, want *ConnectionError", err)
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "bad token") {
		t.Errorf("error %q should carry status and body", err)
	}
}

func TestHTTPTransport_SendAfterClose(t *testing.T) {
	tr := NewHTTPTransport(HTTPConfig{URL: "http://127.0.0.1:1"})
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := tr.Send(context.Background(), NewRequest(1, "ping", nil)); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Send after Close = %v, want ErrTransportClosed", err)
	}
}
