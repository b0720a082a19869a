package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeSSEServer is a minimal hand-written event-stream source, grounded on
// the teacher's own httptest.NewServer-based sse_test.go harness, but
// emitting raw SSE frames directly since this module carries no server half
// (spec.md §1's Non-goal) to generate them.
type fakeSSEServer struct {
	mu       sync.Mutex
	posts    []Message
	postCode int
}

func newFakeSSEServer() (*httptest.Server, *fakeSSEServer) {
	f := &fakeSSEServer{postCode: http.StatusAccepted}
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)

	mux.HandleFunc("/connect", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "event: endpoint\ndata: %s/message\n\n", srv.URL)
		flusher.Flush()

		bs, _ := json.Marshal(Message{JSONRPC: JSONRPCVersion, Method: "notifications/progress", Params: json.RawMessage(`{"step":1}`)})
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", bs)
		flusher.Flush()

		<-r.Context().Done()
	})
	mux.HandleFunc("/message", func(w http.ResponseWriter, r *http.Request) {
		var msg Message
		bs, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(bs, &msg)
		f.mu.Lock()
		f.posts = append(f.posts, msg)
		code := f.postCode
		f.mu.Unlock()
		w.WriteHeader(code)
	})
	return srv, f
}

func TestSSEClientTransportHandshakeAndNotification(t *testing.T) {
	srv, _ := newFakeSSEServer()
	defer srv.Close()

	tr := NewSSEClientTransport(srv.URL + "/connect")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := tr.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close(context.Background())

	select {
	case msg := <-tr.Notifications():
		if msg.Method != "notifications/progress" {
			t.Fatalf("got method %q", msg.Method)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the endpoint's notification")
	}

	if err := tr.Write(context.Background(), Message{JSONRPC: JSONRPCVersion, ID: NewIntID(1), Method: "ping"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestSSEClientTransportWriteSurfacesAuthFailureAsRetryable(t *testing.T) {
	srv, f := newFakeSSEServer()
	defer srv.Close()
	f.mu.Lock()
	f.postCode = http.StatusUnauthorized
	f.mu.Unlock()

	tr := NewSSEClientTransport(srv.URL + "/connect")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close(context.Background())

	<-tr.Notifications()

	err := tr.Write(context.Background(), Message{JSONRPC: JSONRPCVersion, ID: NewIntID(1), Method: "ping"})
	if KindOf(err) != KindRetryable {
		t.Fatalf("got kind %v, want KindRetryable", KindOf(err))
	}
}

func TestSSEClientTransportOpenTimesOutWithoutEndpointEvent(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/connect", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		<-r.Context().Done()
	})

	tr := NewSSEClientTransport(srv.URL + "/connect")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := tr.Open(ctx)
	if KindOf(err) != KindTimeout {
		t.Fatalf("got kind %v, want KindTimeout", KindOf(err))
	}
}
