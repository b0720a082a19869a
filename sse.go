package mcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
)

// sseEndpointTimeout bounds how long Open waits for the server's initial
// "endpoint" event naming the URL this client must POST requests to.
const sseEndpointTimeout = 10 * time.Second

// SSEClientTransport is the HTTP+SSE alternative transport of spec.md §6:
// inbound frames arrive over a server-sent-events stream, outbound frames
// go out as individual HTTP POSTs to an endpoint the server names in its
// first SSE event. It satisfies the same ClientTransport contract and the
// same deferred-open invariant as StdioTransport.
type SSEClientTransport struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	sessionID  string

	mu      sync.Mutex
	state   TransportState
	postURL string

	cancel        context.CancelFunc
	inbound       chan Message
	notifications chan Message
	closed        chan struct{}
	readerDone    chan struct{}
	endpointReady chan struct{}
}

// NewSSEClientTransport captures the server's event-stream URL. Like
// NewStdioTransport, it performs no I/O and allocates no runtime primitive.
func NewSSEClientTransport(baseURL string, opts ...SSEOption) *SSEClientTransport {
	t := &SSEClientTransport{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
		state:      StateUnopened,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SSEOption configures an SSEClientTransport at construction time.
type SSEOption func(*SSEClientTransport)

// WithSSEHTTPClient overrides the default http.Client used for both the
// event-stream connection and outbound POSTs.
func WithSSEHTTPClient(client *http.Client) SSEOption {
	return func(t *SSEClientTransport) { t.httpClient = client }
}

// WithSSELogger overrides the default logger.
func WithSSELogger(logger *slog.Logger) SSEOption {
	return func(t *SSEClientTransport) { t.logger = logger }
}

// State implements ClientTransport.
func (t *SSEClientTransport) State() TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Open connects to the event stream and waits for the server's endpoint
// handshake. It is the only place this type allocates a channel or
// goroutine.
func (t *SSEClientTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateUnopened {
		t.mu.Unlock()
		return newError(KindNonRetryable, "open", fmt.Errorf("transport already opened"))
	}
	t.sessionID = uuid.NewString()
	t.inbound = make(chan Message)
	t.notifications = make(chan Message, notificationQueueDepth)
	t.closed = make(chan struct{})
	t.readerDone = make(chan struct{})
	t.endpointReady = make(chan struct{})
	t.state = StateOpen
	t.mu.Unlock()

	streamCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.baseURL, nil)
	if err != nil {
		cancel()
		return newError(KindRetryable, "open", err)
	}
	req.Header.Set("Mcp-Session-Id", t.sessionID)

	// The stream itself outlives ctx, but ctx still bounds the wait for the
	// server's response headers.
	stopOnCtx := context.AfterFunc(ctx, cancel)
	resp, err := t.httpClient.Do(req)
	if !stopOnCtx() {
		if err == nil {
			resp.Body.Close()
		}
		cancel()
		return newError(KindTimeout, "open", ctx.Err())
	}
	if err != nil {
		cancel()
		return newError(KindRetryable, "open", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return newError(KindRetryable, "open", fmt.Errorf("server returned %s", resp.Status))
	}

	go t.runConnection(resp.Body)

	select {
	case <-t.endpointReady:
		return nil
	case <-ctx.Done():
		t.closeInternal(context.Background())
		return newError(KindTimeout, "open", ctx.Err())
	case <-time.After(sseEndpointTimeout):
		t.closeInternal(context.Background())
		return newError(KindTimeout, "open", fmt.Errorf("server never sent an endpoint event"))
	}
}

// runConnection reads the event stream with sse.Read and routes each event,
// grounded on the teacher's SSEClient.listenSSEMessages (sse.go).
func (t *SSEClientTransport) runConnection(body io.ReadCloser) {
	defer close(t.readerDone)
	defer body.Close()

	for event, err := range sse.Read(body, nil) {
		if err != nil {
			if err != io.EOF {
				select {
				case <-t.closed:
				default:
					t.logger.Warn("sse connection ended", slog.String("err", err.Error()))
				}
			}
			return
		}
		t.handleEvent(event)
	}
}

func (t *SSEClientTransport) handleEvent(event sse.Event) {
	switch event.Type {
	case "endpoint":
		t.mu.Lock()
		t.postURL = event.Data
		t.mu.Unlock()
		select {
		case <-t.endpointReady:
		default:
			close(t.endpointReady)
		}
	case "message", "":
		msg, err := Decode([]byte(event.Data))
		if err != nil {
			t.logger.Warn("skipping malformed sse frame", slog.String("err", err.Error()))
			return
		}
		if msg.IsNotification() {
			select {
			case t.notifications <- msg:
			case <-t.closed:
			}
			return
		}
		select {
		case t.inbound <- msg:
		case <-t.closed:
		}
	default:
		t.logger.Debug("ignoring unrecognized sse event type", slog.String("type", event.Type))
	}
}

// Write POSTs a single frame to the server-negotiated endpoint.
func (t *SSEClientTransport) Write(ctx context.Context, msg Message) error {
	if t.State() != StateOpen {
		return newError(KindTransportClosed, "write", nil)
	}

	t.mu.Lock()
	postURL := t.postURL
	t.mu.Unlock()
	if postURL == "" {
		return newError(KindRetryable, "write", fmt.Errorf("endpoint not yet negotiated"))
	}

	bs, err := Encode(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, bytes.NewReader(bs))
	if err != nil {
		return newError(KindNonRetryable, "write", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Mcp-Session-Id", t.sessionID)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return newError(KindRetryable, "write", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Auth-adjacent HTTP statuses surface as Retryable so a collaborator
		// can re-authenticate and resubmit (spec.md §3), mirroring
		// classifyRPCError's message-marker override for the JSON-RPC path.
		return newError(KindRetryable, "write", fmt.Errorf("server returned %s", resp.Status))
	case resp.StatusCode >= 500:
		return newError(KindRetryable, "write", fmt.Errorf("server returned %s", resp.Status))
	case resp.StatusCode >= 400:
		return newError(KindNonRetryable, "write", fmt.Errorf("server returned %s", resp.Status))
	}
	return nil
}

// Messages implements ClientTransport.
func (t *SSEClientTransport) Messages() iter.Seq[Message] {
	return func(yield func(Message) bool) {
		for {
			select {
			case msg, ok := <-t.inbound:
				if !ok {
					return
				}
				if !yield(msg) {
					return
				}
			case <-t.closed:
				return
			}
		}
	}
}

// Notifications implements ClientTransport.
func (t *SSEClientTransport) Notifications() <-chan Message {
	return t.notifications
}

// Close implements ClientTransport. It is idempotent.
func (t *SSEClientTransport) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.state == StateUnopened {
		t.state = StateClosed
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	t.closeInternal(ctx)
	return nil
}

func (t *SSEClientTransport) closeInternal(ctx context.Context) {
	t.mu.Lock()
	if t.state == StateClosed {
		t.mu.Unlock()
		return
	}
	t.state = StateClosed
	t.mu.Unlock()

	select {
	case <-t.closed:
	default:
		close(t.closed)
	}
	if t.cancel != nil {
		t.cancel()
	}
	select {
	case <-t.readerDone:
	case <-ctx.Done():
	case <-time.After(time.Second):
	}
}
