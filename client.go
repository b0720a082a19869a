package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Client is the public entry point of the core: it owns a ClientTransport,
// runs the initialize handshake, correlates requests to responses, and
// dispatches inbound notifications. Construct one with NewClient and bring
// it up with Connect — NewClient itself performs no I/O, matching the
// transport's own deferred-open discipline.
type Client struct {
	transport ClientTransport
	retry     RetryPolicy
	logger    *slog.Logger

	clientInfo       Info
	clientCaps       ClientCapabilities
	acceptedVersions []string
	requestHandler   RequestClientFunc

	correlator *Correlator
	dispatcher *Dispatcher

	nextID int64

	mu      sync.Mutex
	session *Session

	readDone   chan struct{}
	notifyDone chan struct{}
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *Client) { c.retry = policy }
}

// WithAcceptedVersions overrides SupportedProtocolVersions for this client.
func WithAcceptedVersions(versions []string) ClientOption {
	return func(c *Client) { c.acceptedVersions = versions }
}

// WithClientInfo sets the Info this client presents during initialize.
func WithClientInfo(info Info) ClientOption {
	return func(c *Client) { c.clientInfo = info }
}

// WithClientCapabilities sets the capabilities this client declares during
// initialize.
func WithClientCapabilities(caps ClientCapabilities) ClientOption {
	return func(c *Client) { c.clientCaps = caps }
}

// WithRequestHandler registers the func that answers server-initiated
// requests (sampling/createMessage, roots/list). Without one, the client
// answers every server-initiated request with MethodNotFound.
func WithRequestHandler(fn RequestClientFunc) ClientOption {
	return func(c *Client) { c.requestHandler = fn }
}

// NewClient wraps transport. It performs no I/O; call Connect to open the
// transport and run the handshake.
func NewClient(transport ClientTransport, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		retry:     DefaultRetryPolicy(),
		logger:    slog.Default(),
		clientInfo: Info{
			Name:    "mcp-core",
			Version: "0",
		},
		acceptedVersions: SupportedProtocolVersions,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.correlator = NewCorrelator(c.logger)
	c.dispatcher = NewDispatcher(c.logger)
	return c
}

// Connect opens the transport, starts the read and notification loops, and
// runs the initialize handshake. On any failure it closes the transport
// before returning.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	if err := c.transport.Open(ctx); err != nil {
		return nil, err
	}

	c.readDone = make(chan struct{})
	c.notifyDone = make(chan struct{})
	go c.readLoop()
	go c.notifyLoop()

	session, err := Handshake(ctx, c, c.clientInfo, c.clientCaps, c.acceptedVersions)
	if err != nil {
		_ = c.transport.Close(ctx)
		return nil, err
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	return session, nil
}

// Close tears down the transport and stops both background loops.
func (c *Client) Close(ctx context.Context) error {
	err := c.transport.Close(ctx)
	<-c.readDone
	<-c.notifyDone
	c.dispatcher.Shutdown()
	return err
}

// Session returns the negotiated session, or nil before Connect completes.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Subscribe registers handler for notifications whose method matches
// pattern (a glob, e.g. "notifications/resources/*").
func (c *Client) Subscribe(pattern string, handler NotificationHandler) (func(), error) {
	return c.dispatcher.Subscribe(pattern, handler)
}

func (c *Client) readLoop() {
	defer close(c.readDone)
	defer c.correlator.Shutdown()

	for msg := range c.transport.Messages() {
		switch {
		case msg.IsResponse():
			c.correlator.Deliver(msg)
		case msg.IsRequest():
			go c.handleServerRequest(msg)
		default:
			c.logger.Warn("dropping frame that is neither response nor request", slog.String("method", msg.Method))
		}
	}
}

func (c *Client) notifyLoop() {
	defer close(c.notifyDone)

	notifications := c.transport.Notifications()
	for {
		select {
		case msg, ok := <-notifications:
			if !ok {
				return
			}
			c.dispatcher.Dispatch(msg)
		case <-c.readDone:
			// The read loop ends once the transport is closed or hits EOF;
			// transports never close their notifications channel themselves.
			return
		}
	}
}

func (c *Client) handleServerRequest(msg Message) {
	ctx := context.Background()

	if err := c.checkServerRequestCapability(msg.Method); err != nil {
		c.replyError(ctx, msg.ID, CodeMethodNotFound, err.Error())
		return
	}

	if c.requestHandler == nil {
		c.replyError(ctx, msg.ID, CodeMethodNotFound, fmt.Sprintf("no handler registered for %q", msg.Method))
		return
	}

	resp, err := c.requestHandler(ctx, msg)
	if err != nil {
		c.replyError(ctx, msg.ID, CodeInternalError, err.Error())
		return
	}
	resp.JSONRPC = JSONRPCVersion
	resp.ID = msg.ID
	if err := c.transport.Write(ctx, resp); err != nil {
		c.logger.Warn("failed to write server-request response", slog.String("err", err.Error()))
	}
}

func (c *Client) checkServerRequestCapability(method string) error {
	session := c.Session()
	if session == nil {
		return nil
	}
	switch method {
	case MethodSamplingCreateMessage:
		return session.RequireSampling()
	case MethodRootsList:
		return session.RequireRoots()
	default:
		return nil
	}
}

func (c *Client) replyError(ctx context.Context, id RequestID, code int, message string) {
	resp := Message{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &ErrorObject{Code: code, Message: message},
	}
	if err := c.transport.Write(ctx, resp); err != nil {
		c.logger.Warn("failed to write error response", slog.String("err", err.Error()))
	}
}

func (c *Client) newID() RequestID {
	return NewIntID(atomic.AddInt64(&c.nextID, 1))
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	bs, err := json.Marshal(params)
	if err != nil {
		return nil, newError(KindNonRetryable, "marshal", err)
	}
	return bs, nil
}

// sendRequest implements requestResponder: it issues method under the
// client's RetryPolicy, reissuing with a fresh id on each retryable
// attempt, and decodes the response's result into result (when non-nil).
func (c *Client) sendRequest(ctx context.Context, method string, params, result any) error {
	paramsRaw, err := marshalParams(params)
	if err != nil {
		return err
	}

	attempt := func(attemptCtx context.Context) (Message, error) {
		id := c.newID()
		sink := c.correlator.Register(id)

		req := Message{JSONRPC: JSONRPCVersion, ID: id, Method: method, Params: paramsRaw}
		if writeErr := c.transport.Write(attemptCtx, req); writeErr != nil {
			c.correlator.Cancel(id, writeErr)
			return Message{}, writeErr
		}

		select {
		case res := <-sink:
			if res.err != nil {
				return Message{}, res.err
			}
			if res.msg.Error != nil {
				return Message{}, &Error{Kind: classifyRPCError(res.msg.Error), Op: method, Err: res.msg.Error}
			}
			return res.msg, nil
		case <-attemptCtx.Done():
			c.correlator.Cancel(id, attemptCtx.Err())
			return Message{}, newError(KindCancelled, method, attemptCtx.Err())
		}
	}

	msg, err := DoWithRetry(ctx, c.retry, attempt)
	if err != nil {
		return err
	}
	if result != nil && len(msg.Result) > 0 {
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return newError(KindParseError, method, err)
		}
	}
	return nil
}

// sendNotification implements requestResponder. Notifications are
// fire-and-forget: no correlation, no retry.
func (c *Client) sendNotification(ctx context.Context, method string, params any) error {
	paramsRaw, err := marshalParams(params)
	if err != nil {
		return err
	}
	msg := Message{JSONRPC: JSONRPCVersion, Method: method, Params: paramsRaw}
	return c.transport.Write(ctx, msg)
}

// Ping issues the ungated keepalive request (spec.md §4.5): it is the only
// request method that never checks session capabilities.
func (c *Client) Ping(ctx context.Context) error {
	return c.sendRequest(ctx, MethodPing, nil, nil)
}
