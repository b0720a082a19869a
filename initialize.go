package mcp

import (
	"context"
	"fmt"
	"time"
)

// Method names for the handshake (spec.md §4.5, §6).
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"
)

// HandshakeTimeout bounds the initialize round trip plus the follow-up
// notification. It is deliberately separate from a per-request
// RetryPolicy.TotalDeadline — spec.md §6's defaults give it its own 5s
// budget rather than inheriting the general request deadline.
const HandshakeTimeout = 5 * time.Second

// InitializeParams is the initialize request body.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Info               `json:"clientInfo"`
}

// InitializeResult is the initialize response body.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Info               `json:"serverInfo"`
}

// Session is the immutable record of what initialize negotiated: the agreed
// protocol version and both sides' declared capabilities. Every capability
// gate on the public request API (C7) checks against a Session.
type Session struct {
	ProtocolVersion    string
	ServerCapabilities ServerCapabilities
	ClientCapabilities ClientCapabilities
	ServerInfo         Info
	ClientInfo         Info
}

// requestResponder is the handshake's dependency on the rest of the client:
// a request/response round trip and a fire-and-forget notification, both
// already carrying whatever correlation and retry policy the caller wants
// applied. Defined here rather than imported from client.go so the
// handshake logic has no compile-time dependency on the client's internals.
type requestResponder interface {
	sendRequest(ctx context.Context, method string, params, result any) error
	sendNotification(ctx context.Context, method string, params any) error
}

// Handshake runs the initialize state machine of spec.md §4.5: exactly one
// initialize request, validated against the accepted set, followed by
// notifications/initialized. It must run before any other non-ping request
// is issued on the same session. A version the server names outside
// accepted always raises KindVersionMismatch with both versions attached —
// there is no sentinel zero-Session return for this or any other failure.
func Handshake(ctx context.Context, rr requestResponder, clientInfo Info, clientCaps ClientCapabilities, accepted []string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()

	if len(accepted) == 0 {
		accepted = SupportedProtocolVersions
	}

	params := InitializeParams{
		ProtocolVersion: accepted[0],
		Capabilities:    clientCaps,
		ClientInfo:      clientInfo,
	}

	var result InitializeResult
	if err := rr.sendRequest(ctx, MethodInitialize, params, &result); err != nil {
		return nil, err
	}

	if !versionAccepted(result.ProtocolVersion, accepted) {
		return nil, &Error{
			Kind:         KindVersionMismatch,
			Op:           "initialize",
			WantVersions: accepted,
			GotVersion:   result.ProtocolVersion,
		}
	}

	if err := rr.sendNotification(ctx, MethodInitialized, struct{}{}); err != nil {
		return nil, err
	}

	return &Session{
		ProtocolVersion:    result.ProtocolVersion,
		ServerCapabilities: result.Capabilities,
		ClientCapabilities: clientCaps,
		ServerInfo:         result.ServerInfo,
		ClientInfo:         clientInfo,
	}, nil
}

func versionAccepted(version string, accepted []string) bool {
	for _, a := range accepted {
		if a == version {
			return true
		}
	}
	return false
}

// requireCapability is the uniform gate the public request API (C7) runs
// before issuing any capability-gated method. ping is exempt and never
// calls this.
func requireCapability(op string, present bool) error {
	if present {
		return nil
	}
	return newError(KindCapabilityMissing, op, nil)
}

// requireSession guards every Require* method against a nil Session — a
// caller invoking a gated operation before Connect's handshake completes
// gets a classified error instead of a nil-pointer panic.
func requireSession(s *Session, op string) error {
	if s == nil {
		return newError(KindCapabilityMissing, op, fmt.Errorf("no session: initialize has not completed"))
	}
	return nil
}

// RequireTools gates tools/list and tools/call.
func (s *Session) RequireTools() error {
	if err := requireSession(s, "tools"); err != nil {
		return err
	}
	return requireCapability("tools", s.ServerCapabilities.Tools != nil)
}

// RequireResources gates resources/list and resources/read.
func (s *Session) RequireResources() error {
	if err := requireSession(s, "resources"); err != nil {
		return err
	}
	return requireCapability("resources", s.ServerCapabilities.Resources != nil)
}

// RequireResourceSubscriptions gates resources/subscribe and
// resources/unsubscribe, which additionally require the server's Subscribe
// flag within its resources capability.
func (s *Session) RequireResourceSubscriptions() error {
	if err := s.RequireResources(); err != nil {
		return err
	}
	return requireCapability("resources.subscribe", s.ServerCapabilities.Resources.Subscribe)
}

// RequirePrompts gates prompts/list and prompts/get.
func (s *Session) RequirePrompts() error {
	if err := requireSession(s, "prompts"); err != nil {
		return err
	}
	return requireCapability("prompts", s.ServerCapabilities.Prompts != nil)
}

// RequireCompletions gates completion/complete.
func (s *Session) RequireCompletions() error {
	if err := requireSession(s, "completions"); err != nil {
		return err
	}
	return requireCapability("completions", s.ServerCapabilities.Completions != nil)
}

// RequireSampling gates this client's ability to serve a server-initiated
// sampling/createMessage request — it checks the client's own declared
// capability, not the server's.
func (s *Session) RequireSampling() error {
	if err := requireSession(s, "sampling"); err != nil {
		return err
	}
	return requireCapability("sampling", s.ClientCapabilities.Sampling != nil)
}

// RequireRoots gates this client's ability to serve a server-initiated
// roots/list request.
func (s *Session) RequireRoots() error {
	if err := requireSession(s, "roots"); err != nil {
		return err
	}
	return requireCapability("roots", s.ClientCapabilities.Roots != nil)
}
