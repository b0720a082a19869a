package mcp

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeResponder struct {
	initResult       InitializeResult
	initErr          error
	notifiedMethod   string
	notifyErr        error
}

func (f *fakeResponder) sendRequest(ctx context.Context, method string, params, result any) error {
	if f.initErr != nil {
		return f.initErr
	}
	bs, err := json.Marshal(f.initResult)
	if err != nil {
		return err
	}
	return json.Unmarshal(bs, result)
}

func (f *fakeResponder) sendNotification(ctx context.Context, method string, params any) error {
	f.notifiedMethod = method
	return f.notifyErr
}

func TestHandshakeHappyPath(t *testing.T) {
	responder := &fakeResponder{
		initResult: InitializeResult{
			ProtocolVersion: ProtocolVersionLatest,
			Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
			ServerInfo:      Info{Name: "srv", Version: "1"},
		},
	}

	session, err := Handshake(context.Background(), responder, Info{Name: "cli", Version: "1"}, ClientCapabilities{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.ProtocolVersion != ProtocolVersionLatest {
		t.Fatalf("got version %q", session.ProtocolVersion)
	}
	if responder.notifiedMethod != MethodInitialized {
		t.Fatalf("notifications/initialized was not sent, got %q", responder.notifiedMethod)
	}
}

func TestHandshakeAcceptsVersionDowngrade(t *testing.T) {
	responder := &fakeResponder{
		initResult: InitializeResult{ProtocolVersion: ProtocolVersion20241105},
	}
	session, err := Handshake(context.Background(), responder, Info{}, ClientCapabilities{}, SupportedProtocolVersions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.ProtocolVersion != ProtocolVersion20241105 {
		t.Fatalf("got %q", session.ProtocolVersion)
	}
}

func TestHandshakeRejectsUnacceptedVersion(t *testing.T) {
	responder := &fakeResponder{
		initResult: InitializeResult{ProtocolVersion: "1999-01-01"},
	}
	_, err := Handshake(context.Background(), responder, Info{}, ClientCapabilities{}, SupportedProtocolVersions)
	if KindOf(err) != KindVersionMismatch {
		t.Fatalf("got kind %v, want KindVersionMismatch", KindOf(err))
	}
	var mcpErr *Error
	if e, ok := err.(*Error); ok {
		mcpErr = e
	} else {
		t.Fatalf("error is not *Error: %T", err)
	}
	if mcpErr.GotVersion != "1999-01-01" {
		t.Fatalf("got version %q", mcpErr.GotVersion)
	}
	if len(mcpErr.WantVersions) == 0 {
		t.Fatal("WantVersions was not populated")
	}
}

func TestSessionCapabilityGates(t *testing.T) {
	session := &Session{
		ServerCapabilities: ServerCapabilities{Tools: &ToolsCapability{}},
		ClientCapabilities: ClientCapabilities{},
	}

	if err := session.RequireTools(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := session.RequireResources(); KindOf(err) != KindCapabilityMissing {
		t.Fatalf("got kind %v, want KindCapabilityMissing", KindOf(err))
	}
	if err := session.RequireSampling(); KindOf(err) != KindCapabilityMissing {
		t.Fatalf("got kind %v, want KindCapabilityMissing", KindOf(err))
	}
}

func TestSessionResourceSubscriptionsRequireSubscribeFlag(t *testing.T) {
	session := &Session{
		ServerCapabilities: ServerCapabilities{Resources: &ResourcesCapability{Subscribe: false}},
	}
	if err := session.RequireResourceSubscriptions(); KindOf(err) != KindCapabilityMissing {
		t.Fatalf("got kind %v, want KindCapabilityMissing", KindOf(err))
	}

	session.ServerCapabilities.Resources.Subscribe = true
	if err := session.RequireResourceSubscriptions(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
