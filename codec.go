package mcp

import (
	"encoding/json"
	"fmt"
)

// Encode marshals msg to canonical, UTF-8 JSON with no trailing newline in
// the payload itself — framing (e.g. the stdio transport's trailing '\n')
// is the caller's concern, not the codec's.
func Encode(msg Message) ([]byte, error) {
	if msg.JSONRPC == "" {
		msg.JSONRPC = JSONRPCVersion
	}
	bs, err := json.Marshal(msg)
	if err != nil {
		return nil, newError(KindParseError, "encode", err)
	}
	return bs, nil
}

// Decode parses a single JSON-RPC 2.0 frame, validating the invariants of
// spec.md §4.1: a "2.0" jsonrpc field, and, for anything that looks like a
// response, exactly one of result/error. Unknown fields are tolerated for
// forward compatibility — json.Unmarshal already ignores them.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, newError(KindParseError, "decode", err)
	}

	if msg.JSONRPC != JSONRPCVersion {
		return Message{}, newError(KindParseError, "decode",
			fmt.Errorf("unsupported jsonrpc version %q", msg.JSONRPC))
	}

	// A response is anything carrying an id but no method.
	if !msg.ID.IsZero() && msg.Method == "" {
		hasResult := len(msg.Result) > 0 && string(msg.Result) != "null"
		hasError := msg.Error != nil
		if hasResult == hasError {
			return Message{}, newError(KindParseError, "decode",
				fmt.Errorf("response must have exactly one of result/error"))
		}
	}

	return msg, nil
}
