package mcp

import "context"

// Method names for the public request API (spec.md §4.6, §6).
const (
	MethodToolsList               = "tools/list"
	MethodToolsCall               = "tools/call"
	MethodResourcesList           = "resources/list"
	MethodResourcesRead           = "resources/read"
	MethodResourcesSubscribe      = "resources/subscribe"
	MethodResourcesUnsubscribe    = "resources/unsubscribe"
	MethodPromptsList             = "prompts/list"
	MethodPromptsGet              = "prompts/get"
	MethodSamplingCreateMessage   = "sampling/createMessage"
	MethodCompletionComplete      = "completion/complete"
	MethodRootsList               = "roots/list"
)

// Content is a single piece of tool/prompt/sampling content. Exactly one of
// Text/Data is populated depending on Type ("text", "image", "resource").
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Tool describes one server-exposed tool.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"inputSchema,omitempty"`
}

// ListToolsParams is the tools/list request body.
type ListToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListToolsResult is the tools/list response body.
type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// ListTools returns the server's available tools.
func (c *Client) ListTools(ctx context.Context, params ListToolsParams) (ListToolsResult, error) {
	session := c.Session()
	if err := session.RequireTools(); err != nil {
		return ListToolsResult{}, err
	}
	var result ListToolsResult
	if err := c.sendRequest(ctx, MethodToolsList, params, &result); err != nil {
		return ListToolsResult{}, err
	}
	return result, nil
}

// CallToolParams is the tools/call request body.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CallToolResult is the tools/call response body.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// CallTool invokes a single tool by name.
func (c *Client) CallTool(ctx context.Context, params CallToolParams) (CallToolResult, error) {
	session := c.Session()
	if err := session.RequireTools(); err != nil {
		return CallToolResult{}, err
	}
	var result CallToolResult
	if err := c.sendRequest(ctx, MethodToolsCall, params, &result); err != nil {
		return CallToolResult{}, err
	}
	return result, nil
}

// Resource describes one server-exposed resource.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourcesParams is the resources/list request body.
type ListResourcesParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListResourcesResult is the resources/list response body.
type ListResourcesResult struct {
	Resources  []Resource `json:"resources"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// ListResources returns the server's available resources.
func (c *Client) ListResources(ctx context.Context, params ListResourcesParams) (ListResourcesResult, error) {
	session := c.Session()
	if err := session.RequireResources(); err != nil {
		return ListResourcesResult{}, err
	}
	var result ListResourcesResult
	if err := c.sendRequest(ctx, MethodResourcesList, params, &result); err != nil {
		return ListResourcesResult{}, err
	}
	return result, nil
}

// ResourceContent is one item of a resources/read response.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ReadResourceParams is the resources/read request body.
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ReadResourceResult is the resources/read response body.
type ReadResourceResult struct {
	Contents []ResourceContent `json:"contents"`
}

// ReadResource fetches the content of a single resource by URI.
func (c *Client) ReadResource(ctx context.Context, params ReadResourceParams) (ReadResourceResult, error) {
	session := c.Session()
	if err := session.RequireResources(); err != nil {
		return ReadResourceResult{}, err
	}
	var result ReadResourceResult
	if err := c.sendRequest(ctx, MethodResourcesRead, params, &result); err != nil {
		return ReadResourceResult{}, err
	}
	return result, nil
}

// SubscribeResourceParams is the resources/subscribe request body.
type SubscribeResourceParams struct {
	URI string `json:"uri"`
}

// SubscribeResource asks the server to notify this client of changes to uri.
// Requires the server's resources.subscribe capability.
func (c *Client) SubscribeResource(ctx context.Context, params SubscribeResourceParams) error {
	session := c.Session()
	if err := session.RequireResourceSubscriptions(); err != nil {
		return err
	}
	return c.sendRequest(ctx, MethodResourcesSubscribe, params, nil)
}

// UnsubscribeResourceParams is the resources/unsubscribe request body.
type UnsubscribeResourceParams struct {
	URI string `json:"uri"`
}

// UnsubscribeResource reverses a prior SubscribeResource.
func (c *Client) UnsubscribeResource(ctx context.Context, params UnsubscribeResourceParams) error {
	session := c.Session()
	if err := session.RequireResourceSubscriptions(); err != nil {
		return err
	}
	return c.sendRequest(ctx, MethodResourcesUnsubscribe, params, nil)
}

// PromptArgument describes one named prompt argument.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Prompt describes one server-exposed prompt template.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// ListPromptsParams is the prompts/list request body.
type ListPromptsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListPromptsResult is the prompts/list response body.
type ListPromptsResult struct {
	Prompts    []Prompt `json:"prompts"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

// ListPrompts returns the server's available prompt templates.
func (c *Client) ListPrompts(ctx context.Context, params ListPromptsParams) (ListPromptsResult, error) {
	session := c.Session()
	if err := session.RequirePrompts(); err != nil {
		return ListPromptsResult{}, err
	}
	var result ListPromptsResult
	if err := c.sendRequest(ctx, MethodPromptsList, params, &result); err != nil {
		return ListPromptsResult{}, err
	}
	return result, nil
}

// PromptMessage is one rendered message of a prompts/get response.
type PromptMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// GetPromptParams is the prompts/get request body.
type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// GetPromptResult is the prompts/get response body.
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// GetPrompt renders a prompt template by name.
func (c *Client) GetPrompt(ctx context.Context, params GetPromptParams) (GetPromptResult, error) {
	session := c.Session()
	if err := session.RequirePrompts(); err != nil {
		return GetPromptResult{}, err
	}
	var result GetPromptResult
	if err := c.sendRequest(ctx, MethodPromptsGet, params, &result); err != nil {
		return GetPromptResult{}, err
	}
	return result, nil
}

// SamplingMessage is one turn of a sampling/createMessage conversation.
type SamplingMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// CreateMessageParams is the sampling/createMessage request body.
type CreateMessageParams struct {
	Messages        []SamplingMessage `json:"messages"`
	MaxTokens       int               `json:"maxTokens,omitempty"`
	SystemPrompt    string            `json:"systemPrompt,omitempty"`
	Temperature     float64           `json:"temperature,omitempty"`
	StopSequences   []string          `json:"stopSequences,omitempty"`
}

// CreateMessageResult is the sampling/createMessage response body.
type CreateMessageResult struct {
	Role       string  `json:"role"`
	Content    Content `json:"content"`
	Model      string  `json:"model,omitempty"`
	StopReason string  `json:"stopReason,omitempty"`
}

// CreateMessage issues a sampling/createMessage request. Requires this
// client's own Sampling capability, since an application that never
// declared it has nothing to answer a reciprocal server-initiated
// sampling request with.
func (c *Client) CreateMessage(ctx context.Context, params CreateMessageParams) (CreateMessageResult, error) {
	session := c.Session()
	if err := session.RequireSampling(); err != nil {
		return CreateMessageResult{}, err
	}
	var result CreateMessageResult
	if err := c.sendRequest(ctx, MethodSamplingCreateMessage, params, &result); err != nil {
		return CreateMessageResult{}, err
	}
	return result, nil
}

// CompletionReference names what is being completed: a prompt or a
// resource template.
type CompletionReference struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	URI  string `json:"uri,omitempty"`
}

// CompletionArgument is the partially-typed argument to complete.
type CompletionArgument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CompleteParams is the completion/complete request body.
type CompleteParams struct {
	Ref      CompletionReference `json:"ref"`
	Argument CompletionArgument  `json:"argument"`
}

// CompletionValues is the completion/complete response's completion set.
type CompletionValues struct {
	Values  []string `json:"values"`
	Total   int      `json:"total,omitempty"`
	HasMore bool     `json:"hasMore,omitempty"`
}

// CompleteResult is the completion/complete response body.
type CompleteResult struct {
	Completion CompletionValues `json:"completion"`
}

// Complete requests argument completions for a prompt or resource template.
func (c *Client) Complete(ctx context.Context, params CompleteParams) (CompleteResult, error) {
	session := c.Session()
	if err := session.RequireCompletions(); err != nil {
		return CompleteResult{}, err
	}
	var result CompleteResult
	if err := c.sendRequest(ctx, MethodCompletionComplete, params, &result); err != nil {
		return CompleteResult{}, err
	}
	return result, nil
}

// Root is one filesystem or URI root this client exposes to the server.
type Root struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

// ListRootsResult is the roots/list response body.
type ListRootsResult struct {
	Roots []Root `json:"roots"`
}
