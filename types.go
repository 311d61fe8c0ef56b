package acpsdk

import "github.com/hostbridge/acp-sdk-go/internal/wire"

// Implementation identifies a protocol participant, exchanged at handshake.
type Implementation struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version,omitempty"`
}

// FileSystemCapability advertises which file operations the host offers the
// agent.
type FileSystemCapability struct {
	ReadTextFile  bool `json:"readTextFile"`
	WriteTextFile bool `json:"writeTextFile"`
}

// ClientCapabilities is the host's side of capability negotiation.
// Immutable for the lifetime of a connection once the handshake completes.
type ClientCapabilities struct {
	Fs       FileSystemCapability `json:"fs"`
	Terminal bool                 `json:"terminal"`
	Meta     map[string]any       `json:"_meta,omitempty"`
}

// PromptCapabilities advertises which prompt content the agent accepts.
type PromptCapabilities struct {
	Image           bool `json:"image,omitempty"`
	Audio           bool `json:"audio,omitempty"`
	EmbeddedContext bool `json:"embeddedContext,omitempty"`
}

// McpCapabilities advertises which MCP transports the agent can dial.
type McpCapabilities struct {
	HTTP bool `json:"http,omitempty"`
	SSE  bool `json:"sse,omitempty"`
}

// AgentCapabilities is the agent's side of capability negotiation.
type AgentCapabilities struct {
	LoadSession        bool                `json:"loadSession,omitempty"`
	PromptCapabilities *PromptCapabilities `json:"promptCapabilities,omitempty"`
	McpCapabilities    *McpCapabilities    `json:"mcpCapabilities,omitempty"`
}

// EnvVariable is one environment entry for a forwarded MCP server.
type EnvVariable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// McpServer describes an MCP server the agent should connect to. The
// client only forwards these descriptors; it never speaks MCP itself.
type McpServer struct {
	Name    string        `json:"name"`
	Command string        `json:"command"`
	Args    []string      `json:"args,omitempty"`
	Env     []EnvVariable `json:"env,omitempty"`
}

// ModelInfo is one selectable model advertised by the agent.
type ModelInfo struct {
	ModelID string `json:"modelId"`
	Name    string `json:"name,omitempty"`
}

// ModeInfo is one selectable session mode advertised by the agent.
type ModeInfo struct {
	ModeID string `json:"modeId"`
	Name   string `json:"name,omitempty"`
}

// ConfigCategory classifies a configurable session dimension.
type ConfigCategory string

const (
	ConfigCategoryMode         ConfigCategory = "mode"
	ConfigCategoryModel        ConfigCategory = "model"
	ConfigCategoryThoughtLevel ConfigCategory = "thought_level"
)

// ConfigValue is one selectable value of a ConfigOption.
type ConfigValue struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

// ConfigOption is one configurable session dimension. The menu is always
// re-fetched wholesale: selecting one option may invalidate what another
// offers.
type ConfigOption struct {
	ID           string         `json:"id"`
	Category     ConfigCategory `json:"category"`
	CurrentValue string         `json:"currentValue"`
	Options      []ConfigValue  `json:"options,omitempty"`
}

// PlanEntry is one step of an agent plan. Plans are replaced wholesale,
// never merged.
type PlanEntry struct {
	Content  string `json:"content"`
	Priority string `json:"priority,omitempty"`
	Status   string `json:"status,omitempty"`
}

// PermissionOptionKind classifies a permission choice.
type PermissionOptionKind string

const (
	PermissionAllowOnce    PermissionOptionKind = "allow_once"
	PermissionAllowAlways  PermissionOptionKind = "allow_always"
	PermissionRejectOnce   PermissionOptionKind = "reject_once"
	PermissionRejectAlways PermissionOptionKind = "reject_always"
)

// PermissionOption is one choice offered by a permission request.
type PermissionOption struct {
	OptionID string               `json:"optionId"`
	Name     string               `json:"name"`
	Kind     PermissionOptionKind `json:"kind,omitempty"`
}

// StopReason is the terminal classification of why a turn ended.
type StopReason string

const (
	StopReasonEndTurn         StopReason = "end_turn"
	StopReasonMaxTokens       StopReason = "max_tokens"
	StopReasonMaxTurnRequests StopReason = "max_turn_requests"
	StopReasonRefusal         StopReason = "refusal"
	StopReasonCancelled       StopReason = "cancelled"
)

// ContentBlock is one element of prompt or replayed message content.
// Use a type switch to determine the concrete type.
type ContentBlock interface {
	BlockType() string
}

// Compile-time verification that all block types implement ContentBlock.
var (
	_ ContentBlock = (*TextBlock)(nil)
	_ ContentBlock = (*ImageBlock)(nil)
	_ ContentBlock = (*AudioBlock)(nil)
	_ ContentBlock = (*ResourceLinkBlock)(nil)
	_ ContentBlock = (*RawBlock)(nil)
)

// TextBlock carries plain text.
type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// BlockType implements ContentBlock.
func (b *TextBlock) BlockType() string { return "text" }

// Text builds a text content block.
func Text(text string) *TextBlock {
	return &TextBlock{Type: "text", Text: text}
}

// ImageBlock carries base64-encoded image data.
type ImageBlock struct {
	Type     string `json:"type"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// BlockType implements ContentBlock.
func (b *ImageBlock) BlockType() string { return "image" }

// AudioBlock carries base64-encoded audio data.
type AudioBlock struct {
	Type     string `json:"type"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// BlockType implements ContentBlock.
func (b *AudioBlock) BlockType() string { return "audio" }

// ResourceLinkBlock references embedded context by URI.
type ResourceLinkBlock struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

// BlockType implements ContentBlock.
func (b *ResourceLinkBlock) BlockType() string { return "resource_link" }

// RawBlock preserves a content block of a type this SDK does not model.
// Version-skewed agents may send shapes we have no struct for; dropping
// them would lose data, so the raw fields ride along.
type RawBlock struct {
	Type   string
	Fields map[string]any
}

// BlockType implements ContentBlock.
func (b *RawBlock) BlockType() string { return b.Type }

// contentText extracts the text of a wire content object, tolerating both
// a bare text block and nothing at all.
func contentText(content wire.Object) string {
	if content == nil {
		return ""
	}

	return content.Str("text")
}

func parseModels(models wire.Object) (current string, available []ModelInfo) {
	if models == nil {
		return "", nil
	}

	current = models.Str("currentModelId")

	for _, m := range models.Objs("availableModels") {
		id := m.Str("modelId")
		if id == "" {
			id = m.Str("id")
		}

		if id == "" {
			continue
		}

		available = append(available, ModelInfo{ModelID: id, Name: m.Str("name")})
	}

	return current, available
}

func parseModes(modes wire.Object) (current string, available []ModeInfo) {
	if modes == nil {
		return "", nil
	}

	current = modes.Str("currentModeId")

	for _, m := range modes.Objs("availableModes") {
		id := m.Str("modeId")
		if id == "" {
			id = m.Str("id")
		}

		if id == "" {
			continue
		}

		available = append(available, ModeInfo{ModeID: id, Name: m.Str("name")})
	}

	return current, available
}

func parseConfigOptions(raw []wire.Object) []ConfigOption {
	if raw == nil {
		return nil
	}

	options := make([]ConfigOption, 0, len(raw))

	for _, o := range raw {
		opt := ConfigOption{
			ID:           o.Str("id"),
			Category:     ConfigCategory(o.Str("category")),
			CurrentValue: o.Str("currentValue"),
		}

		for _, v := range o.Objs("options") {
			opt.Options = append(opt.Options, ConfigValue{
				Value: v.Str("value"),
				Name:  v.Str("name"),
			})
		}

		options = append(options, opt)
	}

	return options
}

func parsePlanEntries(raw []wire.Object) []PlanEntry {
	entries := make([]PlanEntry, 0, len(raw))

	for _, e := range raw {
		entries = append(entries, PlanEntry{
			Content:  e.Str("content"),
			Priority: e.Str("priority"),
			Status:   e.Str("status"),
		})
	}

	return entries
}

func parsePermissionOptions(raw []wire.Object) []PermissionOption {
	options := make([]PermissionOption, 0, len(raw))

	for _, o := range raw {
		options = append(options, PermissionOption{
			OptionID: o.Str("optionId"),
			Name:     o.Str("name"),
			Kind:     PermissionOptionKind(o.Str("kind")),
		})
	}

	return options
}
