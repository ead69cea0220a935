package chat

// Message is a single entry in the conversation history sent to the chat
// backend, ordered oldest first.
type Message struct {
	Role    MessageRole
	Content string
	// ID optionally identifies the message to the caller. The backend
	// ignores it.
	ID string
}

type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

const (
	DefaultTemperature = 1.0
	DefaultTopP        = 0.7
)

// Settings carries the per-request generation parameters. Zero values fall
// back to the defaults above.
type Settings struct {
	Model       string
	Temperature float64
	TopP        float64
	// UserBio is optional free-form context about the user, forwarded to
	// the backend as prompt context.
	UserBio string
}

func (s Settings) EffectiveTemperature() float64 {
	if s.Temperature == 0 {
		return DefaultTemperature
	}
	return s.Temperature
}

func (s Settings) EffectiveTopP() float64 {
	if s.TopP == 0 {
		return DefaultTopP
	}
	return s.TopP
}

// Tool describes a function the backend may call during a reply.
// Parameters is a struct value whose fields (with jsonschema tags) define
// the argument schema.
type Tool struct {
	Name        string
	Description string
	Parameters  any
}

// ToolCallFragment is one piece of a streamed tool call. Providers may
// split the arguments JSON across fragments and omit the ID on
// continuations.
type ToolCallFragment struct {
	ID        string
	Name      string
	Arguments string
}
