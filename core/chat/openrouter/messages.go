package openrouter

import (
	"github.com/jinzhu/copier"
	"github.com/tinybuddy/buddy-core/core/chat"
)

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

func toMessages(history []chat.Message) []message {
	messages := []message{}
	copier.Copy(&messages, &history)
	return messages
}

type requestBody struct {
	Model       string         `json:"model,omitempty"`
	Messages    []message      `json:"messages"`
	Stream      bool           `json:"stream"`
	Temperature float64        `json:"temperature"`
	TopP        float64        `json:"top_p"`
	UserID      string         `json:"user_id"`
	Tools       []tool         `json:"tools,omitempty"`
	ToolChoice  *string        `json:"tool_choice,omitempty"`
	Context     *promptContext `json:"prompt_context,omitempty"`
}

type promptContext struct {
	UserBio string `json:"USER_BIO,omitempty"`
}

type toolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function toolCallFunction `json:"function"`
}

type toolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// streamRecord covers both payload shapes the backend is known to emit:
// OpenAI-style choice deltas and the flattened {text, done} proxy records.
// Tool call fragments can arrive in either location.
type streamRecord struct {
	Choices []struct {
		Delta struct {
			Content   string     `json:"content"`
			ToolCalls []toolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`

	Text      string     `json:"text"`
	Done      bool       `json:"done"`
	ToolCalls []toolCall `json:"tool_calls"`

	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type responseBody struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
