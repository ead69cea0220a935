package voicechat

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tinybuddy/buddy-core/core/chat"
)

// CompletedToolCall is a tool invocation whose argument payload parsed as a
// JSON object.
type CompletedToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// MediaID returns the "id" argument, the catalog key every media tool carries.
func (c CompletedToolCall) MediaID() string {
	if c.Arguments == nil {
		return ""
	}
	id, _ := c.Arguments["id"].(string)
	return id
}

type argumentState int

const (
	argumentsIncomplete argumentState = iota
	argumentsComplete
	argumentsInvalid
)

type toolCallEntry struct {
	id        string
	name      string
	arguments strings.Builder
	completed bool
	invalid   bool
}

// toolCallAccumulator stitches streamed tool-call fragments back into whole
// calls. Fragments arrive with the call ID only on the first piece; later
// pieces are attributed to the most recently seen ID.
type toolCallAccumulator struct {
	entries map[string]*toolCallEntry
	order   []string
	lastID  string
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{entries: map[string]*toolCallEntry{}}
}

// Ingest folds one fragment into the accumulator. It returns a completed
// call when this fragment closed the argument object, and nil otherwise.
func (a *toolCallAccumulator) Ingest(ctx context.Context, fragment chat.ToolCallFragment) *CompletedToolCall {
	id := fragment.ID
	if id == "" {
		id = a.lastID
	}
	if id == "" {
		logger.WarnContext(ctx, "dropping tool call fragment with no call to attach to",
			"name", fragment.Name, "arguments", fragment.Arguments)
		return nil
	}
	a.lastID = id

	entry, ok := a.entries[id]
	if !ok {
		entry = &toolCallEntry{id: id}
		a.entries[id] = entry
		a.order = append(a.order, id)
	}
	if fragment.Name != "" {
		entry.name = fragment.Name
	}
	entry.arguments.WriteString(fragment.Arguments)
	if entry.completed || entry.invalid {
		return nil
	}

	switch scanArgumentObject(entry.arguments.String()) {
	case argumentsIncomplete:
		return nil
	case argumentsInvalid:
		entry.invalid = true
		logger.WarnContext(ctx, "tool call arguments are not a JSON object",
			"id", entry.id, "name", entry.name, "arguments", entry.arguments.String())
		return nil
	}

	arguments := map[string]any{}
	if err := json.Unmarshal([]byte(entry.arguments.String()), &arguments); err != nil {
		// Balanced braces but still unparseable, keep accumulating in
		// case later fragments fix it up.
		return nil
	}
	entry.completed = true
	return &CompletedToolCall{ID: entry.id, Name: entry.name, Arguments: arguments}
}

// FinishStream attempts to recover calls whose arguments never completed
// before the stream ended. Truncated objects are closed with the missing
// braces; when that still fails to parse, the "id" argument is pulled out
// with a regex so the media lookup can proceed.
func (a *toolCallAccumulator) FinishStream(ctx context.Context) []*CompletedToolCall {
	var recovered []*CompletedToolCall
	for _, id := range a.order {
		entry := a.entries[id]
		if entry.completed {
			continue
		}
		call := repairToolCall(entry)
		if call == nil {
			logger.WarnContext(ctx, "discarding unrecoverable tool call",
				"id", entry.id, "name", entry.name, "arguments", entry.arguments.String())
			continue
		}
		entry.completed = true
		recovered = append(recovered, call)
	}
	return recovered
}

var mediaIDPattern = regexp.MustCompile(`"id"\s*:\s*"([^"]*)"`)

func repairToolCall(entry *toolCallEntry) *CompletedToolCall {
	raw := strings.TrimSpace(entry.arguments.String())
	if raw == "" || !strings.HasPrefix(raw, "{") {
		return nil
	}
	if depth := openBraceDepth(raw); depth > 0 {
		padded := raw + strings.Repeat("}", depth)
		arguments := map[string]any{}
		if err := json.Unmarshal([]byte(padded), &arguments); err == nil {
			return &CompletedToolCall{ID: entry.id, Name: entry.name, Arguments: arguments}
		}
	}
	match := mediaIDPattern.FindStringSubmatch(raw)
	if match == nil {
		return nil
	}
	return &CompletedToolCall{
		ID:        entry.id,
		Name:      entry.name,
		Arguments: map[string]any{"id": match[1]},
	}
}

// scanArgumentObject walks the accumulated argument text tracking brace
// depth, string state, and escapes. Braces and quotes inside JSON strings
// do not affect depth.
func scanArgumentObject(raw string) argumentState {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return argumentsIncomplete
	}
	if trimmed[0] != '{' {
		return argumentsInvalid
	}

	depth := 0
	inString := false
	escaped := false
	for _, r := range trimmed {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth < 0 {
					return argumentsInvalid
				}
			}
		}
	}
	if depth == 0 && !inString {
		return argumentsComplete
	}
	return argumentsIncomplete
}

// openBraceDepth reports how many object braces are left unclosed, again
// ignoring anything inside strings. An unterminated string counts as
// unrecoverable and reports zero.
func openBraceDepth(raw string) int {
	depth := 0
	inString := false
	escaped := false
	for _, r := range raw {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
			}
		}
	}
	if inString || depth < 0 {
		return 0
	}
	return depth
}
