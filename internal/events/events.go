// Package events defines the SSE wire event taxonomy (spec §4.6) and a
// factory for constructing them, mirroring the EventFactory shape in
// the original Python implementation's core/events.py.
package events

// Type is the wire "type" discriminator of an SSE event.
type Type string

const (
	TypeUser            Type = "user"
	TypeChatStart       Type = "chat_start"
	TypeChat            Type = "chat"
	TypeChatEnd         Type = "chat_end"
	TypeReasoningStart  Type = "reasoning_start"
	TypeReasoning       Type = "reasoning"
	TypeReasoningEnd    Type = "reasoning_end"
	TypeSummaryStart    Type = "summary_start"
	TypeSummaryEnd      Type = "summary_end"
	TypeToolCall        Type = "tool_call"
	TypeFileEdit        Type = "file_edit"
	TypeError           Type = "error"
	TypeDone            Type = "done"
)

// Event is the wire shape of every SSE event. Only the fields relevant
// to Type are populated; omitempty keeps the JSON payload minimal.
type Event struct {
	Type      Type           `json:"type"`
	DialogID  string         `json:"dialog_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	Name      string         `json:"name,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	File      string         `json:"file,omitempty"`
	Diff      string         `json:"diff,omitempty"`
	Checkpoint string        `json:"checkpoint,omitempty"`
	Session   string         `json:"session,omitempty"`
	Error     string         `json:"error,omitempty"`
	Code      string         `json:"code,omitempty"`
	Done      bool           `json:"done,omitempty"`
}

func User(dialogID, content, checkpoint, session string) Event {
	return Event{Type: TypeUser, DialogID: dialogID, Content: content, Checkpoint: checkpoint, Session: session}
}

func ChatStart(dialogID string) Event { return Event{Type: TypeChatStart, DialogID: dialogID} }

func Chat(dialogID, content string) Event {
	return Event{Type: TypeChat, DialogID: dialogID, Content: content}
}

func ChatEnd(dialogID string) Event { return Event{Type: TypeChatEnd, DialogID: dialogID} }

func ReasoningStart(dialogID string) Event {
	return Event{Type: TypeReasoningStart, DialogID: dialogID}
}

func Reasoning(dialogID, content string) Event {
	return Event{Type: TypeReasoning, DialogID: dialogID, Content: content}
}

func ReasoningEnd(dialogID string) Event { return Event{Type: TypeReasoningEnd, DialogID: dialogID} }

func SummaryStart(dialogID string) Event { return Event{Type: TypeSummaryStart, DialogID: dialogID} }

func SummaryEnd(dialogID string) Event { return Event{Type: TypeSummaryEnd, DialogID: dialogID} }

func ToolCall(dialogID, name string, args map[string]any) Event {
	return Event{Type: TypeToolCall, DialogID: dialogID, Name: name, Args: args}
}

func FileEdit(dialogID, file, diff, checkpoint string) Event {
	return Event{Type: TypeFileEdit, DialogID: dialogID, File: file, Diff: diff, Checkpoint: checkpoint}
}

func ErrorEvent(dialogID, code, message string) Event {
	return Event{Type: TypeError, DialogID: dialogID, Code: code, Error: message}
}

func Done(dialogID string) Event { return Event{Type: TypeDone, DialogID: dialogID, Done: true} }
