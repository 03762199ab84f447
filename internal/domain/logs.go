package domain

import (
	"bytes"
	"encoding/json"
)

// UnknownAgent labels log entries whose agent could not be recovered from
// the wire form. Such entries are kept with the raw text as the message;
// a run's log history is never silently thinned out.
const UnknownAgent = "Unknown"

// wireLog covers both observed log shapes: the flat {agent, message}
// object and the older revision that wraps a JSON-stringified entry in a
// single "log" field.
type wireLog struct {
	Agent     string `json:"agent"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Log       string `json:"log"`
}

// DecodeLogEntry parses one raw log element defensively. Unparsable input
// degrades to {Agent: "Unknown", Message: raw} rather than being dropped.
func DecodeLogEntry(raw json.RawMessage) LogEntry {
	raw = bytes.TrimSpace(raw)

	// A bare JSON string is the stringified form without the wrapper.
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return LogEntry{Agent: UnknownAgent, Message: string(raw)}
		}
		return decodeLogString(s)
	}

	var w wireLog
	if err := json.Unmarshal(raw, &w); err != nil {
		return LogEntry{Agent: UnknownAgent, Message: string(raw)}
	}
	if w.Log != "" {
		inner := decodeLogString(w.Log)
		if inner.Timestamp == "" {
			inner.Timestamp = w.Timestamp
		}
		return inner
	}
	if w.Agent == "" && w.Message == "" {
		return LogEntry{Agent: UnknownAgent, Message: string(raw), Timestamp: w.Timestamp}
	}
	agent := w.Agent
	if agent == "" {
		agent = UnknownAgent
	}
	return LogEntry{Agent: agent, Message: w.Message, Timestamp: w.Timestamp}
}

func decodeLogString(s string) LogEntry {
	var w wireLog
	if err := json.Unmarshal([]byte(s), &w); err != nil || (w.Agent == "" && w.Message == "") {
		return LogEntry{Agent: UnknownAgent, Message: s}
	}
	agent := w.Agent
	if agent == "" {
		agent = UnknownAgent
	}
	return LogEntry{Agent: agent, Message: w.Message, Timestamp: w.Timestamp}
}

// DecodeLogs parses a raw logs array in receipt order. Elements are never
// reordered or deduplicated.
func DecodeLogs(raw []json.RawMessage) []LogEntry {
	if len(raw) == 0 {
		return nil
	}
	out := make([]LogEntry, 0, len(raw))
	for _, r := range raw {
		out = append(out, DecodeLogEntry(r))
	}
	return out
}
