package model

type EventType string

const EVENT_PROGRESS EventType = "progress"
const EVENT_NODE_COMPLETE EventType = "node_complete"
const EVENT_ERROR EventType = "error"
const EVENT_COMPLETE EventType = "complete"

type ProgressEvent struct {
	Type     EventType      `json:"type"`
	NodeId   string         `json:"node_id,omitempty"`
	Message  string         `json:"message"`
	Progress int            `json:"progress"`
	Data     map[string]any `json:"data,omitempty"`
}
