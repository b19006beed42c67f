package model

import "time"

// RawCapture is one inbound free-text report plus capture metadata.
// The original text is immutable once stored.
type RawCapture struct {
	ID         int64     `json:"id"`
	CapturedAt time.Time `json:"captured_at"`
	AgentID    string    `json:"agent_id"`
	Text       string    `json:"original_text"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	MessageRef *int64    `json:"message_ref,omitempty"`
	Processed  bool      `json:"processed"`
}
