package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypePIIDetection is sent after a scan or mask found PII
	EventTypePIIDetection EventType = "pii_detection"
	// EventTypeRuleApplied is sent after a rule ran, successfully or not
	EventTypeRuleApplied EventType = "rule_applied"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// DetectionEvent carries per-type counts only. Detected values never
// leave the process through the event feed.
type DetectionEvent struct {
	Operation    string         `json:"operation"`
	Counts       map[string]int `json:"counts"`
	Total        int            `json:"total"`
	ProcessingMS float64        `json:"processing_ms"`
}

// RuleEvent describes one rule execution
type RuleEvent struct {
	RuleID       string  `json:"rule_id"`
	Outcome      string  `json:"outcome"`
	InputBytes   int     `json:"input_bytes"`
	OutputBytes  int     `json:"output_bytes"`
	ProcessingMS float64 `json:"processing_ms"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type   string      `json:"type"`
	Events []EventType `json:"events,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	conn *websocket.Conn

	mu       sync.RWMutex
	events   map[EventType]bool
	lastPing time.Time
}

// Subscribe limits the client to the given event types. An empty list
// subscribes to everything.
func (c *Client) Subscribe(events []EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(events) == 0 {
		c.events = nil
		return
	}
	c.events = make(map[EventType]bool, len(events))
	for _, e := range events {
		c.events[e] = true
	}
}

// Wants reports whether the client's subscription covers t
func (c *Client) Wants(t EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.events == nil {
		return true
	}
	return c.events[t]
}
