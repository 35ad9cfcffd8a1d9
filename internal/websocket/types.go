package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event.
type EventType string

const (
	// EventTypeDetection is emitted for every analysis that found PII.
	EventTypeDetection EventType = "pii_detection"
	// EventTypeRequestLog is emitted for every handled HTTP request.
	EventTypeRequestLog EventType = "request_log"
	// EventTypeSystemStatus carries periodic gateway status.
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection announces client connects and disconnects.
	EventTypeConnection EventType = "connection"
)

// Event is a message sent to admin-console clients.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// DetectionEvent describes one completed analysis. It carries counts and
// types only, never span text.
type DetectionEvent struct {
	RequestID         string   `json:"request_id"`
	Language          string   `json:"language"`
	DetectionMethod   string   `json:"detection_method"`
	EntityCount       int      `json:"entity_count"`
	EntityTypes       []string `json:"entity_types"`
	RegexMatches      int      `json:"regex_matches"`
	DetectionComplete bool     `json:"detection_complete"`
	ProcessingMS      float64  `json:"processing_ms"`
}

// RequestLogEvent describes one handled HTTP request.
type RequestLogEvent struct {
	RequestID  string        `json:"request_id"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	StatusCode int           `json:"status_code"`
	ClientIP   string        `json:"client_ip"`
	Duration   time.Duration `json:"duration"`
}

// SystemStatusEvent carries gateway status information.
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalRequests    int64  `json:"total_requests"`
	TotalDetections  int64  `json:"total_detections"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent announces WebSocket connection changes.
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected" or "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
}

// ClientMessage is a message sent from a client to the hub.
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest narrows which event types a client receives.
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

// Client is one connected admin-console session.
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	IP           string
}
