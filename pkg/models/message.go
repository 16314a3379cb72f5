package models

import (
	"time"
)

// Message is the unit of exchange on the communication fabric.
type Message struct {
	SenderID  string      `json:"sender_id,omitempty"`
	Recipient string      `json:"recipient,omitempty"`
	Type      string      `json:"type"`
	Content   interface{} `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Metadata  JSONMap     `json:"metadata,omitempty"`
}

// DeliveryStatus is the outcome classification of a send attempt.
type DeliveryStatus string

const (
	// DeliveryDelivered means the recipient handled the message
	// synchronously and a response is available.
	DeliveryDelivered DeliveryStatus = "delivered"
	// DeliveryPending means the recipient was an unresolved agent id;
	// a name-resolution layer above the fabric must finish delivery.
	DeliveryPending DeliveryStatus = "pending"
	// DeliveryQueued means the message sits on the async queue.
	DeliveryQueued DeliveryStatus = "queued"
	// DeliverySent means an external transport accepted the message.
	DeliverySent DeliveryStatus = "sent"
	// DeliveryFailed means the send was rejected or errored.
	DeliveryFailed DeliveryStatus = "failed"
)

// Delivery is the structured result of a send. Send paths return it
// instead of raising across the API boundary.
type Delivery struct {
	Status    DeliveryStatus `json:"status"`
	Response  interface{}    `json:"response,omitempty"`
	Error     string         `json:"error,omitempty"`
	MessageID string         `json:"message_id,omitempty"`
}

// BroadcastReport summarizes a fan-out send.
type BroadcastReport struct {
	Total      int                 `json:"total"`
	Successful int                 `json:"successful"`
	Failed     int                 `json:"failed"`
	Pending    int                 `json:"pending"`
	Results    map[string]Delivery `json:"results"`
}
