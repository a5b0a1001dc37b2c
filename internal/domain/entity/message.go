package entity

import (
	"sort"
	"strings"
	"time"
)

type ProductContext struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName,omitempty"`
}

type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversationId"`
	SenderID       string          `json:"senderId"`
	ReceiverID     string          `json:"receiverId"`
	Participants   []string        `json:"participants"`
	Text           string          `json:"text,omitempty"`
	ImageURL       string          `json:"imageUrl,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	Read           bool            `json:"read"`
	ProductContext *ProductContext `json:"productContext,omitempty"`

	TimestampInferred bool `json:"timestampInferred,omitempty"`
}

func (m Message) RecordID() string { return m.ID }

// Clone returns m with its own Participants and ProductContext.
func (m Message) Clone() Message {
	if m.Participants != nil {
		m.Participants = append([]string(nil), m.Participants...)
	}
	if m.ProductContext != nil {
		pc := *m.ProductContext
		m.ProductContext = &pc
	}
	return m
}

// Peer returns the other participant from the viewer's point of view.
func (m Message) Peer(viewerID string) string {
	if m.SenderID == viewerID {
		return m.ReceiverID
	}
	return m.SenderID
}

func (m Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// ConversationID is the order-independent key of the pair a and b.
func ConversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "_")
}

// Participants returns the sorted pair a and b.
func Participants(a, b string) []string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair
}
