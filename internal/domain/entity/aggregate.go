package entity

import "time"

// Conversation is derived per viewer from the messages that involve them.
type Conversation struct {
	ConversationID string  `json:"conversationId"`
	PeerID         string  `json:"peerId"`
	LastMessage    Message `json:"lastMessage"`
	UnreadCount    int     `json:"unreadCount"`
	MessageCount   int     `json:"messageCount"`
}

type DriftEntry struct {
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	StoredCount  int    `json:"storedCount"`
	CountedCount int    `json:"countedCount"`
}

type DashboardStats struct {
	TotalProducts    int          `json:"totalProducts"`
	OutOfStock       int          `json:"outOfStock"`
	TotalPitches     int          `json:"totalPitches"`
	PitchDocuments   int          `json:"pitchDocuments"`
	PendingEnquiries int          `json:"pendingEnquiries"`
	ApprovedPitches  int          `json:"approvedPitches"`
	RejectedPitches  int          `json:"rejectedPitches"`
	UnreadMessages   int          `json:"unreadMessages"`
	CounterDrift     []DriftEntry `json:"counterDrift,omitempty"`
	ComputedAt       time.Time    `json:"computedAt"`
}

type NetworkStatus string

const (
	NetworkOnline   NetworkStatus = "online"
	NetworkDegraded NetworkStatus = "degraded"
	NetworkError    NetworkStatus = "error"
)

func (s NetworkStatus) severity() int {
	switch s {
	case NetworkError:
		return 2
	case NetworkDegraded:
		return 1
	}
	return 0
}

// Worse returns whichever of s and other is more severe.
func (s NetworkStatus) Worse(other NetworkStatus) NetworkStatus {
	if other.severity() > s.severity() {
		return other
	}
	return s
}
