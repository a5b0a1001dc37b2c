package entity

import "time"

type PitchStatus string

const (
	PitchPending  PitchStatus = "pending"
	PitchApproved PitchStatus = "approved"
	PitchRejected PitchStatus = "rejected"
)

// Pitch is a buyer's enquiry or offer for a product.
type Pitch struct {
	ID            string      `json:"id"`
	ProductID     string      `json:"productId"`
	ProductName   string      `json:"productName,omitempty"`
	AuthorUserID  string      `json:"authorUserId"`
	Name          string      `json:"name,omitempty"`
	Email         string      `json:"email,omitempty"`
	Phone         string      `json:"phone,omitempty"`
	Message       string      `json:"message"`
	ProposedPrice *float64    `json:"proposedPrice,omitempty"`
	Status        PitchStatus `json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt,omitempty"`

	TimestampInferred bool `json:"timestampInferred,omitempty"`
}

func (p Pitch) RecordID() string { return p.ID }

func (p Pitch) Clone() Pitch {
	p.ProposedPrice = cloneFloat(p.ProposedPrice)
	return p
}

func ValidPitchStatus(s PitchStatus) bool {
	switch s {
	case PitchPending, PitchApproved, PitchRejected:
		return true
	}
	return false
}

// CanTransition reports whether a pitch may move from one status to another.
// Statuses only move forward, out of pending.
func CanTransition(from, to PitchStatus) bool {
	return from == PitchPending && (to == PitchApproved || to == PitchRejected)
}
