package domain

import (
	"time"
)

// ReceiptStatus is the approval state of a receipt.
type ReceiptStatus string

const (
	ReceiptPending  ReceiptStatus = "pending"
	ReceiptApproved ReceiptStatus = "approved"
	ReceiptRejected ReceiptStatus = "rejected"
)

// IsTerminal returns true once a receipt can no longer change.
func (s ReceiptStatus) IsTerminal() bool {
	return s == ReceiptApproved || s == ReceiptRejected
}

// DisplayState maps the status onto the remote message state.
func (s ReceiptStatus) DisplayState() DisplayState {
	switch s {
	case ReceiptApproved:
		return DisplayApproved
	case ReceiptRejected:
		return DisplayRejected
	default:
		return DisplayPending
	}
}

// Receipt is a purchase proof uploaded by a user and reviewed by an admin.
type Receipt struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	ImageURL      string        `json:"image_url"`
	Status        ReceiptStatus `json:"status"`
	PointsAwarded int           `json:"points_awarded"`
	MessageID     string        `json:"message_id,omitempty"`
	Items         []LineItem    `json:"items"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// IsMultiProduct returns true if the receipt lists more than one line item.
func (r *Receipt) IsMultiProduct() bool {
	return len(r.Items) > 1
}

// TotalPoints returns the points the receipt is worth at catalogue value.
func (r *Receipt) TotalPoints() int {
	return TotalPoints(r.Items)
}

// DisplayState maps the receipt status onto the remote message state.
func (r *Receipt) DisplayState() DisplayState {
	return r.Status.DisplayState()
}
