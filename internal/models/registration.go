package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	RegistrationPending    = "pending" // awaiting organizer approval
	RegistrationConfirmed  = "confirmed"
	RegistrationWaitlisted = "waitlisted"
	RegistrationCancelled  = "cancelled"
	RegistrationRejected   = "rejected"
)

type Registration struct {
	bun.BaseModel `bun:"table:event_registrations"`

	ID         string     `bun:"id,pk" json:"id"`
	EventID    string     `bun:"event_id,notnull" json:"event_id"`
	UserID     string     `bun:"user_id,notnull" json:"user_id"`
	Status     string     `bun:"status,notnull" json:"status"`
	AttendedAt *time.Time `bun:"attended_at,nullzero" json:"attended_at,omitempty"`
	CreatedAt  time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt  time.Time  `bun:"updated_at,nullzero" json:"updated_at,omitempty"`

	Event *Event `bun:"rel:belongs-to,join:event_id=id" json:"-"`
	User  *User  `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
}

// Live reports whether the registration still occupies the (event, user)
// slot: cancelled and rejected rows do not block a new registration.
func (r *Registration) Live() bool {
	switch r.Status {
	case RegistrationPending, RegistrationConfirmed, RegistrationWaitlisted:
		return true
	}
	return false
}

// CheckInPayload is the structure encrypted into the attendee QR code.
type CheckInPayload struct {
	RegistrationID string `json:"registration_id"`
	EventID        string `json:"event_id"`
	UserID         string `json:"user_id"`
	IssuedAt       int64  `json:"issued_at"`
}
