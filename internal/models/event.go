package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	EventKindOnline    = "online"
	EventKindOnsite    = "onsite"
	EventKindHybrid    = "hybrid"
	EventKindHackathon = "hackathon"
)

const (
	EventStatusDraft     = "draft"
	EventStatusPublished = "published"
	EventStatusCancelled = "cancelled"
	EventStatusCompleted = "completed"
)

// ValidEventKind reports whether kind is one of the four wizard kinds.
func ValidEventKind(kind string) bool {
	switch kind {
	case EventKindOnline, EventKindOnsite, EventKindHybrid, EventKindHackathon:
		return true
	}
	return false
}

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID          string `bun:"id,pk" json:"id"`
	CommunityID string `bun:"community_id,notnull" json:"community_id"`
	CreatorID   string `bun:"creator_id,notnull" json:"creator_id"`
	Kind        string `bun:"kind,notnull" json:"kind"`
	Status      string `bun:"status,notnull" json:"status"`
	Title       string `bun:"title,notnull" json:"title"`
	Description string `bun:"description,nullzero" json:"description,omitempty"`

	StartAt time.Time `bun:"start_at,notnull" json:"start_at"`
	EndAt   time.Time `bun:"end_at,notnull" json:"end_at"`

	// Registration settings (wizard step 3).
	Capacity            int        `bun:"capacity,notnull" json:"capacity"`
	WaitlistEnabled     bool       `bun:"waitlist_enabled,notnull" json:"waitlist_enabled"`
	RequiresApproval    bool       `bun:"requires_approval,notnull" json:"requires_approval"`
	RegistrationOpenAt  *time.Time `bun:"registration_open_at,nullzero" json:"registration_open_at,omitempty"`
	RegistrationCloseAt *time.Time `bun:"registration_close_at,nullzero" json:"registration_close_at,omitempty"`

	PublishedAt *time.Time `bun:"published_at,nullzero" json:"published_at,omitempty"`
	CreatedAt   time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero" json:"updated_at,omitempty"`

	Community *Community      `bun:"rel:belongs-to,join:community_id=id" json:"-"`
	Online    *EventOnline    `bun:"rel:has-one,join:id=event_id" json:"online,omitempty"`
	Onsite    *EventOnsite    `bun:"rel:has-one,join:id=event_id" json:"onsite,omitempty"`
	Hackathon *EventHackathon `bun:"rel:has-one,join:id=event_id" json:"hackathon,omitempty"`
	Tags      []*EventTag     `bun:"rel:has-many,join:id=event_id" json:"tags,omitempty"`
}

// RegistrationOpen reports whether the registration window is open at now.
// A nil open time means "open since publish"; a nil close time means "open
// until start".
func (e *Event) RegistrationOpen(now time.Time) bool {
	if e.Status != EventStatusPublished {
		return false
	}
	if e.RegistrationOpenAt != nil && now.Before(*e.RegistrationOpenAt) {
		return false
	}
	if e.RegistrationCloseAt != nil && now.After(*e.RegistrationCloseAt) {
		return false
	}
	return now.Before(e.StartAt)
}

// EventOnline holds the online metadata (kinds online and hybrid).
type EventOnline struct {
	bun.BaseModel `bun:"table:event_online"`

	EventID    string `bun:"event_id,pk" json:"-"`
	MeetingURL string `bun:"meeting_url,notnull" json:"meeting_url"`
	Platform   string `bun:"platform,nullzero" json:"platform,omitempty"`
}

// EventOnsite holds the venue metadata (kinds onsite, hybrid and hackathon).
type EventOnsite struct {
	bun.BaseModel `bun:"table:event_onsite"`

	EventID   string  `bun:"event_id,pk" json:"-"`
	VenueName string  `bun:"venue_name,notnull" json:"venue_name"`
	Address   string  `bun:"address,notnull" json:"address"`
	Latitude  float64 `bun:"latitude,nullzero" json:"latitude,omitempty"`
	Longitude float64 `bun:"longitude,nullzero" json:"longitude,omitempty"`
}

type EventHackathon struct {
	bun.BaseModel `bun:"table:event_hackathon"`

	EventID         string `bun:"event_id,pk" json:"-"`
	TeamSizeMin     int    `bun:"team_size_min,notnull" json:"team_size_min"`
	TeamSizeMax     int    `bun:"team_size_max,notnull" json:"team_size_max"`
	PrizePool       string `bun:"prize_pool,nullzero" json:"prize_pool,omitempty"`
	JudgingCriteria string `bun:"judging_criteria,nullzero" json:"judging_criteria,omitempty"`
}

type EventTag struct {
	bun.BaseModel `bun:"table:event_tags"`

	ID      string `bun:"id,pk" json:"-"`
	EventID string `bun:"event_id,notnull,unique:event_tag" json:"-"`
	Tag     string `bun:"tag,notnull,unique:event_tag" json:"tag"`
}
