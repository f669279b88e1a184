package event

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventflow/internal/kafka"
	"eventflow/internal/logger"
	"eventflow/internal/models"
)

var (
	ErrNotFound           = errors.New("event not found")
	ErrForbidden          = errors.New("not an organizer of this event")
	ErrInvalidKind        = errors.New("invalid event kind")
	ErrInvalidTimes       = errors.New("event must start before it ends")
	ErrInvalidWindow      = errors.New("registration must close before the event starts")
	ErrNotDraft           = errors.New("event is not a draft")
	ErrNotPublished       = errors.New("event is not published")
	ErrNotEnded           = errors.New("event has not ended yet")
	ErrKindMismatch       = errors.New("metadata does not apply to this event kind")
	ErrIncomplete         = errors.New("event is missing required metadata")
	ErrPlanEventLimit     = errors.New("community plan does not allow more published events")
	ErrPlanCapacity       = errors.New("capacity exceeds the community plan limit")
	ErrPlanApproval       = errors.New("approval-required registration needs the pro plan")
	ErrCapacityBelowCount = errors.New("capacity cannot drop below confirmed registrations")
)

type DBLayer interface {
	CreateEvent(event models.Event) error
	GetEventByID(id string) (*models.Event, error)
	ListByCommunity(communityID string, publishedOnly bool) ([]models.Event, error)
	ListByTag(tag string) ([]models.Event, error)
	UpdateEventDetails(event models.Event) error
	UpdateEventSettings(event models.Event) error
	UpdateEventStatus(event models.Event) error
	DeleteEvent(id string) error
	UpsertOnline(meta models.EventOnline) error
	UpsertOnsite(meta models.EventOnsite) error
	UpsertHackathon(meta models.EventHackathon) error
	AddTag(tag models.EventTag) error
	RemoveTag(eventID, tag string) error
	GetCommunity(id string) (*models.Community, error)
	CountPublishedEvents(communityID string) (int, error)
	CountConfirmedRegistrations(eventID string) (int, error)
}

// Permissions answers whether a user administers a community. The community
// service implements it.
type Permissions interface {
	IsAdmin(communityID, userID string) (bool, error)
}

type Publisher interface {
	PublishJSON(topic, key string, value any) error
}

type Service struct {
	DB     DBLayer
	Perms  Permissions
	Kafka  Publisher
	Logger *logger.Logger
}

func NewService(db DBLayer, perms Permissions, pub Publisher, log *logger.Logger) *Service {
	return &Service{DB: db, Perms: perms, Kafka: pub, Logger: log}
}

type DraftInput struct {
	CommunityID string    `json:"community_id"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
}

// CreateDraft is wizard step 1. The kind is fixed here and never changes.
func (s *Service) CreateDraft(userID string, in DraftInput) (*models.Event, error) {
	if !models.ValidEventKind(in.Kind) {
		return nil, ErrInvalidKind
	}
	if in.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if !in.StartAt.Before(in.EndAt) {
		return nil, ErrInvalidTimes
	}

	ok, err := s.Perms.IsAdmin(in.CommunityID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}

	community, err := s.DB.GetCommunity(in.CommunityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load community: %w", err)
	}
	if community == nil {
		return nil, ErrNotFound
	}

	event := models.Event{
		ID:          uuid.New().String(),
		CommunityID: in.CommunityID,
		CreatorID:   userID,
		Kind:        in.Kind,
		Status:      models.EventStatusDraft,
		Title:       in.Title,
		Description: in.Description,
		StartAt:     in.StartAt,
		EndAt:       in.EndAt,
		Capacity:    community.MaxCapacity(),
		CreatedAt:   time.Now(),
	}
	if err := s.DB.CreateEvent(event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	s.Logger.Info("API", fmt.Sprintf("Draft %s event %s created in community %s", event.Kind, event.ID, event.CommunityID))
	return &event, nil
}

// Get returns the event. Drafts are visible only to organizers.
func (s *Service) Get(eventID, userID string) (*models.Event, error) {
	event, err := s.DB.GetEventByID(eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrNotFound
	}
	if event.Status == models.EventStatusDraft {
		if err := s.requireOrganizer(event, userID); err != nil {
			// Hide the draft's existence from non-organizers.
			return nil, ErrNotFound
		}
	}
	return event, nil
}

// ListByCommunity returns published events for everyone and all events for
// community admins. userID may be empty for anonymous callers.
func (s *Service) ListByCommunity(communityID, userID string) ([]models.Event, error) {
	publishedOnly := true
	if userID != "" {
		ok, err := s.Perms.IsAdmin(communityID, userID)
		if err != nil {
			return nil, err
		}
		publishedOnly = !ok
	}
	return s.DB.ListByCommunity(communityID, publishedOnly)
}

func (s *Service) ListByTag(tag string) ([]models.Event, error) {
	return s.DB.ListByTag(tag)
}

type DetailsInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
}

func (s *Service) UpdateDetails(eventID, userID string, in DetailsInput) (*models.Event, error) {
	event, err := s.mutableEvent(eventID, userID)
	if err != nil {
		return nil, err
	}
	if in.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if !in.StartAt.Before(in.EndAt) {
		return nil, ErrInvalidTimes
	}
	if event.RegistrationCloseAt != nil && event.RegistrationCloseAt.After(in.StartAt) {
		return nil, ErrInvalidWindow
	}

	event.Title = in.Title
	event.Description = in.Description
	event.StartAt = in.StartAt
	event.EndAt = in.EndAt
	if err := s.DB.UpdateEventDetails(*event); err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	return s.DB.GetEventByID(eventID)
}

// SetOnlineDetails is wizard step 2 for online, hybrid and hackathon events.
// Hackathons may run remotely, so a meeting URL is accepted there too.
func (s *Service) SetOnlineDetails(eventID, userID string, meta models.EventOnline) (*models.Event, error) {
	event, err := s.mutableEvent(eventID, userID)
	if err != nil {
		return nil, err
	}
	switch event.Kind {
	case models.EventKindOnline, models.EventKindHybrid, models.EventKindHackathon:
	default:
		return nil, ErrKindMismatch
	}
	if meta.MeetingURL == "" {
		return nil, fmt.Errorf("meeting_url is required")
	}
	meta.EventID = event.ID
	if err := s.DB.UpsertOnline(meta); err != nil {
		return nil, fmt.Errorf("failed to save online details: %w", err)
	}
	return s.DB.GetEventByID(eventID)
}

// SetOnsiteDetails is wizard step 2 for onsite, hybrid and hackathon events.
func (s *Service) SetOnsiteDetails(eventID, userID string, meta models.EventOnsite) (*models.Event, error) {
	event, err := s.mutableEvent(eventID, userID)
	if err != nil {
		return nil, err
	}
	switch event.Kind {
	case models.EventKindOnsite, models.EventKindHybrid, models.EventKindHackathon:
	default:
		return nil, ErrKindMismatch
	}
	if meta.VenueName == "" || meta.Address == "" {
		return nil, fmt.Errorf("venue_name and address are required")
	}
	meta.EventID = event.ID
	if err := s.DB.UpsertOnsite(meta); err != nil {
		return nil, fmt.Errorf("failed to save venue details: %w", err)
	}
	return s.DB.GetEventByID(eventID)
}

func (s *Service) SetHackathonDetails(eventID, userID string, meta models.EventHackathon) (*models.Event, error) {
	event, err := s.mutableEvent(eventID, userID)
	if err != nil {
		return nil, err
	}
	if event.Kind != models.EventKindHackathon {
		return nil, ErrKindMismatch
	}
	if meta.TeamSizeMin < 1 || meta.TeamSizeMax < meta.TeamSizeMin {
		return nil, fmt.Errorf("team size range is invalid")
	}
	meta.EventID = event.ID
	if err := s.DB.UpsertHackathon(meta); err != nil {
		return nil, fmt.Errorf("failed to save hackathon details: %w", err)
	}
	return s.DB.GetEventByID(eventID)
}

type SettingsInput struct {
	Capacity            int        `json:"capacity"`
	WaitlistEnabled     bool       `json:"waitlist_enabled"`
	RequiresApproval    bool       `json:"requires_approval"`
	RegistrationOpenAt  *time.Time `json:"registration_open_at"`
	RegistrationCloseAt *time.Time `json:"registration_close_at"`
}

// UpdateSettings is wizard step 3. Capacity is clamped by the community plan
// and can never drop below the confirmed headcount.
func (s *Service) UpdateSettings(eventID, userID string, in SettingsInput) (*models.Event, error) {
	event, err := s.mutableEvent(eventID, userID)
	if err != nil {
		return nil, err
	}

	community, err := s.DB.GetCommunity(event.CommunityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load community: %w", err)
	}
	if community == nil {
		return nil, ErrNotFound
	}
	if in.Capacity < 1 {
		return nil, fmt.Errorf("capacity must be at least 1")
	}
	if in.Capacity > community.MaxCapacity() {
		return nil, ErrPlanCapacity
	}
	if in.RequiresApproval && community.Plan != models.PlanPro {
		return nil, ErrPlanApproval
	}
	if in.RegistrationCloseAt != nil && in.RegistrationCloseAt.After(event.StartAt) {
		return nil, ErrInvalidWindow
	}
	if in.RegistrationOpenAt != nil && in.RegistrationCloseAt != nil &&
		in.RegistrationOpenAt.After(*in.RegistrationCloseAt) {
		return nil, ErrInvalidWindow
	}

	confirmed, err := s.DB.CountConfirmedRegistrations(event.ID)
	if err != nil {
		return nil, err
	}
	if in.Capacity < confirmed {
		return nil, ErrCapacityBelowCount
	}

	event.Capacity = in.Capacity
	event.WaitlistEnabled = in.WaitlistEnabled
	event.RequiresApproval = in.RequiresApproval
	event.RegistrationOpenAt = in.RegistrationOpenAt
	event.RegistrationCloseAt = in.RegistrationCloseAt
	if err := s.DB.UpdateEventSettings(*event); err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	return s.DB.GetEventByID(eventID)
}

// Publish is wizard step 4. It checks per-kind completeness and the plan's
// published-event allowance before flipping the status.
func (s *Service) Publish(eventID, userID string) (*models.Event, error) {
	event, err := s.mutableEvent(eventID, userID)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventStatusDraft {
		return nil, ErrNotDraft
	}
	if err := validateCompleteness(event); err != nil {
		return nil, err
	}

	community, err := s.DB.GetCommunity(event.CommunityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load community: %w", err)
	}
	if community == nil {
		return nil, ErrNotFound
	}
	if community.Plan == models.PlanFree {
		published, err := s.DB.CountPublishedEvents(event.CommunityID)
		if err != nil {
			return nil, err
		}
		if published >= models.FreePlanMaxPublishedEvents {
			return nil, ErrPlanEventLimit
		}
	}

	now := time.Now()
	event.Status = models.EventStatusPublished
	event.PublishedAt = &now
	if err := s.DB.UpdateEventStatus(*event); err != nil {
		return nil, fmt.Errorf("failed to publish event: %w", err)
	}

	s.publish(kafka.TopicEventPublished, event)
	s.Logger.Info("API", fmt.Sprintf("Event %s published by %s", event.ID, userID))
	return s.DB.GetEventByID(eventID)
}

// Cancel takes a published event out of circulation. Registrations are
// notified downstream off the Kafka event.
func (s *Service) Cancel(eventID, userID string) (*models.Event, error) {
	event, err := s.mutableEvent(eventID, userID)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventStatusPublished {
		return nil, ErrNotPublished
	}

	event.Status = models.EventStatusCancelled
	if err := s.DB.UpdateEventStatus(*event); err != nil {
		return nil, fmt.Errorf("failed to cancel event: %w", err)
	}

	s.publish(kafka.TopicEventCancelled, event)
	s.Logger.Info("API", fmt.Sprintf("Event %s cancelled by %s", event.ID, userID))
	return s.DB.GetEventByID(eventID)
}

func (s *Service) Complete(eventID, userID string) (*models.Event, error) {
	event, err := s.mutableEvent(eventID, userID)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventStatusPublished {
		return nil, ErrNotPublished
	}
	if time.Now().Before(event.EndAt) {
		return nil, ErrNotEnded
	}

	event.Status = models.EventStatusCompleted
	if err := s.DB.UpdateEventStatus(*event); err != nil {
		return nil, fmt.Errorf("failed to complete event: %w", err)
	}
	return s.DB.GetEventByID(eventID)
}

// Delete removes a draft. Anything past draft keeps its history.
func (s *Service) Delete(eventID, userID string) error {
	event, err := s.mutableEvent(eventID, userID)
	if err != nil {
		return err
	}
	if event.Status != models.EventStatusDraft {
		return ErrNotDraft
	}
	if err := s.DB.DeleteEvent(event.ID); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	s.Logger.Info("API", fmt.Sprintf("Draft event %s deleted by %s", event.ID, userID))
	return nil
}

func (s *Service) AddTag(eventID, userID, tag string) (*models.Event, error) {
	event, err := s.mutableEvent(eventID, userID)
	if err != nil {
		return nil, err
	}
	if tag == "" {
		return nil, fmt.Errorf("tag is required")
	}
	err = s.DB.AddTag(models.EventTag{
		ID:      uuid.New().String(),
		EventID: event.ID,
		Tag:     tag,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add tag: %w", err)
	}
	return s.DB.GetEventByID(eventID)
}

func (s *Service) RemoveTag(eventID, userID, tag string) (*models.Event, error) {
	event, err := s.mutableEvent(eventID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.DB.RemoveTag(event.ID, tag); err != nil {
		return nil, fmt.Errorf("failed to remove tag: %w", err)
	}
	return s.DB.GetEventByID(eventID)
}

// mutableEvent loads the event and checks the caller may change it.
func (s *Service) mutableEvent(eventID, userID string) (*models.Event, error) {
	event, err := s.DB.GetEventByID(eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrNotFound
	}
	if err := s.requireOrganizer(event, userID); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *Service) requireOrganizer(event *models.Event, userID string) error {
	if userID == "" {
		return ErrForbidden
	}
	if event.CreatorID == userID {
		return nil
	}
	ok, err := s.Perms.IsAdmin(event.CommunityID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func validateCompleteness(event *models.Event) error {
	switch event.Kind {
	case models.EventKindOnline:
		if event.Online == nil {
			return fmt.Errorf("%w: online details missing", ErrIncomplete)
		}
	case models.EventKindOnsite:
		if event.Onsite == nil {
			return fmt.Errorf("%w: venue details missing", ErrIncomplete)
		}
	case models.EventKindHybrid:
		if event.Online == nil || event.Onsite == nil {
			return fmt.Errorf("%w: hybrid events need both online and venue details", ErrIncomplete)
		}
	case models.EventKindHackathon:
		if event.Hackathon == nil {
			return fmt.Errorf("%w: hackathon details missing", ErrIncomplete)
		}
		if event.Online == nil && event.Onsite == nil {
			return fmt.Errorf("%w: hackathons need a venue or a meeting URL", ErrIncomplete)
		}
	}
	if event.Capacity < 1 {
		return fmt.Errorf("%w: capacity is not set", ErrIncomplete)
	}
	return nil
}

func (s *Service) publish(topic string, event *models.Event) {
	if s.Kafka == nil {
		return
	}
	payload := map[string]any{
		"event_id":     event.ID,
		"community_id": event.CommunityID,
		"title":        event.Title,
		"status":       event.Status,
		"start_at":     event.StartAt,
	}
	if err := s.Kafka.PublishJSON(topic, event.ID, payload); err != nil {
		s.Logger.LogKafka("PUBLISH_FAILED", topic, fmt.Sprintf("event %s: %v", event.ID, err))
	}
}
