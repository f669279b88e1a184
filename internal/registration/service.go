package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventflow/internal/kafka"
	"eventflow/internal/logger"
	"eventflow/internal/models"
)

var (
	ErrNotFound           = errors.New("registration not found")
	ErrEventNotFound      = errors.New("event not found")
	ErrForbidden          = errors.New("not allowed to manage this registration")
	ErrAlreadyRegistered  = errors.New("already registered for this event")
	ErrRegistrationClosed = errors.New("registration is closed for this event")
	ErrEventFull          = errors.New("event is at capacity")
	ErrHoldContended      = errors.New("another registration attempt is in flight")
	ErrNotPending         = errors.New("registration is not awaiting approval")
	ErrNotLive            = errors.New("registration is already cancelled or rejected")
	ErrNotConfirmed       = errors.New("registration is not confirmed")
	ErrAlreadyCheckedIn   = errors.New("attendee is already checked in")
	ErrBadCheckInCode     = errors.New("check-in code is invalid")
)

type DBLayer interface {
	CreateRegistration(reg models.Registration) error
	CreateConfirmedIfCapacity(reg models.Registration, capacity int) (bool, error)
	GetRegistrationByID(id string) (*models.Registration, error)
	GetLiveRegistration(eventID, userID string) (*models.Registration, error)
	ListByEvent(eventID string) ([]models.Registration, error)
	ListByUser(userID string) ([]models.Registration, error)
	UpdateRegistrationStatus(reg models.Registration) error
	CountByStatus(eventID, status string) (int, error)
	OldestWaitlisted(eventID string) (*models.Registration, error)
	GetEventByID(id string) (*models.Event, error)
}

// HoldStore hands out the short-lived Redis holds that keep one user's
// concurrent attempts out of the insert path. Capacity itself is enforced by
// the conditional insert, not by the hold.
type HoldStore interface {
	Acquire(ctx context.Context, eventID, userID, registrationID string) (bool, error)
	Release(ctx context.Context, eventID, userID, registrationID string) error
}

type Permissions interface {
	IsAdmin(communityID, userID string) (bool, error)
}

type Publisher interface {
	PublishJSON(topic, key string, value any) error
}

// QRCodec covers generating and verifying the encrypted check-in codes.
type QRCodec interface {
	GenerateEncryptedQR(payload models.CheckInPayload) ([]byte, error)
	DecryptPayload(token string) (*models.CheckInPayload, error)
}

type Service struct {
	DB     DBLayer
	Holds  HoldStore
	Perms  Permissions
	Kafka  Publisher
	QR     QRCodec
	Logger *logger.Logger
}

func NewService(db DBLayer, holds HoldStore, perms Permissions, pub Publisher, qr QRCodec, log *logger.Logger) *Service {
	return &Service{DB: db, Holds: holds, Perms: perms, Kafka: pub, QR: qr, Logger: log}
}

// Register places the user on the event. The Redis hold keeps concurrent
// attempts by the same user out of the insert path; capacity is enforced by
// a conditional insert whose count check runs in the same statement, so
// concurrent users cannot oversell the last slot.
func (s *Service) Register(ctx context.Context, eventID, userID string) (*models.Registration, error) {
	event, err := s.DB.GetEventByID(eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	if !event.RegistrationOpen(time.Now()) {
		return nil, ErrRegistrationClosed
	}

	existing, err := s.DB.GetLiveRegistration(eventID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyRegistered
	}

	regID := uuid.New().String()
	ok, err := s.Holds.Acquire(ctx, eventID, userID, regID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire capacity hold: %w", err)
	}
	if !ok {
		return nil, ErrHoldContended
	}
	defer func() {
		if err := s.Holds.Release(ctx, eventID, userID, regID); err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Failed to release capacity hold for event %s: %v", eventID, err))
		}
	}()

	reg := models.Registration{
		ID:        regID,
		EventID:   eventID,
		UserID:    userID,
		CreatedAt: time.Now(),
	}

	if event.RequiresApproval {
		// Pending rows don't consume capacity; Approve re-checks the count.
		confirmed, err := s.DB.CountByStatus(eventID, models.RegistrationConfirmed)
		if err != nil {
			return nil, err
		}
		reg.Status = models.RegistrationPending
		if confirmed >= event.Capacity {
			if !event.WaitlistEnabled {
				return nil, ErrEventFull
			}
			reg.Status = models.RegistrationWaitlisted
		}
		if err := s.DB.CreateRegistration(reg); err != nil {
			return nil, fmt.Errorf("failed to create registration: %w", err)
		}
	} else {
		// Count check and insert are one statement, so two racing
		// registrations can never both take the last confirmed slot.
		reg.Status = models.RegistrationConfirmed
		inserted, err := s.DB.CreateConfirmedIfCapacity(reg, event.Capacity)
		if err != nil {
			return nil, fmt.Errorf("failed to create registration: %w", err)
		}
		if !inserted {
			if !event.WaitlistEnabled {
				return nil, ErrEventFull
			}
			reg.Status = models.RegistrationWaitlisted
			if err := s.DB.CreateRegistration(reg); err != nil {
				return nil, fmt.Errorf("failed to create registration: %w", err)
			}
		}
	}

	s.publish(kafka.TopicRegistrationCreated, &reg)
	s.Logger.LogRegistration("REGISTER", reg.ID, fmt.Sprintf("user %s on event %s as %s", userID, eventID, reg.Status))
	return &reg, nil
}

// Cancel withdraws the caller's own registration and promotes the oldest
// waitlisted attendee when a confirmed slot frees up.
func (s *Service) Cancel(registrationID, userID string) error {
	reg, err := s.DB.GetRegistrationByID(registrationID)
	if err != nil {
		return err
	}
	if reg == nil {
		return ErrNotFound
	}
	if reg.UserID != userID {
		return ErrForbidden
	}
	return s.cancel(reg)
}

// Kick is the organizer-side cancel of an attendee's registration.
func (s *Service) Kick(registrationID, organizerID string) error {
	reg, err := s.organizerRegistration(registrationID, organizerID)
	if err != nil {
		return err
	}
	return s.cancel(reg)
}

func (s *Service) cancel(reg *models.Registration) error {
	if !reg.Live() {
		return ErrNotLive
	}
	wasConfirmed := reg.Status == models.RegistrationConfirmed

	reg.Status = models.RegistrationCancelled
	if err := s.DB.UpdateRegistrationStatus(*reg); err != nil {
		return fmt.Errorf("failed to cancel registration: %w", err)
	}
	s.publish(kafka.TopicRegistrationCancelled, reg)
	s.Logger.LogRegistration("CANCEL", reg.ID, "registration cancelled")

	if wasConfirmed {
		s.promoteNext(reg.EventID)
	}
	return nil
}

// promoteNext moves the oldest waitlisted registration into the freed slot.
// Promotion is best effort; a failure leaves the attendee waitlisted.
func (s *Service) promoteNext(eventID string) {
	next, err := s.DB.OldestWaitlisted(eventID)
	if err != nil {
		s.Logger.Error("REGISTRATION", fmt.Sprintf("Failed to find waitlisted registration for event %s: %v", eventID, err))
		return
	}
	if next == nil {
		return
	}

	next.Status = models.RegistrationConfirmed
	if err := s.DB.UpdateRegistrationStatus(*next); err != nil {
		s.Logger.Error("REGISTRATION", fmt.Sprintf("Failed to promote registration %s: %v", next.ID, err))
		return
	}
	s.publish(kafka.TopicRegistrationPromoted, next)
	s.Logger.LogRegistration("PROMOTE", next.ID, fmt.Sprintf("promoted from waitlist on event %s", eventID))
}

// Approve confirms a pending registration if a slot is still free, otherwise
// waitlists it when the event allows that.
func (s *Service) Approve(registrationID, organizerID string) (*models.Registration, error) {
	reg, err := s.organizerRegistration(registrationID, organizerID)
	if err != nil {
		return nil, err
	}
	if reg.Status != models.RegistrationPending {
		return nil, ErrNotPending
	}

	event := reg.Event
	if event == nil {
		if event, err = s.DB.GetEventByID(reg.EventID); err != nil {
			return nil, err
		}
	}

	confirmed, err := s.DB.CountByStatus(reg.EventID, models.RegistrationConfirmed)
	if err != nil {
		return nil, err
	}
	if confirmed >= event.Capacity {
		if !event.WaitlistEnabled {
			return nil, ErrEventFull
		}
		reg.Status = models.RegistrationWaitlisted
	} else {
		reg.Status = models.RegistrationConfirmed
	}

	if err := s.DB.UpdateRegistrationStatus(*reg); err != nil {
		return nil, fmt.Errorf("failed to approve registration: %w", err)
	}
	s.Logger.LogRegistration("APPROVE", reg.ID, fmt.Sprintf("approved as %s", reg.Status))
	return reg, nil
}

func (s *Service) Reject(registrationID, organizerID string) (*models.Registration, error) {
	reg, err := s.organizerRegistration(registrationID, organizerID)
	if err != nil {
		return nil, err
	}
	if reg.Status != models.RegistrationPending {
		return nil, ErrNotPending
	}

	reg.Status = models.RegistrationRejected
	if err := s.DB.UpdateRegistrationStatus(*reg); err != nil {
		return nil, fmt.Errorf("failed to reject registration: %w", err)
	}
	s.Logger.LogRegistration("REJECT", reg.ID, "registration rejected")
	return reg, nil
}

// TicketQR renders the caller's own check-in code.
func (s *Service) TicketQR(registrationID, userID string) ([]byte, error) {
	reg, err := s.DB.GetRegistrationByID(registrationID)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, ErrNotFound
	}
	if reg.UserID != userID {
		return nil, ErrForbidden
	}
	if reg.Status != models.RegistrationConfirmed {
		return nil, ErrNotConfirmed
	}

	return s.QR.GenerateEncryptedQR(models.CheckInPayload{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		UserID:         reg.UserID,
		IssuedAt:       time.Now().Unix(),
	})
}

// CheckIn verifies a scanned code against the event being scanned and marks
// the attendee present. Only organizers of the event's community may scan.
func (s *Service) CheckIn(organizerID, eventID, token string) (*models.Registration, error) {
	payload, err := s.QR.DecryptPayload(token)
	if err != nil {
		return nil, ErrBadCheckInCode
	}
	if payload.EventID != eventID {
		return nil, ErrBadCheckInCode
	}

	reg, err := s.organizerRegistration(payload.RegistrationID, organizerID)
	if err != nil {
		return nil, err
	}
	if reg.EventID != payload.EventID || reg.UserID != payload.UserID {
		return nil, ErrBadCheckInCode
	}
	if reg.Status != models.RegistrationConfirmed {
		return nil, ErrNotConfirmed
	}
	if reg.AttendedAt != nil {
		return nil, ErrAlreadyCheckedIn
	}

	now := time.Now()
	reg.AttendedAt = &now
	if err := s.DB.UpdateRegistrationStatus(*reg); err != nil {
		return nil, fmt.Errorf("failed to record check-in: %w", err)
	}
	s.publish(kafka.TopicRegistrationCheckedIn, reg)
	s.Logger.LogRegistration("CHECKIN", reg.ID, "attendee checked in")
	return reg, nil
}

// ListParticipants returns the event's registrations for its organizers.
func (s *Service) ListParticipants(eventID, organizerID string) ([]models.Registration, error) {
	event, err := s.DB.GetEventByID(eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	if err := s.requireOrganizer(event, organizerID); err != nil {
		return nil, err
	}
	return s.DB.ListByEvent(eventID)
}

// ListMine returns the caller's registrations across events.
func (s *Service) ListMine(userID string) ([]models.Registration, error) {
	return s.DB.ListByUser(userID)
}

// organizerRegistration loads a registration and checks the caller
// administers the community behind its event.
func (s *Service) organizerRegistration(registrationID, organizerID string) (*models.Registration, error) {
	reg, err := s.DB.GetRegistrationByID(registrationID)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, ErrNotFound
	}

	event := reg.Event
	if event == nil {
		if event, err = s.DB.GetEventByID(reg.EventID); err != nil {
			return nil, err
		}
		if event == nil {
			return nil, ErrEventNotFound
		}
		reg.Event = event
	}
	if err := s.requireOrganizer(event, organizerID); err != nil {
		return nil, err
	}
	return reg, nil
}

func (s *Service) requireOrganizer(event *models.Event, userID string) error {
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

func (s *Service) publish(topic string, reg *models.Registration) {
	if s.Kafka == nil {
		return
	}
	payload := map[string]any{
		"registration_id": reg.ID,
		"event_id":        reg.EventID,
		"user_id":         reg.UserID,
		"status":          reg.Status,
	}
	if err := s.Kafka.PublishJSON(topic, reg.ID, payload); err != nil {
		s.Logger.LogKafka("PUBLISH_FAILED", topic, fmt.Sprintf("registration %s: %v", reg.ID, err))
	}
}
