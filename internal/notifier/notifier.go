package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/resend/resend-go/v2"
	segmentio "github.com/segmentio/kafka-go"

	"eventflow/internal/auth"
	"eventflow/internal/kafka"
	"eventflow/internal/logger"
	"eventflow/internal/models"
)

// DBLayer is the read-side the notifier needs to render emails. The
// registration db implements it.
type DBLayer interface {
	GetRegistrationByID(id string) (*models.Registration, error)
	ListByEvent(eventID string) ([]models.Registration, error)
}

// QRCodec renders the attendee check-in code attached to confirmations.
type QRCodec interface {
	GenerateEncryptedQR(payload models.CheckInPayload) ([]byte, error)
}

// Notifier turns domain events into transactional email. Sending is best
// effort: failures are logged and the message is consumed anyway.
type Notifier struct {
	DB     DBLayer
	Client *resend.Client
	QR     QRCodec
	From   string
	Logger *logger.Logger
}

func New(db DBLayer, client *resend.Client, qr QRCodec, from string, log *logger.Logger) *Notifier {
	return &Notifier{DB: db, Client: client, QR: qr, From: from, Logger: log}
}

type registrationEvent struct {
	RegistrationID string `json:"registration_id"`
	EventID        string `json:"event_id"`
	UserID         string `json:"user_id"`
	Status         string `json:"status"`
}

type eventEvent struct {
	EventID string `json:"event_id"`
	Title   string `json:"title"`
	Status  string `json:"status"`
}

// HandleMessage dispatches one Kafka message. It always returns nil so the
// consumer group keeps advancing; email is not worth blocking the stream.
func (n *Notifier) HandleMessage(msg segmentio.Message) error {
	var err error
	switch msg.Topic {
	case kafka.TopicRegistrationCreated:
		err = n.onRegistrationCreated(msg.Value)
	case kafka.TopicRegistrationPromoted:
		err = n.onRegistrationPromoted(msg.Value)
	case kafka.TopicEventCancelled:
		err = n.onEventCancelled(msg.Value)
	default:
		return nil
	}
	if err != nil {
		n.Logger.Error("NOTIFIER", fmt.Sprintf("Failed to handle %s: %v", msg.Topic, err))
	}
	return nil
}

func (n *Notifier) onRegistrationCreated(value []byte) error {
	var evt registrationEvent
	if err := json.Unmarshal(value, &evt); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}

	reg, err := n.DB.GetRegistrationByID(evt.RegistrationID)
	if err != nil || reg == nil || reg.User == nil || reg.Event == nil {
		return fmt.Errorf("failed to load registration %s: %v", evt.RegistrationID, err)
	}
	if auth.IsPlaceholderEmail(reg.User.Email) {
		return nil
	}

	switch evt.Status {
	case models.RegistrationConfirmed:
		return n.sendConfirmation(reg)
	case models.RegistrationWaitlisted:
		return n.send(reg.User.Email,
			fmt.Sprintf("You're on the waitlist for %s", reg.Event.Title),
			fmt.Sprintf("<p>%s is currently full. You're on the waitlist and we'll email you if a spot opens up.</p>", reg.Event.Title),
			nil)
	case models.RegistrationPending:
		return n.send(reg.User.Email,
			fmt.Sprintf("Registration received for %s", reg.Event.Title),
			fmt.Sprintf("<p>Your registration for %s is awaiting organizer approval.</p>", reg.Event.Title),
			nil)
	}
	return nil
}

func (n *Notifier) onRegistrationPromoted(value []byte) error {
	var evt registrationEvent
	if err := json.Unmarshal(value, &evt); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}

	reg, err := n.DB.GetRegistrationByID(evt.RegistrationID)
	if err != nil || reg == nil || reg.User == nil || reg.Event == nil {
		return fmt.Errorf("failed to load registration %s: %v", evt.RegistrationID, err)
	}
	if auth.IsPlaceholderEmail(reg.User.Email) {
		return nil
	}
	return n.sendConfirmation(reg)
}

func (n *Notifier) onEventCancelled(value []byte) error {
	var evt eventEvent
	if err := json.Unmarshal(value, &evt); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}

	regs, err := n.DB.ListByEvent(evt.EventID)
	if err != nil {
		return fmt.Errorf("failed to list registrations for event %s: %w", evt.EventID, err)
	}

	for _, reg := range regs {
		if !reg.Live() || reg.User == nil || auth.IsPlaceholderEmail(reg.User.Email) {
			continue
		}
		err := n.send(reg.User.Email,
			fmt.Sprintf("%s has been cancelled", evt.Title),
			fmt.Sprintf("<p>We're sorry: %s has been cancelled by the organizers. Your registration is no longer valid.</p>", evt.Title),
			nil)
		if err != nil {
			n.Logger.Error("NOTIFIER", fmt.Sprintf("Failed to email %s: %v", reg.User.Email, err))
		}
	}
	return nil
}

// sendConfirmation emails the attendee their spot with the check-in QR code
// attached as a PNG.
func (n *Notifier) sendConfirmation(reg *models.Registration) error {
	var attachments []*resend.Attachment
	png, err := n.QR.GenerateEncryptedQR(models.CheckInPayload{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		UserID:         reg.UserID,
		IssuedAt:       reg.CreatedAt.Unix(),
	})
	if err != nil {
		n.Logger.Warn("NOTIFIER", fmt.Sprintf("Failed to render QR for registration %s: %v", reg.ID, err))
	} else {
		attachments = append(attachments, &resend.Attachment{
			Filename:    "checkin.png",
			Content:     png,
			ContentType: "image/png",
		})
	}

	body := fmt.Sprintf(
		"<p>You're confirmed for <strong>%s</strong> on %s.</p><p>Show the attached QR code at the door to check in.</p>",
		reg.Event.Title, reg.Event.StartAt.Format("Jan 2, 2006 at 15:04 MST"))
	return n.send(reg.User.Email, fmt.Sprintf("You're in: %s", reg.Event.Title), body, attachments)
}

func (n *Notifier) send(to, subject, html string, attachments []*resend.Attachment) error {
	params := &resend.SendEmailRequest{
		From:        n.From,
		To:          []string{to},
		Subject:     subject,
		Html:        html,
		Attachments: attachments,
	}

	sent, err := n.Client.Emails.SendWithContext(context.Background(), params)
	if err != nil {
		return fmt.Errorf("resend API error: %w", err)
	}
	n.Logger.Info("NOTIFIER", fmt.Sprintf("Email %s sent to %s", sent.Id, to))
	return nil
}
