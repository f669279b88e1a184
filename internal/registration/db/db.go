package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"eventflow/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateRegistration(reg models.Registration) error {
	_, err := d.Bun.NewInsert().Model(&reg).Exec(context.Background())
	return err
}

// CreateConfirmedIfCapacity inserts a confirmed registration only while the
// event's confirmed count is below capacity. Count check and insert run as a
// single statement, so two racing registrations can never both take the last
// slot. Returns false when the event is full.
func (d *DB) CreateConfirmedIfCapacity(reg models.Registration, capacity int) (bool, error) {
	res, err := d.Bun.ExecContext(context.Background(),
		`INSERT INTO event_registrations (id, event_id, user_id, status, created_at)
		 SELECT ?, ?, ?, ?, ?
		 WHERE (SELECT count(*) FROM event_registrations
		        WHERE event_id = ? AND status = ?) < ?`,
		reg.ID, reg.EventID, reg.UserID, models.RegistrationConfirmed, reg.CreatedAt,
		reg.EventID, models.RegistrationConfirmed, capacity)
	if err != nil {
		return false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return inserted == 1, nil
}

func (d *DB) GetRegistrationByID(id string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Relation("User").
		Relation("Event").
		Where("registration.id = ?", id).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// GetLiveRegistration returns the user's pending, confirmed or waitlisted
// row on the event, if any.
func (d *DB) GetLiveRegistration(eventID, userID string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Where("registration.event_id = ?", eventID).
		Where("registration.user_id = ?", userID).
		Where("registration.status IN (?)", bun.In([]string{
			models.RegistrationPending,
			models.RegistrationConfirmed,
			models.RegistrationWaitlisted,
		})).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (d *DB) ListByEvent(eventID string) ([]models.Registration, error) {
	var regs []models.Registration
	err := d.Bun.NewSelect().
		Model(&regs).
		Relation("User").
		Where("registration.event_id = ?", eventID).
		Order("registration.created_at ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return regs, nil
}

func (d *DB) ListByUser(userID string) ([]models.Registration, error) {
	var regs []models.Registration
	err := d.Bun.NewSelect().
		Model(&regs).
		Relation("Event").
		Where("registration.user_id = ?", userID).
		Order("registration.created_at DESC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return regs, nil
}

func (d *DB) UpdateRegistrationStatus(reg models.Registration) error {
	reg.UpdatedAt = time.Now()
	_, err := d.Bun.NewUpdate().
		Model(&reg).
		Column("status", "attended_at", "updated_at").
		Where("id = ?", reg.ID).
		Exec(context.Background())
	return err
}

func (d *DB) CountByStatus(eventID, status string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Registration)(nil)).
		Where("event_id = ?", eventID).
		Where("status = ?", status).
		Count(context.Background())
}

// OldestWaitlisted returns the registration next in line for promotion.
func (d *DB) OldestWaitlisted(eventID string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Where("registration.event_id = ?", eventID).
		Where("registration.status = ?", models.RegistrationWaitlisted).
		Order("registration.created_at ASC").
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (d *DB) GetEventByID(id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("event.id = ?", id).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}
