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

// ---------------- EVENTS ----------------

func (d *DB) CreateEvent(event models.Event) error {
	_, err := d.Bun.NewInsert().Model(&event).Exec(context.Background())
	return err
}

// GetEventByID loads the event with its per-kind metadata and tags.
func (d *DB) GetEventByID(id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Relation("Online").
		Relation("Onsite").
		Relation("Hackathon").
		Relation("Tags").
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

// ListByCommunity returns the community's events, optionally restricted to
// published ones.
func (d *DB) ListByCommunity(communityID string, publishedOnly bool) ([]models.Event, error) {
	q := d.Bun.NewSelect().
		Model((*models.Event)(nil)).
		Relation("Tags").
		Where("event.community_id = ?", communityID).
		Order("event.start_at ASC")
	if publishedOnly {
		q = q.Where("event.status = ?", models.EventStatusPublished)
	}

	var events []models.Event
	if err := q.Scan(context.Background(), &events); err != nil {
		return nil, err
	}
	return events, nil
}

// ListByTag returns published events carrying the tag, across communities.
func (d *DB) ListByTag(tag string) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Join("JOIN event_tags t ON t.event_id = event.id").
		Where("t.tag = ?", tag).
		Where("event.status = ?", models.EventStatusPublished).
		Order("event.start_at ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (d *DB) UpdateEventDetails(event models.Event) error {
	event.UpdatedAt = time.Now()
	_, err := d.Bun.NewUpdate().
		Model(&event).
		Column("title", "description", "start_at", "end_at", "updated_at").
		Where("id = ?", event.ID).
		Exec(context.Background())
	return err
}

func (d *DB) UpdateEventSettings(event models.Event) error {
	event.UpdatedAt = time.Now()
	_, err := d.Bun.NewUpdate().
		Model(&event).
		Column("capacity", "waitlist_enabled", "requires_approval",
			"registration_open_at", "registration_close_at", "updated_at").
		Where("id = ?", event.ID).
		Exec(context.Background())
	return err
}

func (d *DB) UpdateEventStatus(event models.Event) error {
	event.UpdatedAt = time.Now()
	_, err := d.Bun.NewUpdate().
		Model(&event).
		Column("status", "published_at", "updated_at").
		Where("id = ?", event.ID).
		Exec(context.Background())
	return err
}

func (d *DB) DeleteEvent(id string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.Event)(nil)).
		Where("id = ?", id).
		Exec(context.Background())
	return err
}

// ---------------- PER-KIND METADATA ----------------

func (d *DB) UpsertOnline(meta models.EventOnline) error {
	_, err := d.Bun.NewInsert().
		Model(&meta).
		On("CONFLICT (event_id) DO UPDATE").
		Set("meeting_url = EXCLUDED.meeting_url").
		Set("platform = EXCLUDED.platform").
		Exec(context.Background())
	return err
}

func (d *DB) UpsertOnsite(meta models.EventOnsite) error {
	_, err := d.Bun.NewInsert().
		Model(&meta).
		On("CONFLICT (event_id) DO UPDATE").
		Set("venue_name = EXCLUDED.venue_name").
		Set("address = EXCLUDED.address").
		Set("latitude = EXCLUDED.latitude").
		Set("longitude = EXCLUDED.longitude").
		Exec(context.Background())
	return err
}

func (d *DB) UpsertHackathon(meta models.EventHackathon) error {
	_, err := d.Bun.NewInsert().
		Model(&meta).
		On("CONFLICT (event_id) DO UPDATE").
		Set("team_size_min = EXCLUDED.team_size_min").
		Set("team_size_max = EXCLUDED.team_size_max").
		Set("prize_pool = EXCLUDED.prize_pool").
		Set("judging_criteria = EXCLUDED.judging_criteria").
		Exec(context.Background())
	return err
}

// ---------------- TAGS ----------------

func (d *DB) AddTag(tag models.EventTag) error {
	_, err := d.Bun.NewInsert().
		Model(&tag).
		On("CONFLICT (event_id, tag) DO NOTHING").
		Exec(context.Background())
	return err
}

func (d *DB) RemoveTag(eventID, tag string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.EventTag)(nil)).
		Where("event_id = ?", eventID).
		Where("tag = ?", tag).
		Exec(context.Background())
	return err
}

// ---------------- GUARD QUERIES ----------------

// GetCommunity returns (nil, nil) when no community holds the id.
func (d *DB) GetCommunity(id string) (*models.Community, error) {
	var community models.Community
	err := d.Bun.NewSelect().
		Model(&community).
		Where("id = ?", id).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &community, nil
}

func (d *DB) CountPublishedEvents(communityID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Event)(nil)).
		Where("community_id = ?", communityID).
		Where("status = ?", models.EventStatusPublished).
		Count(context.Background())
}

func (d *DB) CountConfirmedRegistrations(eventID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Registration)(nil)).
		Where("event_id = ?", eventID).
		Where("status = ?", models.RegistrationConfirmed).
		Count(context.Background())
}
