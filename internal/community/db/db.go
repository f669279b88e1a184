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

// ---------------- COMMUNITIES ----------------

func (d *DB) CreateCommunity(community models.Community) error {
	_, err := d.Bun.NewInsert().Model(&community).Exec(context.Background())
	return err
}

// GetCommunityByID returns (nil, nil) when no community holds the id.
func (d *DB) GetCommunityByID(id string) (*models.Community, error) {
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

// GetCommunityBySlug returns (nil, nil) when the slug is unused.
func (d *DB) GetCommunityBySlug(slug string) (*models.Community, error) {
	var community models.Community
	err := d.Bun.NewSelect().
		Model(&community).
		Where("slug = ?", slug).
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

// GetCommunityByStripeSubscription resolves the community behind a Stripe
// subscription id, for webhook processing. Returns (nil, nil) when unknown.
func (d *DB) GetCommunityByStripeSubscription(subscriptionID string) (*models.Community, error) {
	var community models.Community
	err := d.Bun.NewSelect().
		Model(&community).
		Where("stripe_subscription_id = ?", subscriptionID).
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

// ListCommunitiesForUser returns every community the user administers.
func (d *DB) ListCommunitiesForUser(userID string) ([]models.Community, error) {
	var communities []models.Community
	err := d.Bun.NewSelect().
		Model(&communities).
		Join("JOIN community_admins ca ON ca.community_id = community.id").
		Where("ca.user_id = ?", userID).
		Order("community.created_at ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return communities, nil
}

func (d *DB) UpdateCommunity(community models.Community) error {
	community.UpdatedAt = time.Now()
	_, err := d.Bun.NewUpdate().
		Model(&community).
		Column("name", "description", "updated_at").
		Where("id = ?", community.ID).
		Exec(context.Background())
	return err
}

// UpdateCommunityBilling persists plan and Stripe identifiers.
func (d *DB) UpdateCommunityBilling(community models.Community) error {
	community.UpdatedAt = time.Now()
	_, err := d.Bun.NewUpdate().
		Model(&community).
		Column("plan", "stripe_customer_id", "stripe_subscription_id", "updated_at").
		Where("id = ?", community.ID).
		Exec(context.Background())
	return err
}

func (d *DB) DeleteCommunity(id string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.Community)(nil)).
		Where("id = ?", id).
		Exec(context.Background())
	return err
}

// ---------------- ADMINS ----------------

func (d *DB) AddAdmin(admin models.CommunityAdmin) error {
	_, err := d.Bun.NewInsert().Model(&admin).Exec(context.Background())
	return err
}

func (d *DB) RemoveAdmin(communityID, userID string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.CommunityAdmin)(nil)).
		Where("community_id = ?", communityID).
		Where("user_id = ?", userID).
		Exec(context.Background())
	return err
}

func (d *DB) ListAdmins(communityID string) ([]models.CommunityAdmin, error) {
	var admins []models.CommunityAdmin
	err := d.Bun.NewSelect().
		Model(&admins).
		Relation("User").
		Where("community_admin.community_id = ?", communityID).
		Order("community_admin.created_at ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return admins, nil
}

// GetAdminRole returns the user's role in the community, or "" for none.
func (d *DB) GetAdminRole(communityID, userID string) (string, error) {
	var admin models.CommunityAdmin
	err := d.Bun.NewSelect().
		Model(&admin).
		Where("community_id = ?", communityID).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return admin.Role, nil
}

// ---------------- GUARD QUERIES ----------------

// CountLiveRegistrations counts pending/confirmed/waitlisted registrations
// across every event of the community; deletion is blocked while nonzero.
func (d *DB) CountLiveRegistrations(communityID string) (int, error) {
	count, err := d.Bun.NewSelect().
		Model((*models.Registration)(nil)).
		Join("JOIN events e ON e.id = registration.event_id").
		Where("e.community_id = ?", communityID).
		Where("registration.status IN (?)", bun.In([]string{
			models.RegistrationPending,
			models.RegistrationConfirmed,
			models.RegistrationWaitlisted,
		})).
		Count(context.Background())
	return count, err
}
