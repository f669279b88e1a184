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

// ---------------- USERS ----------------

func (d *DB) CreateUser(user models.User) error {
	_, err := d.Bun.NewInsert().Model(&user).Exec(context.Background())
	return err
}

// GetUserByID returns (nil, nil) when no user holds the id.
func (d *DB) GetUserByID(id string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail returns (nil, nil) when no user holds the email.
func (d *DB) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("email = ?", email).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetVerifiedUserByEmail only matches users with a verified email, so
// placeholder addresses can never be link targets.
func (d *DB) GetVerifiedUserByEmail(email string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("email = ?", email).
		Where("email_verified = TRUE").
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *DB) UpdateUser(user models.User) error {
	user.UpdatedAt = time.Now()
	_, err := d.Bun.NewUpdate().
		Model(&user).
		Column("email", "email_verified", "full_name", "password_hash", "updated_at").
		Where("id = ?", user.ID).
		Exec(context.Background())
	return err
}

func (d *DB) DeleteUser(id string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.User)(nil)).
		Where("id = ?", id).
		Exec(context.Background())
	return err
}

// ---------------- ACCOUNTS ----------------

func (d *DB) CreateAccount(account models.Account) error {
	_, err := d.Bun.NewInsert().Model(&account).Exec(context.Background())
	return err
}

// GetAccount returns (nil, nil) when no account links the provider identity.
func (d *DB) GetAccount(provider, providerAccountID string) (*models.Account, error) {
	var account models.Account
	err := d.Bun.NewSelect().
		Model(&account).
		Where("provider = ?", provider).
		Where("provider_account_id = ?", providerAccountID).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (d *DB) ListAccountsByUser(userID string) ([]models.Account, error) {
	var accounts []models.Account
	err := d.Bun.NewSelect().
		Model(&accounts).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (d *DB) DeleteAccount(userID, provider string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.Account)(nil)).
		Where("user_id = ?", userID).
		Where("provider = ?", provider).
		Exec(context.Background())
	return err
}

// ---------------- SESSIONS ----------------

func (d *DB) CreateSession(session models.Session) error {
	_, err := d.Bun.NewInsert().Model(&session).Exec(context.Background())
	return err
}

func (d *DB) GetSessionByID(id string) (*models.Session, error) {
	var session models.Session
	err := d.Bun.NewSelect().
		Model(&session).
		Where("id = ?", id).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (d *DB) RevokeSession(id string) error {
	now := time.Now()
	_, err := d.Bun.NewUpdate().
		Model((*models.Session)(nil)).
		Set("revoked_at = ?", now).
		Where("id = ?", id).
		Where("revoked_at IS NULL").
		Exec(context.Background())
	return err
}

// RevokeAllSessions revokes every live session for a user and returns their ids
// so the cache entries can be dropped too.
func (d *DB) RevokeAllSessions(userID string) ([]string, error) {
	var ids []string
	err := d.Bun.NewSelect().
		Column("id").
		Table("sessions").
		Where("user_id = ?", userID).
		Where("revoked_at IS NULL").
		Scan(context.Background(), &ids)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	_, err = d.Bun.NewUpdate().
		Model((*models.Session)(nil)).
		Set("revoked_at = ?", now).
		Where("user_id = ?", userID).
		Where("revoked_at IS NULL").
		Exec(context.Background())
	if err != nil {
		return nil, err
	}
	return ids, nil
}
