package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"eventflow/internal/auth/db"
	"eventflow/internal/models"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	// Connect to an in-memory SQLite DB for testing
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	tables := []any{
		(*models.User)(nil),
		(*models.Account)(nil),
		(*models.Session)(nil),
	}
	for _, table := range tables {
		if _, err := bunDB.NewCreateTable().Model(table).Exec(context.Background()); err != nil {
			t.Fatalf("Failed to create table for %T: %v", table, err)
		}
	}

	return &db.DB{Bun: bunDB}, bunDB
}

func insertUser(t *testing.T, authDB *db.DB, email string, verified bool) models.User {
	user := models.User{
		ID:            uuid.New().String(),
		Email:         email,
		EmailVerified: verified,
		FullName:      "Test User",
		CreatedAt:     time.Now(),
	}
	assert.NoError(t, authDB.CreateUser(user))
	return user
}

func TestGetUserByID(t *testing.T) {
	authDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	user := insertUser(t, authDB, "person@example.com", true)

	got, err := authDB.GetUserByID(user.ID)
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, user.Email, got.Email)

	// Unknown id yields nil, not an error
	missing, err := authDB.GetUserByID("no-such-id")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetVerifiedUserByEmailSkipsUnverified(t *testing.T) {
	authDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	insertUser(t, authDB, "unverified@example.com", false)
	verified := insertUser(t, authDB, "verified@example.com", true)

	// The unverified user is visible to the plain lookup but never to the
	// verified-only one used for account linking.
	plain, err := authDB.GetUserByEmail("unverified@example.com")
	assert.NoError(t, err)
	assert.NotNil(t, plain)

	hidden, err := authDB.GetVerifiedUserByEmail("unverified@example.com")
	assert.NoError(t, err)
	assert.Nil(t, hidden)

	got, err := authDB.GetVerifiedUserByEmail("verified@example.com")
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, verified.ID, got.ID)
}
