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

	"eventflow/internal/community/db"
	"eventflow/internal/models"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	// Connect to an in-memory SQLite DB for testing
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	// Create required tables
	tables := []any{
		(*models.User)(nil),
		(*models.Community)(nil),
		(*models.CommunityAdmin)(nil),
		(*models.Event)(nil),
		(*models.Registration)(nil),
	}
	for _, table := range tables {
		if _, err := bunDB.NewCreateTable().Model(table).Exec(context.Background()); err != nil {
			t.Fatalf("Failed to create table for %T: %v", table, err)
		}
	}

	return &db.DB{Bun: bunDB}, bunDB
}

func insertCommunity(t *testing.T, bunDB *bun.DB, plan string) models.Community {
	community := models.Community{
		ID:        uuid.New().String(),
		Slug:      "test-" + uuid.New().String()[:8],
		Name:      "Test Community",
		Plan:      plan,
		CreatedAt: time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&community).Exec(context.Background())
	assert.NoError(t, err)
	return community
}

func TestGetCommunityByID(t *testing.T) {
	communityDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	community := insertCommunity(t, bunDB, models.PlanFree)

	got, err := communityDB.GetCommunityByID(community.ID)
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, community.Slug, got.Slug)

	// Unknown id yields nil, not an error
	missing, err := communityDB.GetCommunityByID("no-such-id")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetCommunityBySlug(t *testing.T) {
	communityDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	community := insertCommunity(t, bunDB, models.PlanFree)

	got, err := communityDB.GetCommunityBySlug(community.Slug)
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, community.ID, got.ID)
}

func TestGetCommunityByStripeSubscription(t *testing.T) {
	communityDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	community := insertCommunity(t, bunDB, models.PlanPro)
	community.StripeSubscriptionID = "sub_123"
	assert.NoError(t, communityDB.UpdateCommunityBilling(community))

	got, err := communityDB.GetCommunityByStripeSubscription("sub_123")
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, community.ID, got.ID)

	missing, err := communityDB.GetCommunityByStripeSubscription("sub_unknown")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAdminRoles(t *testing.T) {
	communityDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	community := insertCommunity(t, bunDB, models.PlanFree)

	owner := models.CommunityAdmin{
		ID:          uuid.New().String(),
		CommunityID: community.ID,
		UserID:      "user-owner",
		Role:        models.RoleOwner,
		CreatedAt:   time.Now(),
	}
	assert.NoError(t, communityDB.AddAdmin(owner))

	admin := models.CommunityAdmin{
		ID:          uuid.New().String(),
		CommunityID: community.ID,
		UserID:      "user-admin",
		Role:        models.RoleAdmin,
		CreatedAt:   time.Now(),
	}
	assert.NoError(t, communityDB.AddAdmin(admin))

	role, err := communityDB.GetAdminRole(community.ID, "user-owner")
	assert.NoError(t, err)
	assert.Equal(t, models.RoleOwner, role)

	role, err = communityDB.GetAdminRole(community.ID, "user-stranger")
	assert.NoError(t, err)
	assert.Equal(t, "", role)

	admins, err := communityDB.ListAdmins(community.ID)
	assert.NoError(t, err)
	assert.Len(t, admins, 2)

	assert.NoError(t, communityDB.RemoveAdmin(community.ID, "user-admin"))

	admins, err = communityDB.ListAdmins(community.ID)
	assert.NoError(t, err)
	assert.Len(t, admins, 1)
}

func TestListCommunitiesForUser(t *testing.T) {
	communityDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	first := insertCommunity(t, bunDB, models.PlanFree)
	second := insertCommunity(t, bunDB, models.PlanFree)

	assert.NoError(t, communityDB.AddAdmin(models.CommunityAdmin{
		ID:          uuid.New().String(),
		CommunityID: first.ID,
		UserID:      "user-1",
		Role:        models.RoleOwner,
		CreatedAt:   time.Now(),
	}))
	assert.NoError(t, communityDB.AddAdmin(models.CommunityAdmin{
		ID:          uuid.New().String(),
		CommunityID: second.ID,
		UserID:      "user-2",
		Role:        models.RoleOwner,
		CreatedAt:   time.Now(),
	}))

	mine, err := communityDB.ListCommunitiesForUser("user-1")
	assert.NoError(t, err)
	assert.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].ID)
}

func TestCountLiveRegistrations(t *testing.T) {
	communityDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	community := insertCommunity(t, bunDB, models.PlanFree)
	start := time.Now().Add(24 * time.Hour)

	event := models.Event{
		ID:          uuid.New().String(),
		CommunityID: community.ID,
		CreatorID:   "user-owner",
		Kind:        models.EventKindOnline,
		Status:      models.EventStatusPublished,
		Title:       "Event",
		StartAt:     start,
		EndAt:       start.Add(time.Hour),
		Capacity:    10,
		CreatedAt:   time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&event).Exec(context.Background())
	assert.NoError(t, err)

	statuses := []string{
		models.RegistrationConfirmed,
		models.RegistrationWaitlisted,
		models.RegistrationCancelled,
	}
	for i, status := range statuses {
		reg := models.Registration{
			ID:        uuid.New().String(),
			EventID:   event.ID,
			UserID:    "user-" + string(rune('a'+i)),
			Status:    status,
			CreatedAt: time.Now(),
		}
		_, err := bunDB.NewInsert().Model(&reg).Exec(context.Background())
		assert.NoError(t, err)
	}

	// Cancelled rows do not count as live
	count, err := communityDB.CountLiveRegistrations(community.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDeleteCommunity(t *testing.T) {
	communityDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	community := insertCommunity(t, bunDB, models.PlanFree)

	assert.NoError(t, communityDB.DeleteCommunity(community.ID))

	got, err := communityDB.GetCommunityByID(community.ID)
	assert.NoError(t, err)
	assert.Nil(t, got)
}
