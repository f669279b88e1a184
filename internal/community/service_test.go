package community_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"eventflow/internal/community"
	"eventflow/internal/logger"
	"eventflow/internal/models"
)

// Mock implementations

type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) CreateCommunity(c models.Community) error {
	args := m.Called(c)
	return args.Error(0)
}

func (m *MockDBLayer) GetCommunityByID(id string) (*models.Community, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Community), args.Error(1)
}

func (m *MockDBLayer) GetCommunityBySlug(slug string) (*models.Community, error) {
	args := m.Called(slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Community), args.Error(1)
}

func (m *MockDBLayer) ListCommunitiesForUser(userID string) ([]models.Community, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Community), args.Error(1)
}

func (m *MockDBLayer) UpdateCommunity(c models.Community) error {
	args := m.Called(c)
	return args.Error(0)
}

func (m *MockDBLayer) DeleteCommunity(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockDBLayer) AddAdmin(admin models.CommunityAdmin) error {
	args := m.Called(admin)
	return args.Error(0)
}

func (m *MockDBLayer) RemoveAdmin(communityID, userID string) error {
	args := m.Called(communityID, userID)
	return args.Error(0)
}

func (m *MockDBLayer) ListAdmins(communityID string) ([]models.CommunityAdmin, error) {
	args := m.Called(communityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CommunityAdmin), args.Error(1)
}

func (m *MockDBLayer) GetAdminRole(communityID, userID string) (string, error) {
	args := m.Called(communityID, userID)
	return args.String(0), args.Error(1)
}

func (m *MockDBLayer) CountLiveRegistrations(communityID string) (int, error) {
	args := m.Called(communityID)
	return args.Int(0), args.Error(1)
}

func newTestService() (*community.Service, *MockDBLayer) {
	db := &MockDBLayer{}
	return community.NewService(db, logger.NewLogger()), db
}

func freeCommunity() *models.Community {
	return &models.Community{
		ID:   "comm-1",
		Slug: "go-meetup",
		Name: "Go Meetup",
		Plan: models.PlanFree,
	}
}

// Tests start here

func TestCreateCommunity(t *testing.T) {
	svc, db := newTestService()

	db.On("GetCommunityBySlug", "go-meetup").Return(nil, nil)
	db.On("CreateCommunity", mock.MatchedBy(func(c models.Community) bool {
		return c.Slug == "go-meetup" && c.Plan == models.PlanFree
	})).Return(nil)
	db.On("AddAdmin", mock.MatchedBy(func(a models.CommunityAdmin) bool {
		return a.UserID == "user-1" && a.Role == models.RoleOwner
	})).Return(nil)

	created, err := svc.Create("user-1", "Go Meetup", "monthly talks")

	assert.NoError(t, err)
	assert.Equal(t, "go-meetup", created.Slug)
	db.AssertExpectations(t)
}

func TestCreateCommunitySlugTaken(t *testing.T) {
	svc, db := newTestService()

	db.On("GetCommunityBySlug", "go-meetup").Return(freeCommunity(), nil)

	_, err := svc.Create("user-1", "Go Meetup", "")

	assert.ErrorIs(t, err, community.ErrSlugTaken)
	db.AssertNotCalled(t, "CreateCommunity", mock.Anything)
}

func TestUpdateCommunityRequiresAdmin(t *testing.T) {
	svc, db := newTestService()

	db.On("GetCommunityByID", "comm-1").Return(freeCommunity(), nil)
	db.On("GetAdminRole", "comm-1", "stranger").Return("", nil)

	_, err := svc.Update("comm-1", "stranger", "New Name", "")

	assert.ErrorIs(t, err, community.ErrForbidden)
	db.AssertNotCalled(t, "UpdateCommunity", mock.Anything)
}

func TestUpdateUnknownCommunity(t *testing.T) {
	svc, db := newTestService()

	db.On("GetCommunityByID", "ghost").Return(nil, nil)

	_, err := svc.Update("ghost", "user-1", "New Name", "")

	assert.ErrorIs(t, err, community.ErrNotFound)
}

func TestDeleteCommunityOwnerOnly(t *testing.T) {
	svc, db := newTestService()

	db.On("GetCommunityByID", "comm-1").Return(freeCommunity(), nil)
	db.On("GetAdminRole", "comm-1", "admin-1").Return(models.RoleAdmin, nil)

	err := svc.Delete("comm-1", "admin-1")

	assert.ErrorIs(t, err, community.ErrOwnerOnly)
	db.AssertNotCalled(t, "DeleteCommunity", mock.Anything)
}

func TestDeleteCommunityWithLiveRegistrations(t *testing.T) {
	svc, db := newTestService()

	db.On("GetCommunityByID", "comm-1").Return(freeCommunity(), nil)
	db.On("GetAdminRole", "comm-1", "owner-1").Return(models.RoleOwner, nil)
	db.On("CountLiveRegistrations", "comm-1").Return(5, nil)

	err := svc.Delete("comm-1", "owner-1")

	assert.ErrorIs(t, err, community.ErrHasRegistrations)
	db.AssertNotCalled(t, "DeleteCommunity", mock.Anything)
}

func TestDeleteEmptyCommunity(t *testing.T) {
	svc, db := newTestService()

	db.On("GetCommunityByID", "comm-1").Return(freeCommunity(), nil)
	db.On("GetAdminRole", "comm-1", "owner-1").Return(models.RoleOwner, nil)
	db.On("CountLiveRegistrations", "comm-1").Return(0, nil)
	db.On("DeleteCommunity", "comm-1").Return(nil)

	err := svc.Delete("comm-1", "owner-1")

	assert.NoError(t, err)
	db.AssertExpectations(t)
}

func TestAddAdminAlreadyAdmin(t *testing.T) {
	svc, db := newTestService()

	db.On("GetCommunityByID", "comm-1").Return(freeCommunity(), nil)
	db.On("GetAdminRole", "comm-1", "owner-1").Return(models.RoleOwner, nil)
	db.On("GetAdminRole", "comm-1", "admin-1").Return(models.RoleAdmin, nil)

	err := svc.AddAdmin("comm-1", "owner-1", "admin-1")

	assert.ErrorIs(t, err, community.ErrAlreadyAdmin)
	db.AssertNotCalled(t, "AddAdmin", mock.Anything)
}

func TestRemoveAdminOwnerImmutable(t *testing.T) {
	svc, db := newTestService()

	db.On("GetCommunityByID", "comm-1").Return(freeCommunity(), nil)
	db.On("GetAdminRole", "comm-1", "owner-1").Return(models.RoleOwner, nil)

	err := svc.RemoveAdmin("comm-1", "owner-1", "owner-1")

	assert.ErrorIs(t, err, community.ErrOwnerImmutable)
	db.AssertNotCalled(t, "RemoveAdmin", mock.Anything, mock.Anything)
}

func TestIsAdmin(t *testing.T) {
	svc, db := newTestService()

	db.On("GetAdminRole", "comm-1", "admin-1").Return(models.RoleAdmin, nil)
	db.On("GetAdminRole", "comm-1", "stranger").Return("", nil)

	ok, err := svc.IsAdmin("comm-1", "admin-1")
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsAdmin("comm-1", "stranger")
	assert.NoError(t, err)
	assert.False(t, ok)
}
