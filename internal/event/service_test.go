package event_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"eventflow/internal/event"
	"eventflow/internal/logger"
	"eventflow/internal/models"
)

// Mock implementations
type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) CreateEvent(e models.Event) error {
	args := m.Called(e)
	return args.Error(0)
}

func (m *MockDBLayer) GetEventByID(id string) (*models.Event, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockDBLayer) ListByCommunity(communityID string, publishedOnly bool) ([]models.Event, error) {
	args := m.Called(communityID, publishedOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *MockDBLayer) ListByTag(tag string) ([]models.Event, error) {
	args := m.Called(tag)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *MockDBLayer) UpdateEventDetails(e models.Event) error {
	args := m.Called(e)
	return args.Error(0)
}

func (m *MockDBLayer) UpdateEventSettings(e models.Event) error {
	args := m.Called(e)
	return args.Error(0)
}

func (m *MockDBLayer) UpdateEventStatus(e models.Event) error {
	args := m.Called(e)
	return args.Error(0)
}

func (m *MockDBLayer) DeleteEvent(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockDBLayer) UpsertOnline(meta models.EventOnline) error {
	args := m.Called(meta)
	return args.Error(0)
}

func (m *MockDBLayer) UpsertOnsite(meta models.EventOnsite) error {
	args := m.Called(meta)
	return args.Error(0)
}

func (m *MockDBLayer) UpsertHackathon(meta models.EventHackathon) error {
	args := m.Called(meta)
	return args.Error(0)
}

func (m *MockDBLayer) AddTag(tag models.EventTag) error {
	args := m.Called(tag)
	return args.Error(0)
}

func (m *MockDBLayer) RemoveTag(eventID, tag string) error {
	args := m.Called(eventID, tag)
	return args.Error(0)
}

func (m *MockDBLayer) GetCommunity(id string) (*models.Community, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Community), args.Error(1)
}

func (m *MockDBLayer) CountPublishedEvents(communityID string) (int, error) {
	args := m.Called(communityID)
	return args.Int(0), args.Error(1)
}

func (m *MockDBLayer) CountConfirmedRegistrations(eventID string) (int, error) {
	args := m.Called(eventID)
	return args.Int(0), args.Error(1)
}

type MockPermissions struct {
	mock.Mock
}

func (m *MockPermissions) IsAdmin(communityID, userID string) (bool, error) {
	args := m.Called(communityID, userID)
	return args.Bool(0), args.Error(1)
}

type MockKafkaProducer struct {
	mock.Mock
}

func (m *MockKafkaProducer) PublishJSON(topic, key string, value any) error {
	args := m.Called(topic, key, value)
	return args.Error(0)
}

func newTestService(db *MockDBLayer, perms *MockPermissions, pub *MockKafkaProducer) *event.Service {
	return event.NewService(db, perms, pub, logger.NewLogger())
}

func draftEvent(kind string) *models.Event {
	start := time.Now().Add(48 * time.Hour)
	return &models.Event{
		ID:          "evt-1",
		CommunityID: "comm-1",
		CreatorID:   "organizer",
		Kind:        kind,
		Status:      models.EventStatusDraft,
		Title:       "Test Event",
		StartAt:     start,
		EndAt:       start.Add(2 * time.Hour),
		Capacity:    50,
	}
}

// Tests start here
func TestCreateDraft(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPerms := new(MockPermissions)
	mockKafka := new(MockKafkaProducer)
	svc := newTestService(mockDB, mockPerms, mockKafka)

	community := &models.Community{ID: "comm-1", Plan: models.PlanFree}
	start := time.Now().Add(24 * time.Hour)

	mockPerms.On("IsAdmin", "comm-1", "organizer").Return(true, nil)
	mockDB.On("GetCommunity", "comm-1").Return(community, nil)
	mockDB.On("CreateEvent", mock.MatchedBy(func(e models.Event) bool {
		return e.Status == models.EventStatusDraft && e.Capacity == models.FreePlanMaxCapacity
	})).Return(nil)

	created, err := svc.CreateDraft("organizer", event.DraftInput{
		CommunityID: "comm-1",
		Kind:        models.EventKindOnline,
		Title:       "Go Meetup",
		StartAt:     start,
		EndAt:       start.Add(time.Hour),
	})

	assert.NoError(t, err)
	assert.Equal(t, models.EventStatusDraft, created.Status)
	assert.Equal(t, "organizer", created.CreatorID)
	mockDB.AssertExpectations(t)
}

func TestCreateDraftInvalidKind(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPerms := new(MockPermissions)
	mockKafka := new(MockKafkaProducer)
	svc := newTestService(mockDB, mockPerms, mockKafka)

	start := time.Now().Add(24 * time.Hour)
	_, err := svc.CreateDraft("organizer", event.DraftInput{
		CommunityID: "comm-1",
		Kind:        "metaverse",
		Title:       "Go Meetup",
		StartAt:     start,
		EndAt:       start.Add(time.Hour),
	})

	assert.ErrorIs(t, err, event.ErrInvalidKind)
	mockDB.AssertNotCalled(t, "CreateEvent", mock.Anything)
}

func TestCreateDraftStartAfterEnd(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPerms := new(MockPermissions)
	mockKafka := new(MockKafkaProducer)
	svc := newTestService(mockDB, mockPerms, mockKafka)

	start := time.Now().Add(24 * time.Hour)
	_, err := svc.CreateDraft("organizer", event.DraftInput{
		CommunityID: "comm-1",
		Kind:        models.EventKindOnline,
		Title:       "Go Meetup",
		StartAt:     start,
		EndAt:       start.Add(-time.Hour),
	})

	assert.ErrorIs(t, err, event.ErrInvalidTimes)
}

func TestCreateDraftNotAdmin(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPerms := new(MockPermissions)
	mockKafka := new(MockKafkaProducer)
	svc := newTestService(mockDB, mockPerms, mockKafka)

	mockPerms.On("IsAdmin", "comm-1", "stranger").Return(false, nil)

	start := time.Now().Add(24 * time.Hour)
	_, err := svc.CreateDraft("stranger", event.DraftInput{
		CommunityID: "comm-1",
		Kind:        models.EventKindOnsite,
		Title:       "Go Meetup",
		StartAt:     start,
		EndAt:       start.Add(time.Hour),
	})

	assert.ErrorIs(t, err, event.ErrForbidden)
}

func TestGetHidesDraftsFromOutsiders(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPerms := new(MockPermissions)
	mockKafka := new(MockKafkaProducer)
	svc := newTestService(mockDB, mockPerms, mockKafka)

	draft := draftEvent(models.EventKindOnline)
	mockDB.On("GetEventByID", "evt-1").Return(draft, nil)
	mockPerms.On("IsAdmin", "comm-1", "stranger").Return(false, nil)

	_, err := svc.Get("evt-1", "stranger")
	assert.ErrorIs(t, err, event.ErrNotFound)

	// The creator still sees it.
	got, err := svc.Get("evt-1", "organizer")
	assert.NoError(t, err)
	assert.Equal(t, "evt-1", got.ID)
}

func TestSetOnlineDetailsKindMismatch(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPerms := new(MockPermissions)
	mockKafka := new(MockKafkaProducer)
	svc := newTestService(mockDB, mockPerms, mockKafka)

	onsite := draftEvent(models.EventKindOnsite)
	mockDB.On("GetEventByID", "evt-1").Return(onsite, nil)

	_, err := svc.SetOnlineDetails("evt-1", "organizer", models.EventOnline{
		MeetingURL: "https://meet.example.com/room",
	})

	assert.ErrorIs(t, err, event.ErrKindMismatch)
	mockDB.AssertNotCalled(t, "UpsertOnline", mock.Anything)
}

func TestSetHackathonDetailsValidatesTeamSize(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPerms := new(MockPermissions)
	mockKafka := new(MockKafkaProducer)
	svc := newTestService(mockDB, mockPerms, mockKafka)

	hack := draftEvent(models.EventKindHackathon)
	mockDB.On("GetEventByID", "evt-1").Return(hack, nil)

	_, err := svc.SetHackathonDetails("evt-1", "organizer", models.EventHackathon{
		TeamSizeMin: 5,
		TeamSizeMax: 2,
	})

	assert.Error(t, err)
	mockDB.AssertNotCalled(t, "UpsertHackathon", mock.Anything)
}

func TestUpdateSettingsCapacityOverPlan(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPerms := new(MockPermissions)
	mockKafka := new(MockKafkaProducer)
	svc := newTestService(mockDB, mockPerms, mockKafka)

	draft := draftEvent(models.EventKindOnline)
	community := &models.Community{ID: "comm-1", Plan: models.PlanFree}

	mockDB.On("GetEventByID", "evt-1").Return(draft, nil)
	mockDB.On("GetCommunity", "comm-1").Return(community, nil)

	_, err := svc.UpdateSettings("evt-1", "organizer", event.SettingsInput{
		Capacity: models.FreePlanMaxCapacity + 1,
	})

	assert.ErrorIs(t, err, event.ErrPlanCapacity)
}

func TestUpdateSettingsApprovalNeedsPro(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPerms := new(MockPermissions)
	mockKafka := new(MockKafkaProducer)
	svc := newTestService(mockDB, mockPerms, mockKafka)

	draft := draftEvent(models.EventKindOnline)
	community := &models.Community{ID: "comm-1", Plan: models.PlanFree}

	mockDB.On("GetEventByID", "evt-1").Return(draft, nil)
	mockDB.On("GetCommunity", "comm-1").Return(community, nil)

	_, err := svc.UpdateSettings("evt-1", "organizer", event.SettingsInput{
		Capacity:         50,
		RequiresApproval: true,
	})

	assert.ErrorIs(t, err, event.ErrPlanApproval)
}

func TestUpdateSettingsCapacityBelowConfirmed(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPerms := new(MockPermissions)
	mockKafka := new(MockKafkaProducer)
	svc := newTestService(mockDB, mockPerms, mockKafka)

	draft := draftEvent(models.EventKindOnline)
	community := &models.Community{ID: "comm-1", Plan: models.PlanPro}

	mockDB.On("GetEventByID", "evt-1").Return(draft, nil)
	mockDB.On("GetCommunity", "comm-1").Return(community, nil)
	mockDB.On("CountConfirmedRegistrations", "evt-1").Return(30, nil)

	_, err := svc.UpdateSettings("evt-1", "organizer", event.SettingsInput{
		Capacity: 20,
	})

	assert.ErrorIs(t, err, event.ErrCapacityBelowCount)
}

func TestUpdateSettingsCloseAfterStart(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPerms := new(MockPermissions)
	mockKafka := new(MockKafkaProducer)
	svc := newTestService(mockDB, mockPerms, mockKafka)

	draft := draftEvent(models.EventKindOnline)
	community := &models.Community{ID: "comm-1", Plan: models.PlanFree}
	closeAt := draft.StartAt.Add(time.Hour)

	mockDB.On("GetEventByID", "evt-1").Return(draft, nil)
	mockDB.On("GetCommunity", "comm-1").Return(community, nil)

	_, err := svc.UpdateSettings("evt-1", "organizer", event.SettingsInput{
		Capacity:            50,
		RegistrationCloseAt: &closeAt,
	})

	assert.ErrorIs(t, err, event.ErrInvalidWindow)
}

func TestPublishIncompleteHybrid(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPerms := new(MockPermissions)
	mockKafka := new(MockKafkaProducer)
	svc := newTestService(mockDB, mockPerms, mockKafka)

	hybrid := draftEvent(models.EventKindHybrid)
	hybrid.Online = &models.EventOnline{EventID: "evt-1", MeetingURL: "https://meet.example.com/x"}
	// Onsite half missing.
	mockDB.On("GetEventByID", "evt-1").Return(hybrid, nil)

	_, err := svc.Publish("evt-1", "organizer")

	assert.ErrorIs(t, err, event.ErrIncomplete)
	mockDB.AssertNotCalled(t, "UpdateEventStatus", mock.Anything)
}

func TestPublishFreePlanEventLimit(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPerms := new(MockPermissions)
	mockKafka := new(MockKafkaProducer)
	svc := newTestService(mockDB, mockPerms, mockKafka)

	draft := draftEvent(models.EventKindOnline)
	draft.Online = &models.EventOnline{EventID: "evt-1", MeetingURL: "https://meet.example.com/x"}
	community := &models.Community{ID: "comm-1", Plan: models.PlanFree}

	mockDB.On("GetEventByID", "evt-1").Return(draft, nil)
	mockDB.On("GetCommunity", "comm-1").Return(community, nil)
	mockDB.On("CountPublishedEvents", "comm-1").Return(models.FreePlanMaxPublishedEvents, nil)

	_, err := svc.Publish("evt-1", "organizer")

	assert.ErrorIs(t, err, event.ErrPlanEventLimit)
}

func TestPublishOnlineEvent(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPerms := new(MockPermissions)
	mockKafka := new(MockKafkaProducer)
	svc := newTestService(mockDB, mockPerms, mockKafka)

	draft := draftEvent(models.EventKindOnline)
	draft.Online = &models.EventOnline{EventID: "evt-1", MeetingURL: "https://meet.example.com/x"}
	community := &models.Community{ID: "comm-1", Plan: models.PlanPro}

	mockDB.On("GetEventByID", "evt-1").Return(draft, nil)
	mockDB.On("GetCommunity", "comm-1").Return(community, nil)
	mockDB.On("UpdateEventStatus", mock.MatchedBy(func(e models.Event) bool {
		return e.Status == models.EventStatusPublished && e.PublishedAt != nil
	})).Return(nil)
	mockKafka.On("PublishJSON", mock.Anything, "evt-1", mock.Anything).Return(nil)

	_, err := svc.Publish("evt-1", "organizer")

	assert.NoError(t, err)
	mockDB.AssertExpectations(t)
	mockKafka.AssertExpectations(t)
}

func TestPublishAlreadyPublished(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPerms := new(MockPermissions)
	mockKafka := new(MockKafkaProducer)
	svc := newTestService(mockDB, mockPerms, mockKafka)

	published := draftEvent(models.EventKindOnline)
	published.Status = models.EventStatusPublished
	mockDB.On("GetEventByID", "evt-1").Return(published, nil)

	_, err := svc.Publish("evt-1", "organizer")

	assert.ErrorIs(t, err, event.ErrNotDraft)
}

func TestCompleteBeforeEnd(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPerms := new(MockPermissions)
	mockKafka := new(MockKafkaProducer)
	svc := newTestService(mockDB, mockPerms, mockKafka)

	published := draftEvent(models.EventKindOnline)
	published.Status = models.EventStatusPublished
	mockDB.On("GetEventByID", "evt-1").Return(published, nil)

	_, err := svc.Complete("evt-1", "organizer")

	assert.ErrorIs(t, err, event.ErrNotEnded)
}

func TestDeletePublishedEvent(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPerms := new(MockPermissions)
	mockKafka := new(MockKafkaProducer)
	svc := newTestService(mockDB, mockPerms, mockKafka)

	published := draftEvent(models.EventKindOnline)
	published.Status = models.EventStatusPublished
	mockDB.On("GetEventByID", "evt-1").Return(published, nil)

	err := svc.Delete("evt-1", "organizer")

	assert.ErrorIs(t, err, event.ErrNotDraft)
	mockDB.AssertNotCalled(t, "DeleteEvent", mock.Anything)
}
