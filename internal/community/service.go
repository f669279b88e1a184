package community

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventflow/internal/logger"
	"eventflow/internal/models"
	"eventflow/internal/utils"
)

var (
	ErrNotFound         = errors.New("community not found")
	ErrForbidden        = errors.New("not an admin of this community")
	ErrOwnerOnly        = errors.New("only the owner may do this")
	ErrSlugTaken        = errors.New("community slug already in use")
	ErrOwnerImmutable   = errors.New("the owner cannot be removed")
	ErrHasRegistrations = errors.New("community has events with live registrations")
	ErrAlreadyAdmin     = errors.New("user is already an admin")
)

type DBLayer interface {
	CreateCommunity(community models.Community) error
	GetCommunityByID(id string) (*models.Community, error)
	GetCommunityBySlug(slug string) (*models.Community, error)
	ListCommunitiesForUser(userID string) ([]models.Community, error)
	UpdateCommunity(community models.Community) error
	DeleteCommunity(id string) error
	AddAdmin(admin models.CommunityAdmin) error
	RemoveAdmin(communityID, userID string) error
	ListAdmins(communityID string) ([]models.CommunityAdmin, error)
	GetAdminRole(communityID, userID string) (string, error)
	CountLiveRegistrations(communityID string) (int, error)
}

type Service struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewService(db DBLayer, log *logger.Logger) *Service {
	return &Service{DB: db, Logger: log}
}

// Create makes a community and installs the creator as owner.
func (s *Service) Create(creatorID, name, description string) (*models.Community, error) {
	slug := utils.Slugify(name)
	if slug == "" {
		return nil, errors.New("community name produces an empty slug")
	}

	existing, err := s.DB.GetCommunityBySlug(slug)
	if err != nil {
		return nil, fmt.Errorf("failed to check slug: %w", err)
	}
	if existing != nil {
		return nil, ErrSlugTaken
	}

	community := models.Community{
		ID:          uuid.NewString(),
		Slug:        slug,
		Name:        name,
		Description: description,
		Plan:        models.PlanFree,
		CreatedAt:   time.Now(),
	}
	if err := s.DB.CreateCommunity(community); err != nil {
		return nil, fmt.Errorf("failed to create community: %w", err)
	}

	owner := models.CommunityAdmin{
		ID:          uuid.NewString(),
		CommunityID: community.ID,
		UserID:      creatorID,
		Role:        models.RoleOwner,
		CreatedAt:   time.Now(),
	}
	if err := s.DB.AddAdmin(owner); err != nil {
		return nil, fmt.Errorf("failed to add owner: %w", err)
	}

	s.Logger.Info("COMMUNITY", fmt.Sprintf("community %s (%s) created by %s", community.ID, slug, creatorID))
	return &community, nil
}

func (s *Service) GetBySlug(slug string) (*models.Community, error) {
	community, err := s.DB.GetCommunityBySlug(slug)
	if err != nil {
		return nil, fmt.Errorf("failed to load community: %w", err)
	}
	if community == nil {
		return nil, ErrNotFound
	}
	return community, nil
}

func (s *Service) ListMine(userID string) ([]models.Community, error) {
	return s.DB.ListCommunitiesForUser(userID)
}

// Role returns the caller's admin role in the community ("" for none).
func (s *Service) Role(communityID, userID string) (string, error) {
	return s.DB.GetAdminRole(communityID, userID)
}

// IsAdmin reports whether the user administers the community. Exposed for
// the event and registration services.
func (s *Service) IsAdmin(communityID, userID string) (bool, error) {
	role, err := s.DB.GetAdminRole(communityID, userID)
	if err != nil {
		return false, err
	}
	return role != "", nil
}

func (s *Service) Update(communityID, userID, name, description string) (*models.Community, error) {
	community, err := s.requireRole(communityID, userID, false)
	if err != nil {
		return nil, err
	}

	if name != "" {
		community.Name = name
	}
	community.Description = description
	if err := s.DB.UpdateCommunity(*community); err != nil {
		return nil, fmt.Errorf("failed to update community: %w", err)
	}
	return community, nil
}

// Delete removes a community. Blocked while any of its events still holds a
// live registration, so attendees are never silently dropped.
func (s *Service) Delete(communityID, userID string) error {
	if _, err := s.requireRole(communityID, userID, true); err != nil {
		return err
	}

	count, err := s.DB.CountLiveRegistrations(communityID)
	if err != nil {
		return fmt.Errorf("failed to count registrations: %w", err)
	}
	if count > 0 {
		return ErrHasRegistrations
	}

	if err := s.DB.DeleteCommunity(communityID); err != nil {
		return fmt.Errorf("failed to delete community: %w", err)
	}
	s.Logger.Info("COMMUNITY", fmt.Sprintf("community %s deleted by %s", communityID, userID))
	return nil
}

func (s *Service) AddAdmin(communityID, ownerID, newAdminID string) error {
	if _, err := s.requireRole(communityID, ownerID, true); err != nil {
		return err
	}

	role, err := s.DB.GetAdminRole(communityID, newAdminID)
	if err != nil {
		return fmt.Errorf("failed to check existing role: %w", err)
	}
	if role != "" {
		return ErrAlreadyAdmin
	}

	admin := models.CommunityAdmin{
		ID:          uuid.NewString(),
		CommunityID: communityID,
		UserID:      newAdminID,
		Role:        models.RoleAdmin,
		CreatedAt:   time.Now(),
	}
	if err := s.DB.AddAdmin(admin); err != nil {
		return fmt.Errorf("failed to add admin: %w", err)
	}
	s.Logger.Info("COMMUNITY", fmt.Sprintf("user %s added as admin of %s", newAdminID, communityID))
	return nil
}

func (s *Service) RemoveAdmin(communityID, ownerID, adminID string) error {
	if _, err := s.requireRole(communityID, ownerID, true); err != nil {
		return err
	}

	role, err := s.DB.GetAdminRole(communityID, adminID)
	if err != nil {
		return fmt.Errorf("failed to check role: %w", err)
	}
	if role == "" {
		return errors.New("user is not an admin")
	}
	if role == models.RoleOwner {
		return ErrOwnerImmutable
	}

	if err := s.DB.RemoveAdmin(communityID, adminID); err != nil {
		return fmt.Errorf("failed to remove admin: %w", err)
	}
	return nil
}

func (s *Service) ListAdmins(communityID, userID string) ([]models.CommunityAdmin, error) {
	if _, err := s.requireRole(communityID, userID, false); err != nil {
		return nil, err
	}
	return s.DB.ListAdmins(communityID)
}

// requireRole loads the community and checks the caller's role; ownerOnly
// restricts to the owner.
func (s *Service) requireRole(communityID, userID string, ownerOnly bool) (*models.Community, error) {
	community, err := s.DB.GetCommunityByID(communityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load community: %w", err)
	}
	if community == nil {
		return nil, ErrNotFound
	}

	role, err := s.DB.GetAdminRole(communityID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check role: %w", err)
	}
	if role == "" {
		return nil, ErrForbidden
	}
	if ownerOnly && role != models.RoleOwner {
		return nil, ErrOwnerOnly
	}
	return community, nil
}
