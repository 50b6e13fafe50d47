package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/issueflow/internal/database/models"
	"github.com/hugh/issueflow/pkg/util"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrAccessDenied         = errors.New("access denied to organization")
	ErrInvalidSlug          = errors.New("slug must contain only lowercase letters, numbers and hyphens")
	ErrSlugTaken            = errors.New("organization slug already taken")
	ErrReservedSlug         = errors.New("organization slug is reserved")
	ErrInvalidPlan          = errors.New("unknown plan")
	ErrInvalidRole          = errors.New("role must be admin or member")
	ErrUserNotFound         = errors.New("user not found")
	ErrAlreadyMember        = errors.New("user is already a member")
	ErrMemberNotFound       = errors.New("membership not found")
	ErrSelfModification     = errors.New("cannot change your own membership")
	ErrLastAdmin            = errors.New("organization must keep at least one admin")
)

var slugRegex = regexp.MustCompile(`^[a-z0-9-]+$`)

// MaxSlugLength caps slugs of new organizations.
const MaxSlugLength = 64

// reservedSlugs collide with static routes under /organizations.
var reservedSlugs = map[string]bool{
	"current": true,
}

// IsValidSlug reports whether s is a well-formed organization slug.
func IsValidSlug(s string) bool {
	return slugRegex.MatchString(s)
}

// ValidateNewSlug checks a slug for a new organization. Beyond the format it
// enforces MaxSlugLength and rejects reserved names.
func ValidateNewSlug(s string) error {
	if len(s) > MaxSlugLength || !IsValidSlug(s) {
		return ErrInvalidSlug
	}
	if reservedSlugs[s] {
		return ErrReservedSlug
	}
	return nil
}

// Context is the per-request view of the tenant a caller is acting on.
// Role is empty when the caller is anonymous.
type Context struct {
	Organization *models.Organization
	Role         string
	Limits       PlanLimits
}

func (c *Context) Plan() Plan {
	return Plan(c.Organization.Plan)
}

func (c *Context) HasRole(roles ...string) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

// Service manages organizations and their memberships
type Service struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = util.NopLogger()
	}
	return &Service{db: db, logger: logger, now: time.Now}
}

type CreateOrganizationInput struct {
	Name     string
	Slug     string
	Plan     string
	Settings map[string]any
}

type UpdateOrganizationInput struct {
	Name     *string
	Plan     *string
	Settings map[string]any
}

// MemberInfo is a membership joined with the member's public profile.
type MemberInfo struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// CreateOrganization creates the organization and makes owner its first admin.
func (s *Service) CreateOrganization(ctx context.Context, owner uuid.UUID, input CreateOrganizationInput) (*models.Organization, error) {
	slug := strings.TrimSpace(input.Slug)
	if err := ValidateNewSlug(slug); err != nil {
		return nil, err
	}
	plan := input.Plan
	if plan == "" {
		plan = string(PlanFree)
	}
	if !IsValidPlan(plan) {
		return nil, ErrInvalidPlan
	}

	org := &models.Organization{
		Name:     strings.TrimSpace(input.Name),
		Slug:     slug,
		Plan:     plan,
		Settings: datatypes.JSONMap(input.Settings),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Soft-deleted organizations still own their slug
		var count int64
		if err := tx.Unscoped().Model(&models.Organization{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrSlugTaken
		}

		if err := tx.Create(org).Error; err != nil {
			return err
		}

		return tx.Create(&models.Membership{
			UserID:         owner,
			OrganizationID: org.ID,
			Role:           models.RoleAdmin,
			JoinedAt:       s.now(),
		}).Error
	})
	if err != nil {
		if errors.Is(err, ErrSlugTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("creating organization: %w", err)
	}

	s.logger.Info("organization created", "org_id", org.ID, "slug", org.Slug, "owner", owner)
	return org, nil
}

// ListForUser returns the organizations the user belongs to.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Organization, error) {
	var orgs []models.Organization
	err := s.db.WithContext(ctx).
		Joins("JOIN memberships ON memberships.organization_id = organizations.id").
		Where("memberships.user_id = ?", userID).
		Order("organizations.created_at ASC").
		Find(&orgs).Error
	if err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}
	return orgs, nil
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	var org models.Organization
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("loading organization: %w", err)
	}
	return &org, nil
}

func (s *Service) UpdateOrganization(ctx context.Context, orgID uuid.UUID, input UpdateOrganizationInput) (*models.Organization, error) {
	updates := map[string]any{}
	if input.Name != nil {
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Plan != nil {
		if !IsValidPlan(*input.Plan) {
			return nil, ErrInvalidPlan
		}
		updates["plan"] = *input.Plan
	}
	if input.Settings != nil {
		updates["settings"] = datatypes.JSONMap(input.Settings)
	}

	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, "id = ?", orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("loading organization: %w", err)
	}
	if len(updates) == 0 {
		return &org, nil
	}
	if err := s.db.WithContext(ctx).Model(&org).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("updating organization: %w", err)
	}
	if err := s.db.WithContext(ctx).First(&org, "id = ?", orgID).Error; err != nil {
		return nil, fmt.Errorf("reloading organization: %w", err)
	}
	return &org, nil
}

// DeleteOrganization soft-deletes the organization. Memberships are kept so a
// restore brings the team back.
func (s *Service) DeleteOrganization(ctx context.Context, orgID uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.Organization{}, "id = ?", orgID)
	if result.Error != nil {
		return fmt.Errorf("deleting organization: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrOrganizationNotFound
	}
	s.logger.Info("organization deleted", "org_id", orgID)
	return nil
}

// CheckUserAccess returns the user's role in the organization identified by
// slug.
func (s *Service) CheckUserAccess(ctx context.Context, slug string, userID uuid.UUID) (string, error) {
	org, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return "", err
	}
	m, err := s.membership(ctx, s.db, org.ID, userID)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return "", ErrAccessDenied
		}
		return "", err
	}
	return m.Role, nil
}

// BuildContext assembles the tenant context for slug. A nil userID builds an
// anonymous context; otherwise the user must be a member.
func (s *Service) BuildContext(ctx context.Context, slug string, userID *uuid.UUID) (*Context, error) {
	org, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	tc := &Context{Organization: org, Limits: LimitsFor(Plan(org.Plan))}
	if userID == nil {
		return tc, nil
	}

	m, err := s.membership(ctx, s.db, org.ID, *userID)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return nil, ErrAccessDenied
		}
		return nil, err
	}
	tc.Role = m.Role
	return tc, nil
}

func (s *Service) ListMembers(ctx context.Context, orgID uuid.UUID) ([]MemberInfo, error) {
	var members []MemberInfo
	err := s.db.WithContext(ctx).
		Table("memberships").
		Select("memberships.user_id, users.email, users.name, memberships.role, memberships.joined_at").
		Joins("JOIN users ON users.id = memberships.user_id AND users.deleted_at IS NULL").
		Where("memberships.organization_id = ?", orgID).
		Order("memberships.joined_at ASC").
		Scan(&members).Error
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	return members, nil
}

// AddMember adds the user registered under email to the organization.
func (s *Service) AddMember(ctx context.Context, orgID uuid.UUID, email, role string) (*MemberInfo, error) {
	if !isValidRole(role) {
		return nil, ErrInvalidRole
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if _, err := s.membership(ctx, s.db, orgID, user.ID); err == nil {
		return nil, ErrAlreadyMember
	} else if !errors.Is(err, ErrMemberNotFound) {
		return nil, err
	}

	m := &models.Membership{
		UserID:         user.ID,
		OrganizationID: orgID,
		Role:           role,
		JoinedAt:       s.now(),
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, fmt.Errorf("adding member: %w", err)
	}

	s.logger.Info("member added", "org_id", orgID, "user_id", user.ID, "role", role)
	return &MemberInfo{UserID: user.ID, Email: user.Email, Name: user.Name, Role: role, JoinedAt: m.JoinedAt}, nil
}

// UpdateMemberRole changes target's role. The actor may not change their own
// role, and the last admin may not be demoted.
func (s *Service) UpdateMemberRole(ctx context.Context, orgID, actor, target uuid.UUID, role string) (*models.Membership, error) {
	if actor == target {
		return nil, ErrSelfModification
	}
	if !isValidRole(role) {
		return nil, ErrInvalidRole
	}

	var updated *models.Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.membership(ctx, tx, orgID, target)
		if err != nil {
			return err
		}
		if m.Role == models.RoleAdmin && role != models.RoleAdmin {
			if err := s.ensureOtherAdmin(tx, orgID, target); err != nil {
				return err
			}
		}
		if err := tx.Model(m).Update("role", role).Error; err != nil {
			return err
		}
		m.Role = role
		updated = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("member role changed", "org_id", orgID, "user_id", target, "role", role, "by", actor)
	return updated, nil
}

// RemoveMember deletes target's membership under the same guards as
// UpdateMemberRole.
func (s *Service) RemoveMember(ctx context.Context, orgID, actor, target uuid.UUID) error {
	if actor == target {
		return ErrSelfModification
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.membership(ctx, tx, orgID, target)
		if err != nil {
			return err
		}
		if m.Role == models.RoleAdmin {
			if err := s.ensureOtherAdmin(tx, orgID, target); err != nil {
				return err
			}
		}
		return tx.Where("user_id = ? AND organization_id = ?", target, orgID).Delete(&models.Membership{}).Error
	})
	if err != nil {
		return err
	}

	s.logger.Info("member removed", "org_id", orgID, "user_id", target, "by", actor)
	return nil
}

func (s *Service) membership(ctx context.Context, db *gorm.DB, orgID, userID uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	err := db.WithContext(ctx).Where("organization_id = ? AND user_id = ?", orgID, userID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("loading membership: %w", err)
	}
	return &m, nil
}

func (s *Service) ensureOtherAdmin(tx *gorm.DB, orgID, except uuid.UUID) error {
	var admins int64
	err := tx.Model(&models.Membership{}).
		Where("organization_id = ? AND role = ? AND user_id <> ?", orgID, models.RoleAdmin, except).
		Count(&admins).Error
	if err != nil {
		return fmt.Errorf("counting admins: %w", err)
	}
	if admins == 0 {
		return ErrLastAdmin
	}
	return nil
}

func isValidRole(role string) bool {
	return role == models.RoleAdmin || role == models.RoleMember
}
