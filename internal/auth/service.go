package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/issueflow/internal/database/models"
	"github.com/hugh/issueflow/pkg/crypto"
	"github.com/hugh/issueflow/pkg/util"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("user already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInactiveUser        = errors.New("user is inactive")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidResetToken   = errors.New("invalid or expired reset token")
)

const opaqueTokenBytes = 32

// Notifier delivers account emails. The production implementation enqueues
// background tasks; a nil Notifier drops notifications.
type Notifier interface {
	SendWelcome(ctx context.Context, user *models.User) error
	SendPasswordReset(ctx context.Context, user *models.User, token string, expiresAt time.Time) error
}

type Service struct {
	db            *gorm.DB
	jwt           *JWTService
	notifier      Notifier
	logger        *slog.Logger
	refreshExpiry time.Duration
	resetExpiry   time.Duration
	now           func() time.Time
}

type ServiceOption func(*Service)

func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

func WithRefreshExpiry(d time.Duration) ServiceOption {
	return func(s *Service) { s.refreshExpiry = d }
}

func WithResetExpiry(d time.Duration) ServiceOption {
	return func(s *Service) { s.resetExpiry = d }
}

func NewService(db *gorm.DB, jwt *JWTService, opts ...ServiceOption) *Service {
	s := &Service{
		db:            db,
		jwt:           jwt,
		logger:        util.NopLogger(),
		refreshExpiry: 7 * 24 * time.Hour,
		resetExpiry:   time.Hour,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type LoginInput struct {
	Email    string
	Password string
}

type UpdateProfileInput struct {
	Name  *string
	Email *string
}

// AuthResponse is an issued token pair plus the user it belongs to.
type AuthResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	User         *models.User `json:"user"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	email := normalizeEmail(input.Email)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(input.Name),
		Role:         models.RoleMember,
		Status:       models.UserStatusActive,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	resp, err := s.issueTokens(ctx, &user)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.SendWelcome(ctx, &user); err != nil {
			s.logger.Warn("failed to queue welcome email", "user_id", user.ID, "error", err)
		}
	}

	return resp, nil
}

func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Where("email = ?", normalizeEmail(input.Email)).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive() {
		return nil, ErrInactiveUser
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		return nil, err
	}
	user.LastLoginAt = &now

	return s.issueTokens(ctx, &user)
}

// RefreshToken rotates a refresh token: the presented token is revoked and a
// new pair is issued. Presenting an already revoked token revokes every
// outstanding token of that user, since it means the token leaked.
func (s *Service) RefreshToken(ctx context.Context, token string) (*AuthResponse, error) {
	if token == "" {
		return nil, ErrInvalidRefreshToken
	}

	var stored models.RefreshToken
	if err := s.db.WithContext(ctx).
		Where("token_hash = ?", crypto.HashToken(token)).
		First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	now := s.now()
	if stored.RevokedAt != nil {
		s.logger.Warn("revoked refresh token presented", "user_id", stored.UserID)
		if err := s.revokeAll(ctx, stored.UserID); err != nil {
			return nil, err
		}
		return nil, ErrInvalidRefreshToken
	}
	if !stored.Usable(now) {
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.GetUserByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if !user.IsActive() {
		return nil, ErrInactiveUser
	}

	// Only one caller may rotate a given token.
	res := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", stored.ID).
		Update("revoked_at", now)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrInvalidRefreshToken
	}

	return s.issueTokens(ctx, user)
}

// Logout revokes the given refresh token, or every refresh token of the user
// when none is given.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	if refreshToken == "" {
		return s.revokeAll(ctx, userID)
	}
	return s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ? AND token_hash = ? AND revoked_at IS NULL", userID, crypto.HashToken(refreshToken)).
		Update("revoked_at", s.now()).Error
}

// RequestPasswordReset never reports whether the email exists. Only
// infrastructure failures surface as errors.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return err
	}
	if !user.IsActive() {
		return nil
	}

	token, err := crypto.GenerateToken(opaqueTokenBytes)
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.resetExpiry)

	reset := models.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: crypto.HashToken(token),
		ExpiresAt: expiresAt,
	}
	if err := s.db.WithContext(ctx).Create(&reset).Error; err != nil {
		return err
	}

	if s.notifier != nil {
		if err := s.notifier.SendPasswordReset(ctx, &user, token, expiresAt); err != nil {
			s.logger.Error("failed to queue password reset email", "user_id", user.ID, "error", err)
		}
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	var reset models.PasswordResetToken
	if err := s.db.WithContext(ctx).
		Where("token_hash = ?", crypto.HashToken(token)).
		First(&reset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}

	now := s.now()
	if !reset.Usable(now) {
		return ErrInvalidResetToken
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed := tx.Model(&models.PasswordResetToken{}).
			Where("id = ? AND used_at IS NULL", reset.ID).
			Update("used_at", now)
		if claimed.Error != nil {
			return claimed.Error
		}
		if claimed.RowsAffected == 0 {
			return ErrInvalidResetToken
		}

		res := tx.Model(&models.User{}).Where("id = ?", reset.UserID).Update("password_hash", hash)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidResetToken
		}
		return tx.Model(&models.RefreshToken{}).
			Where("user_id = ? AND revoked_at IS NULL", reset.UserID).
			Update("revoked_at", now).Error
	})
}

func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !CheckPassword(currentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(user).Update("password_hash", hash).Error; err != nil {
		return err
	}
	return s.revokeAll(ctx, userID)
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*models.User, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil {
		email := normalizeEmail(*input.Email)
		if email != user.Email {
			var count int64
			if err := s.db.WithContext(ctx).Model(&models.User{}).
				Where("email = ? AND id <> ?", email, userID).
				Count(&count).Error; err != nil {
				return nil, err
			}
			if count > 0 {
				return nil, ErrUserExists
			}
			updates["email"] = email
		}
	}

	if len(updates) == 0 {
		return user, nil
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, userID)
}

// CleanupExpiredTokens hard-deletes refresh and reset tokens that can no
// longer be used. Returns the number of rows removed.
func (s *Service) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	now := s.now()

	res := s.db.WithContext(ctx).Unscoped().
		Where("expires_at < ? OR revoked_at IS NOT NULL", now).
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, res.Error
	}
	removed := res.RowsAffected

	res = s.db.WithContext(ctx).Unscoped().
		Where("expires_at < ? OR used_at IS NOT NULL", now).
		Delete(&models.PasswordResetToken{})
	if res.Error != nil {
		return removed, res.Error
	}

	return removed + res.RowsAffected, nil
}

func (s *Service) issueTokens(ctx context.Context, user *models.User) (*AuthResponse, error) {
	access, err := s.jwt.GenerateToken(user)
	if err != nil {
		return nil, err
	}

	refresh, err := crypto.GenerateToken(opaqueTokenBytes)
	if err != nil {
		return nil, err
	}

	record := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: crypto.HashToken(refresh),
		ExpiresAt: s.now().Add(s.refreshExpiry),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}

	return &AuthResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.jwt.Expiry().Seconds()),
		User:         user,
	}, nil
}

func (s *Service) revokeAll(ctx context.Context, userID uuid.UUID) error {
	return s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", s.now()).Error
}
