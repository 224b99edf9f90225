package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"authgate/internal/app/notify"
	"authgate/internal/common"
	"authgate/internal/common/security"
	"authgate/internal/domain/model"
	"authgate/internal/domain/repository"
	"authgate/internal/platform/config"

	"github.com/google/uuid"
)

type AuthService struct {
	accounts repository.AccountRepository
	notifier notify.Notifier
}

func NewAuthService(accounts repository.AccountRepository, notifier notify.Notifier) *AuthService {
	return &AuthService{accounts: accounts, notifier: notifier}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Identifier string `json:"identifier"` // Can be username or email
	Password   string `json:"password"`
}

type LoginResponse struct {
	Account      *model.Account `json:"user"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*model.Account, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	email := strings.ToLower(strings.TrimSpace(req.Email))

	role := req.Role
	if role == "" {
		role = model.RoleUser
	}

	// Pre-check for duplicates; the store's unique indexes settle races.
	if _, err := s.accounts.FindByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("username already taken: %w", common.ErrConflict)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("email already registered: %w", common.ErrConflict)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hashedPassword, err := security.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &model.Account{
		ID:             uuid.NewString(),
		Username:       username,
		Email:          email,
		HashedPassword: hashedPassword,
		Role:           role,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		// Repo returns common.ErrConflict on a duplicate key.
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	if err := s.sendVerificationMail(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AuthService) sendVerificationMail(ctx context.Context, account *model.Account) error {
	raw, digest, err := security.GenerateTemporaryToken()
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrInternalServer, err)
	}
	expiry := time.Now().Add(config.AppConfig.TempTokenTTL)
	if err := s.accounts.SetVerificationToken(ctx, account.ID, digest, expiry); err != nil {
		return fmt.Errorf("failed to store verification token: %w", err)
	}

	link := fmt.Sprintf("%s/api/v1/auth/verify-email/%s", config.AppConfig.PublicBaseURL, raw)
	msg, err := notify.VerificationMail(account.Email, account.Username, link, config.AppConfig.TempTokenTTL.String())
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrInternalServer, err)
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to dispatch verification mail: %w", err)
	}
	return nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	identifier := strings.ToLower(strings.TrimSpace(req.Identifier))

	// Try finding by email first, then by username.
	account, err := s.accounts.FindByEmail(ctx, identifier)
	if errors.Is(err, common.ErrNotFound) {
		account, err = s.accounts.FindByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Generic message so a caller cannot probe for accounts.
			return nil, common.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	if !security.CheckPasswordHash(req.Password, account.HashedPassword) {
		return nil, common.ErrUnauthorized
	}

	pair, err := s.issueTokenPair(account)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.SetRefreshToken(ctx, account.ID, pair.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}
	return &LoginResponse{Account: account, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// issueTokenPair classifies signer failures as internal errors, never as
// credential errors.
func (s *AuthService) issueTokenPair(account *model.Account) (*TokenPair, error) {
	accessToken, err := security.GenerateAccessToken(account.ID, account.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate access token: %s", common.ErrInternalServer, err)
	}
	refreshToken, err := security.GenerateRefreshToken(account.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate refresh token: %s", common.ErrInternalServer, err)
	}
	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// RefreshAccessToken rotates the presented refresh token for a new pair. The
// swap is conditional on the presented token still being the stored one, so of
// two concurrent refreshes exactly one wins.
func (s *AuthService) RefreshAccessToken(ctx context.Context, presented string) (*TokenPair, error) {
	if presented == "" {
		return nil, common.ErrUnauthorized
	}
	accountID, err := security.ParseRefreshToken(presented)
	if err != nil {
		return nil, common.ErrUnauthorized
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	pair, err := s.issueTokenPair(account)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.RotateRefreshToken(ctx, account.ID, presented, pair.RefreshToken); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return pair, nil
}

func (s *AuthService) Logout(ctx context.Context, accountID string) error {
	if err := s.accounts.ClearRefreshToken(ctx, accountID); err != nil {
		return fmt.Errorf("failed to clear refresh token: %w", err)
	}
	return nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, rawToken string) (*model.Account, error) {
	digest := security.HashToken(rawToken)
	account, err := s.accounts.FindByVerificationToken(ctx, digest, time.Now())
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrGone
		}
		return nil, fmt.Errorf("failed to look up verification token: %w", err)
	}
	if err := s.accounts.MarkEmailVerified(ctx, account.ID); err != nil {
		return nil, fmt.Errorf("failed to mark email verified: %w", err)
	}
	account.IsEmailVerified = true
	account.EmailVerificationToken = ""
	account.EmailVerificationExpiry = time.Time{}
	return account, nil
}

func (s *AuthService) ResendEmailVerification(ctx context.Context, accountID string) error {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrUnauthorized
		}
		return fmt.Errorf("failed to find account: %w", err)
	}
	if account.IsEmailVerified {
		return fmt.Errorf("email is already verified: %w", common.ErrConflict)
	}
	return s.sendVerificationMail(ctx, account)
}

// ForgotPassword never reveals whether the email exists: an unknown address
// succeeds with the same response shape and sends nothing.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	account, err := s.accounts.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to find account: %w", err)
	}

	raw, digest, err := security.GenerateTemporaryToken()
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrInternalServer, err)
	}
	expiry := time.Now().Add(config.AppConfig.TempTokenTTL)
	if err := s.accounts.SetResetToken(ctx, account.ID, digest, expiry); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	link := fmt.Sprintf("%s/api/v1/auth/reset-password/%s", config.AppConfig.PublicBaseURL, raw)
	msg, err := notify.PasswordResetMail(account.Email, account.Username, link, config.AppConfig.TempTokenTTL.String())
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrInternalServer, err)
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to dispatch reset mail: %w", err)
	}
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	digest := security.HashToken(rawToken)
	account, err := s.accounts.FindByResetToken(ctx, digest, time.Now())
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrGone
		}
		return fmt.Errorf("failed to look up reset token: %w", err)
	}

	hashedPassword, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	// Also drops the stored refresh token, forcing a fresh login.
	if err := s.accounts.ResetPassword(ctx, account.ID, hashedPassword); err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}
	return nil
}

func (s *AuthService) ChangeCurrentPassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrUnauthorized
		}
		return fmt.Errorf("failed to find account: %w", err)
	}
	if !security.CheckPasswordHash(oldPassword, account.HashedPassword) {
		return fmt.Errorf("old password does not match: %w", common.ErrUnauthorized)
	}

	hashedPassword, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, hashedPassword); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

func (s *AuthService) CurrentUser(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return account, nil
}
