package users

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmerrifield20/profilehub/internal/media"
)

// tokenService issues and verifies email verification tokens.
type tokenService interface {
	Issue(username string) (string, error)
	Verify(token string) (string, error)
}

// notifier delivers the verification email.
type notifier interface {
	SendVerificationEmail(ctx context.Context, a *Account, token string) error
}

// imageStore holds uploaded profile images.
type imageStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Service provisions accounts and serves account reads.
type Service struct {
	store      Store
	policy     *Policy
	tokens     tokenService
	notifier   notifier
	images     imageStore
	bcryptCost int
	logger     *zap.Logger
}

// NewService creates a Service.
func NewService(store Store, policy *Policy, tokens tokenService, n notifier, images imageStore, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		policy:     policy,
		tokens:     tokens,
		notifier:   n,
		images:     images,
		bcryptCost: bcrypt.DefaultCost,
		logger:     logger,
	}
}

// SetBcryptCost overrides the password hashing cost.
func (s *Service) SetBcryptCost(cost int) {
	if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
		s.bcryptCost = cost
	}
}

// Register validates in and creates the account and its profile as one
// unit, then sends a verification email. Email delivery failures are logged
// and do not fail the registration.
//
// Errors: *ValidationError, *ConflictError or *StorageError.
func (s *Service) Register(ctx context.Context, in SignupInput) (*Account, error) {
	signup, errs, err := s.policy.Validate(ctx, in)
	if err != nil {
		return nil, &StorageError{Op: "validate signup", Err: err}
	}
	if len(errs) > 0 {
		if errs.onlyCode(CodeUnique) {
			fields := make([]string, 0, len(errs))
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			return nil, &ConflictError{Fields: fields}
		}
		return nil, &ValidationError{Errors: errs}
	}

	hash, err := HashPassword(signup.Password, s.bcryptCost)
	if err != nil {
		return nil, &StorageError{Op: "hash password", Err: err}
	}

	keys, err := s.uploadImages(ctx, signup)
	if err != nil {
		return nil, err
	}

	acct := &Account{
		Username:     signup.Username,
		Email:        signup.Email,
		PasswordHash: hash,
		FirstName:    signup.FirstName,
		LastName:     signup.LastName,
	}
	profile := Profile{
		ProfilePic: keys[0],
		HeroBadge:  keys[1],
		Age:        signup.Age,
		City:       signup.City,
		Country:    signup.Country,
		Followers:  signup.Followers,
		Likes:      signup.Likes,
		Posts:      signup.Posts,
	}

	err = s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.CreateAccount(ctx, acct); err != nil {
			return err
		}
		return tx.CreateProfile(ctx, acct.ID, &profile)
	})
	if err != nil {
		s.removeImages(ctx, keys[:]...)
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			return nil, conflict
		}
		return nil, &StorageError{Op: "create account", Err: err}
	}
	acct.Profile = profile

	s.logger.Info("account registered",
		zap.String("account_id", acct.ID.String()),
		zap.String("username", acct.Username),
	)

	s.sendVerification(ctx, acct)
	return acct, nil
}

func (s *Service) sendVerification(ctx context.Context, a *Account) {
	token, err := s.tokens.Issue(a.Username)
	if err != nil {
		s.logger.Warn("failed to issue verification token",
			zap.String("username", a.Username),
			zap.Error(err),
		)
		return
	}
	if err := s.notifier.SendVerificationEmail(ctx, a, token); err != nil {
		s.logger.Warn("failed to send verification email",
			zap.String("username", a.Username),
			zap.Error(err),
		)
	}
}

// uploadImages stores both images and returns their keys in
// profile_pic, hero_badge order. On failure nothing stays uploaded.
func (s *Service) uploadImages(ctx context.Context, signup *Signup) ([2]string, error) {
	var keys [2]string
	prefix := "profiles/" + uuid.NewString()
	for i, img := range []Image{signup.ProfilePic, signup.HeroBadge} {
		key := media.NewKey(prefix, img.ContentType)
		if err := s.images.Put(ctx, key, bytes.NewReader(img.Data), int64(len(img.Data)), img.ContentType); err != nil {
			s.removeImages(ctx, keys[:i]...)
			return keys, &StorageError{Op: "upload image", Err: err}
		}
		keys[i] = key
	}
	return keys, nil
}

func (s *Service) removeImages(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.images.Delete(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Warn("failed to remove image", zap.String("key", key), zap.Error(err))
		}
	}
}

// VerifyEmail checks token and marks the named account verified. Verifying
// an already verified account succeeds. Token failures are returned as
// *identity.TokenError.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*Account, error) {
	username, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	acct, err := s.store.SetVerified(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Op: "verify email", Err: err}
	}
	s.logger.Info("email verified", zap.String("username", acct.Username))
	return acct, nil
}

// GetByUsername returns the account with the given username.
func (s *Service) GetByUsername(ctx context.Context, username string) (*Account, error) {
	acct, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Op: "get account", Err: err}
	}
	return acct, nil
}

// List returns accounts ordered by profile creation time.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Account, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("list accounts: limit must be positive")
	}
	if offset < 0 {
		offset = 0
	}
	accts, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, &StorageError{Op: "list accounts", Err: err}
	}
	return accts, nil
}

// Delete removes the account and its profile, then its images.
func (s *Service) Delete(ctx context.Context, username string) error {
	acct, err := s.store.Delete(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return &StorageError{Op: "delete account", Err: err}
	}
	s.removeImages(ctx, acct.Profile.ProfilePic, acct.Profile.HeroBadge)
	s.logger.Info("account deleted", zap.String("username", username))
	return nil
}

// Ready reports whether the store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}
