package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/filedrop/filedrop/internal/common"
	"github.com/filedrop/filedrop/internal/cryptox"
	"github.com/filedrop/filedrop/internal/logging"
)

// Service is the account ledger: it owns identity creation and verification.
type Service struct {
	repo   Repository
	logger logging.Logger
}

func NewService(repo Repository, logger logging.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With("component", "accounts"),
	}
}

// CreateOrAuthenticate returns the account for the pair, creating it on first
// use with a fresh salt and verifier. Calling it twice with the same pair
// yields the same account. Every credential failure comes back as
// common.ErrUnauthorized; the caller cannot tell a wrong password from a
// username claimed by someone else.
func (s *Service) CreateOrAuthenticate(ctx context.Context, username, password string) (*Account, error) {
	account, err := s.repo.GetByUsername(ctx, username)
	if err == nil {
		return s.verify(account, password)
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("account lookup: %w", err)
	}

	salt := cryptox.NewSalt()
	account = &Account{
		Username: username,
		Salt:     salt,
		Verifier: cryptox.DeriveVerifier(password, salt),
	}

	created, err := s.repo.Create(ctx, account)
	if err == nil {
		s.logger.Info(ctx, "account created", "username", username)
		return created, nil
	}

	// Lost a create race: another request claimed the username first. Fall
	// back to verification so the outcome matches a plain authenticate.
	existing, getErr := s.repo.GetByUsername(ctx, username)
	if getErr != nil {
		return nil, fmt.Errorf("account create: %w", err)
	}
	return s.verify(existing, password)
}

// Authenticate is the read-only variant used by listing and download paths.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Account, error) {
	account, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, fmt.Errorf("account lookup: %w", err)
	}
	return s.verify(account, password)
}

func (s *Service) verify(account *Account, password string) (*Account, error) {
	derived := cryptox.DeriveVerifier(password, account.Salt)
	defer common.WipeByteArray(derived)

	if !cryptox.VerifierMatches(account.Verifier, derived) {
		return nil, common.ErrUnauthorized
	}
	return account, nil
}
