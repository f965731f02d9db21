// Package service holds the business logic between the HTTP handlers and
// the storage/catalog layers.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/studentfolio/studentfolio/internal/apperror"
	"github.com/studentfolio/studentfolio/internal/auth"
	"github.com/studentfolio/studentfolio/internal/catalog"
	"github.com/studentfolio/studentfolio/internal/directory"
	"github.com/studentfolio/studentfolio/internal/model"
	"github.com/studentfolio/studentfolio/internal/repository"
)

// AuthService orchestrates account registration and login.
//
// An account exists in two places: the local accounts table (login name and
// password hash) and the catalog (the profile everyone can see). Signup
// creates both and links them via CatalogID; login only touches the local
// table.
type AuthService struct {
	accounts  repository.AccountRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	admin     catalog.Invoker
	logger    *slog.Logger
}

// NewAuthService wires an AuthService. admin must be the administrator
// catalog session: creating catalog users is a privileged action.
func NewAuthService(
	accounts repository.AccountRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	admin catalog.Invoker,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		accounts:  accounts,
		tokens:    tokens,
		passwords: passwords,
		admin:     admin,
		logger:    logger,
	}
}

// AuthResult bundles the account and its freshly issued session token so
// the handler can set the cookie and respond in one step.
type AuthResult struct {
	Account *model.Account
	Token   string
}

// Signup registers a new account: it creates the catalog user first (the
// catalog is the authority on username uniqueness), then the local row
// linking to it, and issues a session token.
//
// If the local insert fails after the catalog user was created, the catalog
// user is left behind; a retried signup with the same username will then
// fail at the catalog with the same ErrUserCreate, which is the correct
// answer either way.
func (s *AuthService) Signup(ctx context.Context, username, email, fullname, password string) (*AuthResult, error) {
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	user, err := directory.CreateUser(ctx, s.admin, username, email, fullname, "")
	if err != nil {
		return nil, fmt.Errorf("service/auth: creating catalog user %s: %w", username, err)
	}

	account := &model.Account{
		Username:     username,
		PasswordHash: hash,
		CatalogID:    user.ID(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("service/auth: storing account %s: %w", username, err)
	}

	s.logger.Info("account registered",
		slog.String("accountID", account.ID),
		slog.String("username", username),
		slog.String("catalogID", account.CatalogID),
	)

	token, err := s.tokens.Generate(account.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for %s: %w", account.ID, err)
	}

	return &AuthResult{Account: account, Token: token}, nil
}

// Login verifies the password and issues a session token. An unknown
// username and a wrong password both come back as ErrForbidden with the
// same message, so the response does not reveal which half was wrong.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Forbidden("invalid credentials")
		}
		return nil, fmt.Errorf("service/auth: looking up account %s: %w", username, err)
	}

	if err := s.passwords.Verify(account.PasswordHash, password); err != nil {
		return nil, apperror.Forbidden("invalid credentials")
	}

	token, err := s.tokens.Generate(account.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for %s: %w", account.ID, err)
	}

	s.logger.Info("account logged in", slog.String("accountID", account.ID))

	return &AuthResult{Account: account, Token: token}, nil
}

// AccountByID returns the local account record for an authenticated
// session.
func (s *AuthService) AccountByID(ctx context.Context, id string) (*model.Account, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: account ID must not be empty")
	}
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching account %s: %w", id, err)
	}
	return account, nil
}

// CatalogUser resolves an account to its live catalog user, through which
// all profile and portfolio operations run.
func (s *AuthService) CatalogUser(ctx context.Context, account *model.Account) (*directory.User, error) {
	user, err := directory.LoadUser(ctx, s.admin, account.CatalogID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: loading catalog user for account %s: %w", account.ID, err)
	}
	return user, nil
}

// DeleteAccount removes the local account row and soft-deletes the linked
// catalog user.
func (s *AuthService) DeleteAccount(ctx context.Context, account *model.Account) error {
	user, err := s.CatalogUser(ctx, account)
	if err != nil {
		return err
	}
	if err := user.Delete(ctx); err != nil {
		return fmt.Errorf("service/auth: deleting catalog user %s: %w", account.CatalogID, err)
	}
	if err := s.accounts.Delete(ctx, account.ID); err != nil {
		return fmt.Errorf("service/auth: deleting account %s: %w", account.ID, err)
	}

	s.logger.Info("account deleted", slog.String("accountID", account.ID))
	return nil
}
