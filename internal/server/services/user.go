// Package services contains server-side business logic: the credential
// store front (UserService), the rotation engine (SessionService) and the
// ledger sweeper.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/repomanager"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	maxUserNameLength = 64
)

// dummyHash is compared against when the user does not exist so that
// unknown usernames cost the same as wrong passwords.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("sessionkeeper-dummy-password"), bcrypt.DefaultCost)

// UserService registers principals and verifies their credentials.
type UserService struct {
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	bcryptCost  int
}

func NewUserService(tx dbx.Transactor, m repomanager.RepositoryManager) *UserService {
	return &UserService{tx: tx, repomanager: m, bcryptCost: bcrypt.DefaultCost}
}

// Register creates a principal with role models.RoleUser.
func (s *UserService) Register(ctx context.Context, userName, password string) (*models.User, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" || utf8.RuneCountInString(userName) > maxUserNameLength {
		return nil, fmt.Errorf("%w: username must be 1-%d characters", common.ErrorValidation, maxUserNameLength)
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}

	u, err := s.repomanager.Users(s.tx.Conn()).Create(ctx, &models.User{
		UserName:     userName,
		PasswordHash: hash,
		Role:         models.RoleUser,
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return u, nil
}

// VerifyCredentials returns the principal when password matches, and
// common.ErrorUnauthorized for unknown users and wrong passwords alike.
func (s *UserService) VerifyCredentials(ctx context.Context, userName, password string) (*models.User, error) {
	u, err := s.repomanager.Users(s.tx.Conn()).GetUserByLogin(ctx, strings.TrimSpace(userName))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", common.ErrTransientStorage, err)
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, common.ErrorUnauthorized
	}
	return u, nil
}

// GetUser loads a principal by id.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.repomanager.Users(s.tx.Conn()).GetUserByID(ctx, id)
}
