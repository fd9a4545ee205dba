// Package users is the credential store: principals with a username, a
// role and a bcrypt password hash.
package users

import (
	"context"

	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
)

type Repository interface {
	// Create fills in ID and CreatedAt. A taken username yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	// LockForUpdate holds the principal's row until the surrounding
	// transaction ends. Ledger writes that must not interleave for one
	// principal take it first.
	LockForUpdate(ctx context.Context, id string) error
}
