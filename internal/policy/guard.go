// Package policy implements the access checks performed at the top of every
// operation. Checks always read the caller's stored account fresh, so a role
// change takes effect on the next call with no stale-privilege window.
package policy

import (
	"context"
	"errors"

	"github.com/abarbosa/pontosledger/internal/common"
	"github.com/abarbosa/pontosledger/internal/models"
)

// AccountReader is the slice of the store the guard needs.
type AccountReader interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}

type Guard struct {
	accounts AccountReader
}

func New(accounts AccountReader) *Guard {
	return &Guard{accounts: accounts}
}

// Caller authenticates a self-service operation: the identity must be
// present and its account document must exist.
func (g *Guard) Caller(ctx context.Context, callerID string) (models.User, error) {
	if callerID == "" {
		return models.User{}, common.ErrUnauthenticated
	}
	return g.accounts.GetUser(ctx, callerID)
}

// Admin authenticates an admin-only operation. A caller whose account is
// missing or whose role is not administrator is denied; the check is never
// satisfied from cached state.
func (g *Guard) Admin(ctx context.Context, callerID string) (models.User, error) {
	caller, err := g.Caller(ctx, callerID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return models.User{}, common.ErrPermissionDenied
		}
		return models.User{}, err
	}
	if caller.Role != models.RoleAdministrator {
		return models.User{}, common.ErrPermissionDenied
	}
	return caller, nil
}
