package user

import (
	"context"
	"errors"
	"strings"

	"offerwall/pkg/db"
	"offerwall/pkg/errutil"
	"offerwall/pkg/logger"
	"offerwall/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

// Directory is the read side of users used by the settlement core. Writes to
// the ledger columns live in the ledger package.
type Directory struct {
	node  *snowflake.Node
	users repository.Repository[User]
}

type DirectoryParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewDirectory(p DirectoryParams) *Directory {
	return &Directory{
		node:  p.Node,
		users: repository.ProvideStore[User](p.DB),
	}
}

func notFound() error {
	return errutil.NotFound("User not found", ErrUserNotFound)
}

// Get returns the active user with the given id.
func (d *Directory) Get(ctx context.Context, id snowflake.ID) (*User, error) {
	if id <= 0 {
		return nil, notFound()
	}

	u, err := d.users.FindOne(ctx, &User{ID: id})
	if err != nil {
		logger.Ctx(ctx).Error("failed to load user", zap.Int64("user_id", id.Int64()), zap.Error(err))
		return nil, errutil.Internal("failed to load user", err)
	}
	if u == nil || !u.IsActive {
		return nil, notFound()
	}
	return u, nil
}

// ResolveExternal maps the user id a provider echoes back in a postback to
// an internal user. Providers are handed the internal id when the offerwall
// is rendered, so anything that does not parse as one is unmapped.
func (d *Directory) ResolveExternal(ctx context.Context, externalUserID string) (*User, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(externalUserID))
	if err != nil || id <= 0 {
		return nil, notFound()
	}
	return d.Get(ctx, id)
}

// Create registers an active user with zeroed ledger totals.
func (d *Directory) Create(ctx context.Context, p NewUser) (*User, error) {
	u := &User{
		ID:            d.node.Generate(),
		Username:      strings.TrimSpace(p.Username),
		Email:         strings.ToLower(strings.TrimSpace(p.Email)),
		PasswordHash:  p.PasswordHash,
		PayoutAddress: p.PayoutAddress,
		Balance:       decimal.Zero,
		TotalEarned:   decimal.Zero,
		IsActive:      true,
	}

	if u.Username == "" || u.Email == "" {
		return nil, errutil.BadRequest("username and email are required", nil)
	}

	if err := d.users.Create(ctx, u); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, errutil.Conflict("username or email already registered", err)
		}
		return nil, errutil.Internal("failed to create user", err)
	}

	return u, nil
}

// UpdatePayoutAddress sets the destination future payouts snapshot.
func (d *Directory) UpdatePayoutAddress(ctx context.Context, id snowflake.ID, address string) (*User, error) {
	u, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	address = strings.TrimSpace(address)
	if err := d.users.Update(ctx, id, map[string]any{"payout_address": address}); err != nil {
		return nil, errutil.Internal("failed to update payout address", err)
	}

	u.PayoutAddress = address
	return u, nil
}
