package attempt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"offerwall/pkg/db"
	"offerwall/pkg/db/option"
	"offerwall/pkg/errutil"
	"offerwall/pkg/logger"
	"offerwall/pkg/repository"
	"offerwall/services/offer"
	"offerwall/services/user"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrDuplicateAttempt  = errors.New("attempt already exists")
	ErrInvalidTransition = errors.New("invalid attempt transition")
	ErrAttemptNotFound   = errors.New("attempt not found")
)

// Tracker owns the user_offers state machine. Transitions are conditional
// updates so two concurrent completions of one attempt cannot both succeed.
type Tracker struct {
	db       *gorm.DB
	node     *snowflake.Node
	attempts repository.Repository[Attempt]
	catalog  *offer.Catalog
	users    *user.Directory
	now      func() time.Time
}

type TrackerParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Catalog *offer.Catalog
	Users   *user.Directory
}

func NewTracker(p TrackerParams) *Tracker {
	return &Tracker{
		db:       p.DB,
		node:     p.Node,
		attempts: repository.ProvideStore[Attempt](p.DB),
		catalog:  p.Catalog,
		users:    p.Users,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func duplicate(err error) error {
	if err == nil {
		err = ErrDuplicateAttempt
	} else {
		err = fmt.Errorf("%w: %w", ErrDuplicateAttempt, err)
	}
	return errutil.Conflict("You have already started this offer", err)
}

// Start records that the user began the offer, snapshotting its payout.
func (t *Tracker) Start(ctx context.Context, userID, offerID snowflake.ID) (*Attempt, error) {
	if _, err := t.users.Get(ctx, userID); err != nil {
		return nil, err
	}

	o, err := t.catalog.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}

	existing, err := t.attempts.FindOne(ctx, &Attempt{UserID: userID, OfferID: offerID})
	if err != nil {
		return nil, errutil.Internal("failed to load attempt", err)
	}
	if existing != nil {
		return nil, duplicate(nil)
	}

	now := t.now()
	a := &Attempt{
		ID:           t.node.Generate(),
		UserID:       userID,
		OfferID:      offerID,
		Status:       StatusStarted,
		RewardAmount: o.UserPayout,
		StartedAt:    now,
	}
	if err := t.attempts.Create(ctx, a); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, duplicate(err)
		}
		logger.Ctx(ctx).Error("failed to create attempt",
			zap.Int64("user_id", userID.Int64()),
			zap.Int64("offer_id", offerID.Int64()),
			zap.Error(err),
		)
		return nil, errutil.Internal("failed to start offer", err)
	}

	logger.Ctx(ctx).Info("offer started",
		zap.Int64("attempt_id", a.ID.Int64()),
		zap.Int64("user_id", userID.Int64()),
		zap.Int64("offer_id", offerID.Int64()),
	)
	return a, nil
}

// FindOrCreate returns the attempt for (user, offer), creating a started one
// with the given reward when none exists. It runs inside the caller's tx and
// is safe against a concurrent creator: the insert is a no-op on conflict and
// the row is always read back.
func (t *Tracker) FindOrCreate(ctx context.Context, tx *gorm.DB, userID, offerID snowflake.ID, reward decimal.Decimal) (*Attempt, error) {
	candidate := &Attempt{
		ID:           t.node.Generate(),
		UserID:       userID,
		OfferID:      offerID,
		Status:       StatusStarted,
		RewardAmount: reward,
		StartedAt:    t.now(),
	}

	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "offer_id"}},
			DoNothing: true,
		}).
		Create(candidate).Error
	if err != nil {
		return nil, errutil.Internal("failed to create attempt", err)
	}

	a, err := t.attempts.WithTrx(tx).FindOne(ctx, &Attempt{UserID: userID, OfferID: offerID})
	if err != nil {
		return nil, errutil.Internal("failed to load attempt", err)
	}
	if a == nil {
		return nil, errutil.Internal("attempt missing after insert", ErrAttemptNotFound)
	}
	return a, nil
}

// Transition moves the attempt to status to when its current status allows
// it. On rejection the current row is returned together with a Conflict
// wrapping ErrInvalidTransition, and nothing is written.
func (t *Tracker) Transition(ctx context.Context, tx *gorm.DB, a *Attempt, to Status) (*Attempt, error) {
	from, ok := allowedFrom[to]
	if !ok {
		return a, errutil.Conflict(fmt.Sprintf("cannot move attempt to %s", to), ErrInvalidTransition)
	}

	now := t.now()
	updates := map[string]any{
		"status":     string(to),
		"updated_at": now,
	}
	if to == StatusCompleted {
		updates["completed_at"] = now
	}

	res := tx.WithContext(ctx).
		Model(&Attempt{}).
		Where("id = ? AND status IN ?", a.ID, from).
		Updates(updates)
	if res.Error != nil {
		return nil, errutil.Internal("failed to update attempt", res.Error)
	}

	if res.RowsAffected == 0 {
		current, err := t.attempts.WithTrx(tx).FindOne(ctx, &Attempt{ID: a.ID})
		if err != nil {
			return nil, errutil.Internal("failed to load attempt", err)
		}
		if current == nil {
			return nil, errutil.NotFound("Offer not found or not started", ErrAttemptNotFound)
		}
		return current, errutil.Conflict(
			fmt.Sprintf("attempt is %s, cannot move to %s", current.Status, to),
			ErrInvalidTransition,
		)
	}

	next := *a
	next.Status = to
	next.UpdatedAt = now
	if to == StatusCompleted {
		next.CompletedAt = &now
	}
	return &next, nil
}

// Find returns the attempt for (user, offer) inside tx, or nil.
func (t *Tracker) Find(ctx context.Context, tx *gorm.DB, userID, offerID snowflake.ID) (*Attempt, error) {
	a, err := t.attempts.WithTrx(tx).FindOne(ctx, &Attempt{UserID: userID, OfferID: offerID})
	if err != nil {
		return nil, errutil.Internal("failed to load attempt", err)
	}
	return a, nil
}

func (t *Tracker) Get(ctx context.Context, userID, offerID snowflake.ID) (*Attempt, error) {
	if userID <= 0 || offerID <= 0 {
		return nil, errutil.NotFound("Offer not found or not started", ErrAttemptNotFound)
	}

	a, err := t.Find(ctx, nil, userID, offerID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, errutil.NotFound("Offer not found or not started", ErrAttemptNotFound)
	}
	return a, nil
}

// ListByUser returns the user's attempts, newest first, with their offers.
func (t *Tracker) ListByUser(ctx context.Context, userID snowflake.ID, f ListFilter) ([]*Attempt, error) {
	if userID <= 0 {
		return []*Attempt{}, nil
	}

	out, err := t.attempts.Find(ctx, &Attempt{UserID: userID, Status: f.Status},
		option.WithPreload("Offer"),
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list attempts", err)
	}
	if out == nil {
		out = []*Attempt{}
	}
	return out, nil
}
