package ledger

import (
	"context"
	"errors"
	"time"

	"offerwall/pkg/db/option"
	"offerwall/pkg/db/pagination"
	"offerwall/pkg/errutil"
	"offerwall/pkg/logger"
	"offerwall/pkg/repository"
	"offerwall/services/user"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const verifyBatchSize = 500

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// Service is the only writer of users.balance, users.total_earned and
// users.tasks_completed. Every mutation is a single conditional UPDATE run
// inside the caller's transaction.
type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	earnings repository.Repository[Earning]
	users    repository.Repository[user.User]
	now      func() time.Time
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		earnings: repository.ProvideStore[Earning](p.DB),
		users:    repository.ProvideStore[user.User](p.DB),
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func userNotFound() error {
	return errutil.NotFound("User not found", user.ErrUserNotFound)
}

// CountTask records a completed task that carried no reward.
func (s *Service) CountTask(ctx context.Context, tx *gorm.DB, userID snowflake.ID) error {
	res := tx.WithContext(ctx).
		Model(&user.User{}).
		Where("id = ? AND is_active = ?", userID, true).
		Updates(map[string]any{
			"tasks_completed": gorm.Expr("tasks_completed + ?", 1),
			"updated_at":      s.now(),
		})
	if res.Error != nil {
		return errutil.Internal("failed to count task", res.Error)
	}
	if res.RowsAffected == 0 {
		return userNotFound()
	}
	return nil
}

// Credit adds amount to the user's balance and total earned and appends the
// matching Earning to the user's chain. The user row update comes first so
// the row lock it takes serializes concurrent credits for the same user.
func (s *Service) Credit(ctx context.Context, tx *gorm.DB, p CreditParams) (*Earning, *user.User, error) {
	if !p.Amount.IsPositive() {
		return nil, nil, errutil.ValidationFailed("credit amount must be positive", ErrInvalidAmount)
	}
	if p.Type == "" {
		p.Type = EarningTaskCompletion
	}
	if !p.Type.Valid() {
		return nil, nil, errutil.BadRequest("unknown earning type", nil)
	}

	amount := p.Amount.Round(2)
	tasks := 0
	if p.CountTask {
		tasks = 1
	}

	res := tx.WithContext(ctx).
		Model(&user.User{}).
		Where("id = ? AND is_active = ?", p.UserID, true).
		Updates(map[string]any{
			"balance":         gorm.Expr("balance + ?", amount),
			"total_earned":    gorm.Expr("total_earned + ?", amount),
			"tasks_completed": gorm.Expr("tasks_completed + ?", tasks),
			"updated_at":      s.now(),
		})
	if res.Error != nil {
		return nil, nil, errutil.Internal("failed to credit user", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil, userNotFound()
	}

	last, err := s.earnings.WithTrx(tx).FindOne(ctx, &Earning{UserID: p.UserID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "sequence",
			OrderBy: "desc",
			Allow:   map[string]bool{"sequence": true},
		}),
		option.WithLockingUpdate(),
	)
	if err != nil {
		return nil, nil, errutil.Internal("failed to load last earning", err)
	}

	e := &Earning{
		ID:          s.node.Generate(),
		UserID:      p.UserID,
		Sequence:    1,
		AttemptID:   p.AttemptID,
		Amount:      amount,
		Type:        p.Type,
		Description: p.Description,
		CreatedAt:   s.now(),
	}
	if last != nil {
		e.Sequence = last.Sequence + 1
		e.PreviousHash = last.Hash
	}
	e.Hash = e.GenerateHash()

	if err := s.earnings.WithTrx(tx).Create(ctx, e); err != nil {
		return nil, nil, errutil.Internal("failed to record earning", err)
	}

	u, err := s.users.WithTrx(tx).FindOne(ctx, &user.User{ID: p.UserID})
	if err != nil {
		return nil, nil, errutil.Internal("failed to load user", err)
	}
	if u == nil {
		return nil, nil, userNotFound()
	}

	logger.Ctx(ctx).Info("ledger credited",
		zap.Int64("user_id", p.UserID.Int64()),
		zap.Int64("earning_id", e.ID.Int64()),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("balance", u.Balance.StringFixed(2)),
	)
	return e, u, nil
}

// Debit lowers the balance by amount only if the balance covers it. The
// comparison happens in the UPDATE itself, so two concurrent debits can never
// overdraw. total_earned is untouched.
func (s *Service) Debit(ctx context.Context, tx *gorm.DB, userID snowflake.ID, amount decimal.Decimal) (*user.User, error) {
	if !amount.IsPositive() {
		return nil, errutil.ValidationFailed("debit amount must be positive", ErrInvalidAmount)
	}
	amount = amount.Round(2)

	res := tx.WithContext(ctx).
		Model(&user.User{}).
		Where("id = ? AND is_active = ? AND balance >= ?", userID, true, amount).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": s.now(),
		})
	if res.Error != nil {
		return nil, errutil.Internal("failed to debit user", res.Error)
	}

	u, err := s.users.WithTrx(tx).FindOne(ctx, &user.User{ID: userID})
	if err != nil {
		return nil, errutil.Internal("failed to load user", err)
	}
	if u == nil || !u.IsActive {
		return nil, userNotFound()
	}
	if res.RowsAffected == 0 {
		return nil, errutil.ValidationFailed("Insufficient balance", ErrInsufficientBalance)
	}
	return u, nil
}

// Refund returns a previously debited amount to the balance.
func (s *Service) Refund(ctx context.Context, tx *gorm.DB, userID snowflake.ID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errutil.ValidationFailed("refund amount must be positive", ErrInvalidAmount)
	}

	res := tx.WithContext(ctx).
		Model(&user.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", amount.Round(2)),
			"updated_at": s.now(),
		})
	if res.Error != nil {
		return errutil.Internal("failed to refund user", res.Error)
	}
	if res.RowsAffected == 0 {
		return userNotFound()
	}
	return nil
}

// ListEarnings pages through a user's earnings, newest first.
func (s *Service) ListEarnings(ctx context.Context, userID snowflake.ID, p pagination.Pagination) ([]*Earning, *pagination.PageInfo, error) {
	limit := p.PageLimit()
	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
		option.WithLimit(limit + 1),
	}

	if p.Cursor != "" {
		c, err := pagination.DecodeCursor(p.Cursor)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
		id, err := snowflake.ParseString(c.ID)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "id", Operator: option.LT, Value: id}))
	}

	rows, err := s.earnings.Find(ctx, &Earning{UserID: userID}, opts...)
	if err != nil {
		return nil, nil, errutil.Internal("failed to list earnings", err)
	}

	out, info, err := pagination.Page(rows, limit, func(e *Earning) pagination.Cursor {
		return pagination.Cursor{ID: e.ID.String()}
	})
	if err != nil {
		return nil, nil, errutil.Internal("failed to build page", err)
	}
	return out, info, nil
}

// VerifyChain walks the user's earnings in sequence order, recomputing every
// hash, and checks that their sum matches total_earned.
func (s *Service) VerifyChain(ctx context.Context, userID snowflake.ID) (*ChainReport, error) {
	if userID <= 0 {
		return nil, userNotFound()
	}

	u, err := s.users.FindOne(ctx, &user.User{ID: userID})
	if err != nil {
		return nil, errutil.Internal("failed to load user", err)
	}
	if u == nil {
		return nil, userNotFound()
	}

	report := &ChainReport{
		UserID:      userID,
		ChainValid:  true,
		Sum:         decimal.Zero,
		TotalEarned: u.TotalEarned,
		Balance:     u.Balance,
	}

	var (
		prevHash string
		expected int64 = 1
	)
	for {
		var batch []*Earning
		err := s.db.WithContext(ctx).
			Where("user_id = ? AND sequence >= ?", userID, expected).
			Order("sequence").
			Limit(verifyBatchSize).
			Find(&batch).Error
		if err != nil {
			return nil, errutil.Internal("failed to verify earnings", err)
		}

		for _, e := range batch {
			report.Entries++
			report.Sum = report.Sum.Add(e.Amount)

			if report.ChainValid && (e.Sequence != expected || e.PreviousHash != prevHash || e.GenerateHash() != e.Hash) {
				report.ChainValid = false
				id := e.ID
				report.BrokenAt = &id
			}
			prevHash = e.Hash
			expected = e.Sequence + 1
		}

		if len(batch) < verifyBatchSize {
			break
		}
	}

	report.Balanced = report.Sum.Equal(u.TotalEarned) && u.Balance.LessThanOrEqual(u.TotalEarned)
	if !report.ChainValid || !report.Balanced {
		logger.Ctx(ctx).Warn("ledger reconciliation mismatch",
			zap.Int64("user_id", userID.Int64()),
			zap.Bool("chain_valid", report.ChainValid),
			zap.String("sum", report.Sum.StringFixed(2)),
			zap.String("total_earned", u.TotalEarned.StringFixed(2)),
		)
	}
	return report, nil
}
