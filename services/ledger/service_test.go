package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"offerwall/pkg/db/pagination"
	"offerwall/pkg/errutil"
	"offerwall/services/testutil"
	"offerwall/services/user"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	service *Service
	user    *user.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &user.User{}, &Earning{})
	node := testutil.NewNode(t)
	users := user.NewDirectory(user.DirectoryParams{DB: db, Node: node})

	u, err := users.Create(context.Background(), user.NewUser{Username: "alice", Email: "alice@example.com"})
	require.NoError(t, err)

	return &fixture{
		db:      db,
		node:    node,
		service: NewService(ServiceParams{DB: db, Node: node}),
		user:    u,
	}
}

func (f *fixture) credit(t *testing.T, amount string) *Earning {
	t.Helper()

	attemptID := f.node.Generate()
	var e *Earning
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		e, _, err = f.service.Credit(context.Background(), tx, CreditParams{
			UserID:    f.user.ID,
			AttemptID: &attemptID,
			Amount:    dec(amount),
			Type:      EarningTaskCompletion,
			CountTask: true,
		})
		return err
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) reload(t *testing.T) *user.User {
	t.Helper()
	var u user.User
	require.NoError(t, f.db.First(&u, "id = ?", f.user.ID).Error)
	return &u
}

func TestCreditUpdatesTotalsAndChain(t *testing.T) {
	f := newFixture(t)

	first := f.credit(t, "1.50")
	second := f.credit(t, "0.75")

	require.EqualValues(t, 1, first.Sequence)
	require.Empty(t, first.PreviousHash)
	require.EqualValues(t, 2, second.Sequence)
	require.Equal(t, first.Hash, second.PreviousHash)

	u := f.reload(t)
	require.Equal(t, "2.25", u.Balance.StringFixed(2))
	require.Equal(t, "2.25", u.TotalEarned.StringFixed(2))
	require.EqualValues(t, 2, u.TasksCompleted)

	report, err := f.service.VerifyChain(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.Equal(t, 2, report.Entries)
	require.True(t, report.ChainValid)
	require.True(t, report.Balanced)
	require.Equal(t, "2.25", report.Sum.StringFixed(2))
}

func TestCreditRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, _, err := f.service.Credit(ctx, tx, CreditParams{UserID: f.user.ID, Amount: decimal.Zero})
		return err
	})
	require.ErrorIs(t, err, ErrInvalidAmount)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, _, err := f.service.Credit(ctx, tx, CreditParams{UserID: 42, Amount: dec("1.00")})
		return err
	})
	require.ErrorIs(t, err, user.ErrUserNotFound)

	require.NoError(t, f.db.Model(&user.User{}).Where("id = ?", f.user.ID).Update("is_active", false).Error)
	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, _, err := f.service.Credit(ctx, tx, CreditParams{UserID: f.user.ID, Amount: dec("1.00")})
		return err
	})
	require.ErrorIs(t, err, user.ErrUserNotFound)

	var count int64
	require.NoError(t, f.db.Model(&Earning{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCreditRollsBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	boom := errors.New("boom")
	err := f.db.Transaction(func(tx *gorm.DB) error {
		if _, _, err := f.service.Credit(ctx, tx, CreditParams{UserID: f.user.ID, Amount: dec("1.00"), CountTask: true}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	u := f.reload(t)
	require.True(t, u.Balance.IsZero())
	require.True(t, u.TotalEarned.IsZero())
	require.Zero(t, u.TasksCompleted)
}

func TestDebit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.credit(t, "2.00")

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.service.Debit(ctx, tx, f.user.ID, dec("5.00"))
		return err
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))
	require.Equal(t, "2.00", f.reload(t).Balance.StringFixed(2))

	var after *user.User
	err = f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		after, err = f.service.Debit(ctx, tx, f.user.ID, dec("1.50"))
		return err
	})
	require.NoError(t, err)
	require.Equal(t, "0.50", after.Balance.StringFixed(2))
	require.Equal(t, "2.00", after.TotalEarned.StringFixed(2))

	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.service.Debit(ctx, tx, 42, dec("1.00"))
		return err
	})
	require.ErrorIs(t, err, user.ErrUserNotFound)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.credit(t, "1.50")
	f.credit(t, "1.50")

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.db.Transaction(func(tx *gorm.DB) error {
				_, err := f.service.Debit(ctx, tx, f.user.ID, dec("2.00"))
				return err
			})
			if err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, success.Load())
	u := f.reload(t)
	require.Equal(t, "1.00", u.Balance.StringFixed(2))
	require.False(t, u.Balance.IsNegative())
}

func TestRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.credit(t, "2.00")

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		if _, err := f.service.Debit(ctx, tx, f.user.ID, dec("2.00")); err != nil {
			return err
		}
		return f.service.Refund(ctx, tx, f.user.ID, dec("2.00"))
	}))

	u := f.reload(t)
	require.Equal(t, "2.00", u.Balance.StringFixed(2))
	require.True(t, u.Balance.LessThanOrEqual(u.TotalEarned))
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.credit(t, "1.00")
	second := f.credit(t, "0.50")
	f.credit(t, "0.75")

	require.NoError(t, f.db.Model(&Earning{}).Where("id = ?", second.ID).Update("amount", dec("5.00")).Error)

	report, err := f.service.VerifyChain(ctx, f.user.ID)
	require.NoError(t, err)
	require.False(t, report.ChainValid)
	require.NotNil(t, report.BrokenAt)
	require.Equal(t, second.ID, *report.BrokenAt)
	require.False(t, report.Balanced)
}

func TestListEarningsPagination(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, amount := range []string{"1.00", "0.50", "0.75"} {
		f.credit(t, amount)
	}

	page, info, err := f.service.ListEarnings(ctx, f.user.ID, pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.True(t, info.HasMore)
	require.Equal(t, "0.75", page[0].Amount.StringFixed(2))

	rest, info, err := f.service.ListEarnings(ctx, f.user.ID, pagination.Pagination{Limit: 2, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.False(t, info.HasMore)
	require.Equal(t, "1.00", rest[0].Amount.StringFixed(2))

	_, _, err = f.service.ListEarnings(ctx, f.user.ID, pagination.Pagination{Cursor: "not-a-cursor"})
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))
}

func TestCountTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.service.CountTask(ctx, f.db, f.user.ID))

	var u user.User
	require.NoError(t, f.db.First(&u, "id = ?", f.user.ID).Error)
	require.EqualValues(t, 1, u.TasksCompleted)
	require.True(t, u.Balance.IsZero())
	require.True(t, u.TotalEarned.IsZero())

	err := f.service.CountTask(ctx, f.db, f.node.Generate())
	require.ErrorIs(t, err, user.ErrUserNotFound)
}
