package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"offerwall/pkg/errutil"
	"offerwall/pkg/middleware"
	"offerwall/services/attempt"
	"offerwall/services/ledger"
	"offerwall/services/offer"
	"offerwall/services/testutil"
	"offerwall/services/user"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testJWTSecret = "test-secret-0123456789abcdefghijkl"

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	db      *gorm.DB
	engine  *Engine
	tracker *attempt.Tracker
	catalog *offer.Catalog
	user    *user.User
	offer   *offer.Offer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db := testutil.NewTestDB(t, &user.User{}, &offer.Offer{}, &attempt.Attempt{}, &ledger.Earning{})
	node := testutil.NewNode(t)

	users := user.NewDirectory(user.DirectoryParams{DB: db, Node: node})
	catalog := offer.NewCatalog(offer.CatalogParams{DB: db, Node: node})
	tracker := attempt.NewTracker(attempt.TrackerParams{DB: db, Node: node, Catalog: catalog, Users: users})
	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})

	u, err := users.Create(ctx, user.NewUser{Username: "alice", Email: "alice@example.com"})
	require.NoError(t, err)

	o, _, err := catalog.Upsert(ctx, offer.UpsertParams{
		Provider: "lootably", ExternalOfferID: "LOOT_APP_001", Title: "Install App", Category: "app",
		RewardAmount: dec("3.00"), UserPayout: dec("1.50"),
	})
	require.NoError(t, err)

	return &fixture{
		db: db,
		engine: NewEngine(EngineParams{
			DB: db, Users: users, Catalog: catalog, Tracker: tracker, Ledger: ledgerSvc,
		}),
		tracker: tracker,
		catalog: catalog,
		user:    u,
		offer:   o,
	}
}

func (f *fixture) callback(status attempt.Status, amount string) Signal {
	return Signal{
		UserID:          f.user.ID,
		Provider:        "lootably",
		ExternalOfferID: "LOOT_APP_001",
		Status:          status,
		Amount:          dec(amount),
		Source:          SourceCallback,
	}
}

func (f *fixture) reload(t *testing.T) *user.User {
	t.Helper()
	var u user.User
	require.NoError(t, f.db.First(&u, "id = ?", f.user.ID).Error)
	return &u
}

func (f *fixture) earnings(t *testing.T) []ledger.Earning {
	t.Helper()
	var out []ledger.Earning
	require.NoError(t, f.db.Find(&out).Error)
	return out
}

func TestCallbackCompletionCreditsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.tracker.Start(ctx, f.user.ID, f.offer.ID)
	require.NoError(t, err)

	res, err := f.engine.Settle(ctx, f.callback(attempt.StatusCompleted, "1.50"))
	require.NoError(t, err)
	require.True(t, res.Credited)
	require.Equal(t, ReasonCredited, res.Reason)
	require.Equal(t, "1.50", res.Amount.StringFixed(2))
	require.Equal(t, "1.50", res.Balance.StringFixed(2))

	again, err := f.engine.Settle(ctx, f.callback(attempt.StatusCompleted, "1.50"))
	require.NoError(t, err)
	require.False(t, again.Credited)
	require.Equal(t, ReasonAlreadySettled, again.Reason)

	u := f.reload(t)
	require.Equal(t, "1.50", u.Balance.StringFixed(2))
	require.Equal(t, "1.50", u.TotalEarned.StringFixed(2))
	require.EqualValues(t, 1, u.TasksCompleted)

	earnings := f.earnings(t)
	require.Len(t, earnings, 1)
	require.Equal(t, "1.50", earnings[0].Amount.StringFixed(2))
	require.NotNil(t, earnings[0].AttemptID)

	a, err := f.tracker.Get(ctx, f.user.ID, f.offer.ID)
	require.NoError(t, err)
	require.Equal(t, attempt.StatusCompleted, a.Status)
	require.NotNil(t, a.CompletedAt)
}

func TestCallbackCreatesAttemptWhenNotStarted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.engine.Settle(ctx, f.callback(attempt.StatusCompleted, "1.50"))
	require.NoError(t, err)
	require.True(t, res.Credited)

	a, err := f.tracker.Get(ctx, f.user.ID, f.offer.ID)
	require.NoError(t, err)
	require.Equal(t, res.AttemptID, a.ID)
	require.Equal(t, "1.50", a.RewardAmount.StringFixed(2))
}

func TestConcurrentSignalsCreditOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.tracker.Start(ctx, f.user.ID, f.offer.ID)
	require.NoError(t, err)

	signals := []Signal{
		{UserID: f.user.ID, OfferID: f.offer.ID, Status: attempt.StatusCompleted, Source: SourceDirect},
	}
	for i := 0; i < 9; i++ {
		signals = append(signals, f.callback(attempt.StatusCompleted, "1.50"))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*Result
	)
	for _, sig := range signals {
		wg.Add(1)
		go func(sig Signal) {
			defer wg.Done()
			res, err := f.engine.Settle(ctx, sig)
			if assert.NoError(t, err) {
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}(sig)
	}
	wg.Wait()

	credited := 0
	for _, r := range results {
		if r.Credited {
			credited++
		} else {
			require.Equal(t, ReasonAlreadySettled, r.Reason)
		}
	}
	require.Equal(t, 1, credited)
	require.Len(t, f.earnings(t), 1)

	u := f.reload(t)
	require.Equal(t, "1.50", u.TotalEarned.StringFixed(2))
	require.True(t, u.Balance.LessThanOrEqual(u.TotalEarned))
}

func TestSignalAmountIsAdvisory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.tracker.Start(ctx, f.user.ID, f.offer.ID)
	require.NoError(t, err)

	res, err := f.engine.Settle(ctx, f.callback(attempt.StatusCompleted, "100.00"))
	require.NoError(t, err)
	require.True(t, res.Credited)
	require.Equal(t, "1.50", res.Amount.StringFixed(2))
	require.Equal(t, "1.50", f.reload(t).Balance.StringFixed(2))
}

func TestSnapshotSurvivesCatalogChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.tracker.Start(ctx, f.user.ID, f.offer.ID)
	require.NoError(t, err)

	_, _, err = f.catalog.Upsert(ctx, offer.UpsertParams{
		Provider: "lootably", ExternalOfferID: "LOOT_APP_001", Title: "Install App", Category: "app",
		RewardAmount: dec("10.00"), UserPayout: dec("5.00"),
	})
	require.NoError(t, err)

	res, err := f.engine.Settle(ctx, Signal{UserID: f.user.ID, OfferID: f.offer.ID, Status: attempt.StatusCompleted, Source: SourceDirect})
	require.NoError(t, err)
	require.Equal(t, "1.50", res.Amount.StringFixed(2))
}

func TestProgressSignals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.engine.Settle(ctx, f.callback(attempt.StatusInProgress, "0"))
	require.NoError(t, err)
	require.False(t, res.Credited)
	require.Equal(t, ReasonPending, res.Reason)
	require.Equal(t, attempt.StatusInProgress, res.Status)

	res, err = f.engine.Settle(ctx, f.callback(attempt.StatusCompleted, "1.50"))
	require.NoError(t, err)
	require.True(t, res.Credited)

	late, err := f.engine.Settle(ctx, f.callback(attempt.StatusInProgress, "0"))
	require.NoError(t, err)
	require.False(t, late.Credited)
	require.Equal(t, ReasonAlreadySettled, late.Reason)
	require.Equal(t, attempt.StatusCompleted, late.Status)

	require.Equal(t, "1.50", f.reload(t).Balance.StringFixed(2))
}

func TestFailedAttemptCannotComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.engine.Settle(ctx, f.callback(attempt.StatusFailed, "0"))
	require.NoError(t, err)
	require.Equal(t, ReasonFailed, res.Reason)

	_, err = f.engine.Settle(ctx, f.callback(attempt.StatusCompleted, "1.50"))
	require.ErrorIs(t, err, attempt.ErrInvalidTransition)
	require.True(t, errutil.Is(err, errutil.StatusConflict))
	require.True(t, f.reload(t).Balance.IsZero())
}

func TestDirectCompletionRequiresStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.Settle(ctx, Signal{UserID: f.user.ID, OfferID: f.offer.ID, Status: attempt.StatusCompleted, Source: SourceDirect})
	require.ErrorIs(t, err, attempt.ErrAttemptNotFound)
	require.Equal(t, "Offer not found or not started", errutil.MessageOf(err, ""))
	require.Empty(t, f.earnings(t))
}

func TestUnknownOfferAndUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sig := f.callback(attempt.StatusCompleted, "1.50")
	sig.ExternalOfferID = "NOPE"
	_, err := f.engine.Settle(ctx, sig)
	require.ErrorIs(t, err, offer.ErrOfferNotFound)
	require.Equal(t, "Offer not found", errutil.MessageOf(err, ""))

	sig = f.callback(attempt.StatusCompleted, "1.50")
	sig.UserID = 99
	_, err = f.engine.Settle(ctx, sig)
	require.ErrorIs(t, err, user.ErrUserNotFound)

	sig = f.callback("paused", "1.50")
	_, err = f.engine.Settle(ctx, sig)
	require.ErrorIs(t, err, ErrUnknownStatus)
}

func TestRollbackLeavesAttemptOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.tracker.Start(ctx, f.user.ID, f.offer.ID)
	require.NoError(t, err)

	require.NoError(t, f.db.Migrator().DropTable(&ledger.Earning{}))

	_, err = f.engine.Settle(ctx, Signal{UserID: f.user.ID, OfferID: f.offer.ID, Status: attempt.StatusCompleted, Source: SourceDirect})
	require.True(t, errutil.Is(err, errutil.StatusInternal))

	a, err := f.tracker.Get(ctx, f.user.ID, f.offer.ID)
	require.NoError(t, err)
	require.Equal(t, attempt.StatusStarted, a.Status)
	require.Nil(t, a.CompletedAt)

	u := f.reload(t)
	require.True(t, u.Balance.IsZero())
	require.Zero(t, u.TasksCompleted)
}

func TestCompleteHandler(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.tracker.Start(ctx, f.user.ID, f.offer.ID)
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(middleware.Error())
	engine.POST("/offers/:id/complete", middleware.Auth(testJWTSecret, ""), NewHandler(f.engine).Complete)

	token, err := middleware.SignToken(testJWTSecret, "", f.user.ID, time.Hour)
	require.NoError(t, err)

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/offers/"+f.offer.ID.String()+"/complete", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		return rec
	}

	rec := do()
	require.Equal(t, http.StatusOK, rec.Code)

	var body completeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Offer completed! You earned $1.50", body.Message)
	require.Equal(t, "1.50", body.Amount.StringFixed(2))
	require.Equal(t, "1.50", body.Balance.StringFixed(2))

	rec = do()
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Len(t, f.earnings(t), 1)
}

func TestZeroRewardCompletionCountsTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	free, _, err := f.catalog.Upsert(ctx, offer.UpsertParams{
		Provider: "lootably", ExternalOfferID: "LOOT_FREE_001", Title: "Free Trial", Category: "trial",
		RewardAmount: dec("0.00"), UserPayout: dec("0.00"),
	})
	require.NoError(t, err)

	_, err = f.tracker.Start(ctx, f.user.ID, free.ID)
	require.NoError(t, err)

	res, err := f.engine.Settle(ctx, Signal{UserID: f.user.ID, OfferID: free.ID, Status: attempt.StatusCompleted, Source: SourceDirect})
	require.NoError(t, err)
	require.Equal(t, ReasonNoReward, res.Reason)
	require.False(t, res.Credited)

	u := f.reload(t)
	require.EqualValues(t, 1, u.TasksCompleted)
	require.True(t, u.Balance.IsZero())
	require.Empty(t, f.earnings(t))

	res, err = f.engine.Settle(ctx, Signal{UserID: f.user.ID, OfferID: free.ID, Status: attempt.StatusCompleted, Source: SourceDirect})
	require.NoError(t, err)
	require.Equal(t, ReasonAlreadySettled, res.Reason)
	require.EqualValues(t, 1, f.reload(t).TasksCompleted)
}
