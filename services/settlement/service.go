package settlement

import (
	"context"
	"errors"
	"fmt"

	"offerwall/pkg/errutil"
	"offerwall/pkg/logger"
	"offerwall/services/attempt"
	"offerwall/services/ledger"
	"offerwall/services/offer"
	"offerwall/services/user"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrUnknownStatus = errors.New("unknown completion status")

// Engine is the single code path that credits a user for an offer. The
// attempt transition and the ledger credit share one transaction, and the
// transition is a conditional update, so a completion is paid at most once
// however many signals arrive.
type Engine struct {
	db      *gorm.DB
	users   *user.Directory
	catalog *offer.Catalog
	tracker *attempt.Tracker
	ledger  *ledger.Service
	tracer  trace.Tracer
}

type EngineParams struct {
	fx.In
	DB      *gorm.DB
	Users   *user.Directory
	Catalog *offer.Catalog
	Tracker *attempt.Tracker
	Ledger  *ledger.Service
}

func NewEngine(p EngineParams) *Engine {
	return &Engine{
		db:      p.DB,
		users:   p.Users,
		catalog: p.Catalog,
		tracker: p.Tracker,
		ledger:  p.Ledger,
		tracer:  otel.Tracer("offerwall/settlement"),
	}
}

func (e *Engine) resolveOffer(ctx context.Context, sig Signal) (*offer.Offer, error) {
	if sig.OfferID > 0 {
		return e.catalog.Get(ctx, sig.OfferID)
	}
	return e.catalog.GetByExternal(ctx, sig.Provider, sig.ExternalOfferID)
}

// Settle applies sig. AlreadySettled is reported through the Result with a
// nil error.
func (e *Engine) Settle(ctx context.Context, sig Signal) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "settlement.Settle", trace.WithAttributes(
		attribute.Int64("user_id", sig.UserID.Int64()),
		attribute.String("source", string(sig.Source)),
		attribute.String("status", string(sig.Status)),
	))
	defer span.End()

	res, err := e.settle(ctx, sig)
	if err != nil {
		var base errutil.BaseError
		if !errors.As(err, &base) {
			err = errutil.Internal("settlement failed", err)
		}
		if errutil.Is(err, errutil.StatusInternal) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "settlement failed")
			logger.Ctx(ctx).Error("settlement failed", zap.Int64("user_id", sig.UserID.Int64()), zap.Error(err))
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("credited", res.Credited),
		attribute.String("reason", string(res.Reason)),
	)
	return res, nil
}

func (e *Engine) settle(ctx context.Context, sig Signal) (*Result, error) {
	switch sig.Status {
	case attempt.StatusCompleted, attempt.StatusInProgress, attempt.StatusFailed:
	default:
		return nil, errutil.BadRequest(fmt.Sprintf("unknown status %q", sig.Status), ErrUnknownStatus)
	}

	if _, err := e.users.Get(ctx, sig.UserID); err != nil {
		return nil, err
	}

	o, err := e.resolveOffer(ctx, sig)
	if err != nil {
		return nil, err
	}

	var res *Result
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := e.loadAttempt(ctx, tx, sig, o)
		if err != nil {
			return err
		}

		if sig.Status == attempt.StatusCompleted {
			res, err = e.complete(ctx, tx, sig, o, a)
		} else {
			res, err = e.progress(ctx, tx, sig, a)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// loadAttempt returns the attempt the signal applies to. Callbacks may be the
// first the platform hears of a (user, offer) pair and create it. Direct
// completion needs the user to have started the offer.
func (e *Engine) loadAttempt(ctx context.Context, tx *gorm.DB, sig Signal, o *offer.Offer) (*attempt.Attempt, error) {
	if sig.Source == SourceCallback {
		return e.tracker.FindOrCreate(ctx, tx, sig.UserID, o.ID, o.UserPayout)
	}

	a, err := e.tracker.Find(ctx, tx, sig.UserID, o.ID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, errutil.NotFound("Offer not found or not started", attempt.ErrAttemptNotFound)
	}
	return a, nil
}

func (e *Engine) complete(ctx context.Context, tx *gorm.DB, sig Signal, o *offer.Offer, a *attempt.Attempt) (*Result, error) {
	next, err := e.tracker.Transition(ctx, tx, a, attempt.StatusCompleted)
	if err != nil {
		if errors.Is(err, attempt.ErrInvalidTransition) && next != nil && next.Status == attempt.StatusCompleted {
			logger.Ctx(ctx).Info("duplicate completion ignored",
				zap.Int64("attempt_id", next.ID.Int64()),
				zap.String("source", string(sig.Source)),
			)
			return &Result{
				Reason:    ReasonAlreadySettled,
				AttemptID: next.ID,
				OfferID:   next.OfferID,
				Status:    next.Status,
				Amount:    next.RewardAmount,
			}, nil
		}
		return nil, err
	}

	if !sig.Amount.IsZero() && !sig.Amount.Equal(next.RewardAmount) {
		logger.Ctx(ctx).Warn("signal amount differs from snapshot, crediting snapshot",
			zap.Int64("attempt_id", next.ID.Int64()),
			zap.String("signal_amount", sig.Amount.String()),
			zap.String("snapshot_amount", next.RewardAmount.StringFixed(2)),
		)
	}

	res := &Result{
		AttemptID: next.ID,
		OfferID:   next.OfferID,
		Status:    next.Status,
		Amount:    next.RewardAmount,
	}

	if !next.RewardAmount.IsPositive() {
		if err := e.ledger.CountTask(ctx, tx, sig.UserID); err != nil {
			return nil, err
		}
		res.Reason = ReasonNoReward
		return res, nil
	}

	earning, u, err := e.ledger.Credit(ctx, tx, ledger.CreditParams{
		UserID:      sig.UserID,
		AttemptID:   &next.ID,
		Amount:      next.RewardAmount,
		Type:        ledger.EarningTaskCompletion,
		Description: fmt.Sprintf("Completed offer: %s", o.Title),
		CountTask:   true,
	})
	if err != nil {
		return nil, err
	}

	res.Credited = true
	res.Reason = ReasonCredited
	res.Balance = u.Balance
	res.EarningID = &earning.ID
	return res, nil
}

// progress handles non-completion signals. A rejected transition is not an
// error here: a late progress ping for a settled attempt is ordinary
// provider traffic.
func (e *Engine) progress(ctx context.Context, tx *gorm.DB, sig Signal, a *attempt.Attempt) (*Result, error) {
	next, err := e.tracker.Transition(ctx, tx, a, sig.Status)
	if err != nil && !errors.Is(err, attempt.ErrInvalidTransition) {
		return nil, err
	}

	res := &Result{
		AttemptID: next.ID,
		OfferID:   next.OfferID,
		Status:    next.Status,
		Amount:    next.RewardAmount,
	}
	switch next.Status {
	case attempt.StatusCompleted:
		res.Reason = ReasonAlreadySettled
	case attempt.StatusFailed:
		res.Reason = ReasonFailed
	default:
		res.Reason = ReasonPending
	}
	return res, nil
}
