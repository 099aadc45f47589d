package payout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"offerwall/pkg/config"
	"offerwall/pkg/db/option"
	"offerwall/pkg/db/pagination"
	"offerwall/pkg/errutil"
	"offerwall/pkg/logger"
	"offerwall/pkg/repository"
	"offerwall/pkg/sequence"
	"offerwall/pkg/task"
	"offerwall/pkg/taskname"
	"offerwall/services/ledger"
	"offerwall/services/user"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrBelowMinimum       = errors.New("amount below minimum payout")
	ErrInvalidMethod      = errors.New("invalid payout method")
	ErrMissingDestination = errors.New("missing payout destination")
	ErrPayoutNotFound     = errors.New("payout not found")
	ErrInvalidTransition  = errors.New("invalid payout transition")
)

var hundred = decimal.NewFromInt(100)

// Service creates payout requests. It debits the balance and records the
// pending payout in one transaction. Moving money is left to whatever
// consumes payout:requested.
type Service struct {
	db            *gorm.DB
	node          *snowflake.Node
	payouts       repository.Repository[Payout]
	users         *user.Directory
	ledger        *ledger.Service
	codes         sequence.Generator
	enqueuer      task.Enqueuer
	minimum       decimal.Decimal
	feePercentage decimal.Decimal
	defaultMethod Method
	tracer        trace.Tracer
	now           func() time.Time
}

type ServiceParams struct {
	fx.In
	Config   *config.Config
	DB       *gorm.DB
	Node     *snowflake.Node
	Users    *user.Directory
	Ledger   *ledger.Service
	Codes    sequence.Generator `optional:"true"`
	Enqueuer task.Enqueuer      `optional:"true"`
}

func NewService(p ServiceParams) (*Service, error) {
	minimum, err := decimal.NewFromString(p.Config.Payout.MinimumAmount)
	if err != nil {
		return nil, fmt.Errorf("parse PAYOUT.MINIMUM_AMOUNT %q: %w", p.Config.Payout.MinimumAmount, err)
	}

	method := Method(p.Config.Payout.DefaultMethod)
	if !method.Valid() {
		method = MethodPayPal
	}

	return &Service{
		db:            p.DB,
		node:          p.Node,
		payouts:       repository.ProvideStore[Payout](p.DB),
		users:         p.Users,
		ledger:        p.Ledger,
		codes:         p.Codes,
		enqueuer:      p.Enqueuer,
		minimum:       minimum,
		feePercentage: decimal.NewFromFloat(p.Config.Payout.FeePercentage),
		defaultMethod: method,
		tracer:        otel.Tracer("offerwall/payout"),
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Service) fee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.feePercentage).Div(hundred).Round(2)
}

func (s *Service) nextCode(ctx context.Context) string {
	if s.codes != nil {
		code, err := s.codes.NextPayoutCode(ctx)
		if err == nil {
			return code
		}
		logger.Ctx(ctx).Warn("payout sequence unavailable, using snowflake code", zap.Error(err))
	}
	return "PO-" + strings.ToUpper(s.node.Generate().Base36())
}

// RequestPayout debits amount from the user's balance into a pending payout.
// The balance check is part of the debit statement, so concurrent requests
// cannot overdraw.
func (s *Service) RequestPayout(ctx context.Context, userID snowflake.ID, req Request) (*Payout, error) {
	ctx, span := s.tracer.Start(ctx, "payout.RequestPayout", trace.WithAttributes(
		attribute.Int64("user_id", userID.Int64()),
		attribute.String("amount", req.Amount.String()),
	))
	defer span.End()

	if req.Amount.LessThan(s.minimum) {
		return nil, errutil.ValidationFailed(
			fmt.Sprintf("Minimum payout amount is $%s", s.minimum.StringFixed(2)),
			ErrBelowMinimum,
		)
	}
	amount := req.Amount.Round(2)

	if req.Method == "" {
		req.Method = s.defaultMethod
	}
	if !req.Method.Valid() {
		return nil, errutil.ValidationFailed("Invalid payout method", ErrInvalidMethod)
	}

	code := s.nextCode(ctx)

	var p *Payout
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := s.ledger.Debit(ctx, tx, userID, amount)
		if err != nil {
			return err
		}

		destination := strings.TrimSpace(req.Destination)
		if destination == "" {
			destination = u.PayoutAddress
		}
		if destination == "" {
			return errutil.ValidationFailed("Payout destination is required", ErrMissingDestination)
		}

		fee := s.fee(amount)
		now := s.now()
		p = &Payout{
			ID:             s.node.Generate(),
			Code:           code,
			UserID:         userID,
			Amount:         amount,
			Fee:            fee,
			NetAmount:      amount.Sub(fee),
			Method:         req.Method,
			Status:         StatusPending,
			Destination:    destination,
			PaymentDetails: datatypes.JSON(fmt.Sprintf(`{"fee_percentage":%q}`, s.feePercentage.String())),
			RequestedAt:    now,
		}
		if err := s.payouts.WithTrx(tx).Create(ctx, p); err != nil {
			return errutil.Internal("failed to create payout", err)
		}
		return nil
	})
	if err != nil {
		var base errutil.BaseError
		if !errors.As(err, &base) {
			err = errutil.Internal("failed to request payout", err)
		}
		if errutil.Is(err, errutil.StatusInternal) {
			span.RecordError(err)
			logger.Ctx(ctx).Error("payout request failed", zap.Int64("user_id", userID.Int64()), zap.Error(err))
		}
		return nil, err
	}

	logger.Ctx(ctx).Info("payout requested",
		zap.Int64("payout_id", p.ID.Int64()),
		zap.String("code", p.Code),
		zap.Int64("user_id", userID.Int64()),
		zap.String("amount", p.Amount.StringFixed(2)),
	)
	s.notifyRequested(ctx, p)
	return p, nil
}

func (s *Service) notifyRequested(ctx context.Context, p *Payout) {
	if s.enqueuer == nil {
		return
	}

	t, err := task.NewJSONTask(taskname.PayoutRequested, requestedPayload{PayoutID: p.ID})
	if err != nil {
		logger.Ctx(ctx).Error("failed to build payout task", zap.Error(err))
		return
	}

	if _, err := s.enqueuer.Enqueue(ctx, t,
		asynq.TaskID(fmt.Sprintf("%s:%s", taskname.PayoutRequested, p.ID)),
		asynq.Queue(taskname.QueueCritical),
	); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		logger.Ctx(ctx).Error("failed to enqueue payout task", zap.Int64("payout_id", p.ID.Int64()), zap.Error(err))
	}
}

// History pages through a user's payouts, newest first.
func (s *Service) History(ctx context.Context, userID snowflake.ID, pg pagination.Pagination) ([]*Payout, *pagination.PageInfo, error) {
	limit := pg.PageLimit()
	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
		option.WithLimit(limit + 1),
	}

	if pg.Cursor != "" {
		c, err := pagination.DecodeCursor(pg.Cursor)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
		id, err := snowflake.ParseString(c.ID)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "id", Operator: option.LT, Value: id}))
	}

	rows, err := s.payouts.Find(ctx, &Payout{UserID: userID}, opts...)
	if err != nil {
		return nil, nil, errutil.Internal("failed to list payouts", err)
	}

	out, info, err := pagination.Page(rows, limit, func(p *Payout) pagination.Cursor {
		return pagination.Cursor{ID: p.ID.String()}
	})
	if err != nil {
		return nil, nil, errutil.Internal("failed to build page", err)
	}
	return out, info, nil
}

// Info reports what the user may request right now.
func (s *Service) Info(ctx context.Context, userID snowflake.ID) (*Info, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &Info{
		Minimum:       s.minimum,
		Balance:       u.Balance,
		CanRequest:    u.Balance.GreaterThanOrEqual(s.minimum),
		FeePercentage: s.feePercentage,
		Methods:       Methods,
	}, nil
}

// Get returns the payout by id.
func (s *Service) Get(ctx context.Context, id snowflake.ID) (*Payout, error) {
	if id <= 0 {
		return nil, errutil.NotFound("Payout not found", ErrPayoutNotFound)
	}

	p, err := s.payouts.FindOne(ctx, &Payout{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to load payout", err)
	}
	if p == nil {
		return nil, errutil.NotFound("Payout not found", ErrPayoutNotFound)
	}
	return p, nil
}

// UpdateStatus moves a payout forward. It is driven by the payment rail:
// pending to processing to completed, or to failed from either open state.
// Failing a payout returns its amount to the user's balance in the same
// transaction.
func (s *Service) UpdateStatus(ctx context.Context, id snowflake.ID, upd StatusUpdate) (*Payout, error) {
	from, ok := allowedFrom[upd.Status]
	if !ok {
		return nil, errutil.BadRequest(fmt.Sprintf("cannot move payout to %s", upd.Status), ErrInvalidTransition)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]any{
			"status":     string(upd.Status),
			"updated_at": s.now(),
		}
		if upd.TransactionID != "" {
			fields["transaction_id"] = upd.TransactionID
		}
		if upd.Notes != "" {
			fields["notes"] = upd.Notes
		}
		if upd.Status == StatusCompleted || upd.Status == StatusFailed {
			fields["processed_at"] = s.now()
		}

		res := tx.WithContext(ctx).
			Model(&Payout{}).
			Where("id = ? AND status IN ?", id, from).
			Updates(fields)
		if res.Error != nil {
			return errutil.Internal("failed to update payout", res.Error)
		}
		if res.RowsAffected == 0 {
			return errutil.Conflict(
				fmt.Sprintf("payout is %s, cannot move to %s", current.Status, upd.Status),
				ErrInvalidTransition,
			)
		}

		if upd.Status == StatusFailed {
			return s.ledger.Refund(ctx, tx, current.UserID, current.Amount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Ctx(ctx).Info("payout status updated",
		zap.Int64("payout_id", id.Int64()),
		zap.String("from", string(current.Status)),
		zap.String("to", string(upd.Status)),
	)
	return s.Get(ctx, id)
}
