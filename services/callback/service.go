package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"offerwall/pkg/config"
	"offerwall/pkg/db/option"
	"offerwall/pkg/errutil"
	"offerwall/pkg/logger"
	"offerwall/pkg/repository"
	"offerwall/pkg/task"
	"offerwall/pkg/taskname"
	"offerwall/services/settlement"
	"offerwall/services/user"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	msgUnknownProvider  = "Unknown provider"
	msgProcessingFailed = "Processing failed"
	replayMaxRetry      = 5
)

var ErrUnknownProvider = errors.New("unknown provider")

// Service turns provider postbacks into settlement signals. It never returns
// an error to the transport: every outcome is folded into the provider's
// acknowledgement string.
type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	records  repository.Repository[Record]
	users    *user.Directory
	engine   *settlement.Engine
	enqueuer task.Enqueuer
	adapters map[string]Adapter
	tracer   trace.Tracer
	now      func() time.Time
}

type ServiceParams struct {
	fx.In
	Config   *config.Config
	DB       *gorm.DB
	Node     *snowflake.Node
	Users    *user.Directory
	Engine   *settlement.Engine
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		records:  repository.ProvideStore[Record](p.DB),
		users:    p.Users,
		engine:   p.Engine,
		enqueuer: p.Enqueuer,
		adapters: map[string]Adapter{
			ProviderLootably: NewLootably(p.Config.Providers.Lootably.PostbackSecret),
		},
		tracer: otel.Tracer("offerwall/callback"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func unknownProviderAck() string {
	return "ERROR: " + msgUnknownProvider
}

// Ingest records and settles one postback and returns the literal body the
// provider expects.
func (s *Service) Ingest(ctx context.Context, provider string, q url.Values) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	ctx, span := s.tracer.Start(ctx, "callback.Ingest", trace.WithAttributes(attribute.String("provider", provider)))
	defer span.End()

	payload, err := json.Marshal(q)
	if err != nil {
		payload = []byte("{}")
	}

	rec := &Record{
		ID:        s.node.Generate(),
		Provider:  provider,
		Payload:   datatypes.JSON(payload),
		CreatedAt: s.now(),
	}

	adapter, ok := s.adapters[provider]
	if !ok {
		rec.ExternalUserID = first(q, "user_id", "userID")
		rec.ExternalOfferID = first(q, "offer_id", "offerID")
		rec.Status = first(q, "status")
		rec.clamp()
		if err := s.records.Create(ctx, rec); err != nil {
			logger.Ctx(ctx).Error("failed to store callback", zap.String("provider", provider), zap.Error(err))
			return unknownProviderAck()
		}
		s.finish(ctx, rec, OutcomeRejected, msgUnknownProvider)
		logger.Ctx(ctx).Warn("postback for unknown provider", zap.String("provider", provider))
		return unknownProviderAck()
	}

	pb, parseErr := adapter.Parse(q)
	rec.ExternalUserID = pb.ExternalUserID
	rec.ExternalOfferID = pb.ExternalOfferID
	rec.TransactionID = pb.TransactionID
	rec.Status = pb.RawStatus
	rec.RewardAmount = pb.Amount
	rec.clamp()

	if err := s.records.Create(ctx, rec); err != nil {
		logger.Ctx(ctx).Error("failed to store callback", zap.String("provider", provider), zap.Error(err))
		return adapter.Failure(msgProcessingFailed)
	}

	if parseErr != nil {
		msg := errutil.MessageOf(parseErr, "Invalid postback")
		s.finish(ctx, rec, OutcomeRejected, msg)
		logger.Ctx(ctx).Warn("rejected postback",
			zap.String("provider", provider),
			zap.Int64("callback_id", rec.ID.Int64()),
			zap.Error(parseErr),
		)
		return adapter.Failure(msg)
	}

	ack, internal := s.process(ctx, adapter, rec, pb)
	if internal != nil {
		span.RecordError(internal)
		s.scheduleReplay(ctx, rec.ID)
	}
	return ack
}

// process settles a parsed postback for a stored record. On an internal
// error the record stays unprocessed and the error is returned so the caller
// can retry later.
func (s *Service) process(ctx context.Context, adapter Adapter, rec *Record, pb *Postback) (string, error) {
	u, err := s.users.ResolveExternal(ctx, pb.ExternalUserID)
	if err != nil {
		return s.fail(ctx, adapter, rec, err)
	}
	rec.UserID = &u.ID

	res, err := s.engine.Settle(ctx, settlement.Signal{
		UserID:          u.ID,
		Provider:        adapter.Name(),
		ExternalOfferID: pb.ExternalOfferID,
		Status:          pb.Status,
		Amount:          pb.Amount,
		Source:          settlement.SourceCallback,
	})
	if err != nil {
		return s.fail(ctx, adapter, rec, err)
	}

	s.finish(ctx, rec, Outcome(res.Reason), "")
	logger.Ctx(ctx).Info("postback settled",
		zap.String("provider", adapter.Name()),
		zap.Int64("callback_id", rec.ID.Int64()),
		zap.Int64("user_id", u.ID.Int64()),
		zap.Bool("credited", res.Credited),
		zap.String("reason", string(res.Reason)),
	)
	return adapter.Success(), nil
}

func (s *Service) fail(ctx context.Context, adapter Adapter, rec *Record, err error) (string, error) {
	if errutil.Is(err, errutil.StatusInternal) {
		s.markAttempt(ctx, rec, err)
		logger.Ctx(ctx).Error("postback processing failed",
			zap.String("provider", adapter.Name()),
			zap.Int64("callback_id", rec.ID.Int64()),
			zap.Error(err),
		)
		return adapter.Failure(msgProcessingFailed), err
	}

	msg := errutil.MessageOf(err, msgProcessingFailed)
	s.finish(ctx, rec, OutcomeRejected, msg)
	logger.Ctx(ctx).Warn("postback rejected",
		zap.String("provider", adapter.Name()),
		zap.Int64("callback_id", rec.ID.Int64()),
		zap.String("reason", msg),
	)
	return adapter.Failure(msg), nil
}

// finish marks the record handled. A failure here is logged only: the ledger
// outcome is already committed and replaying is idempotent.
func (s *Service) finish(ctx context.Context, rec *Record, outcome Outcome, msg string) {
	now := s.now()
	fields := map[string]any{
		"processed":    true,
		"processed_at": now,
		"outcome":      string(outcome),
		"error":        truncate(msg, 255),
		"attempts":     gorm.Expr("attempts + ?", 1),
	}
	if rec.UserID != nil {
		fields["user_id"] = *rec.UserID
	}

	if err := s.records.Update(ctx, rec.ID, fields); err != nil {
		logger.Ctx(ctx).Error("failed to mark callback processed", zap.Int64("callback_id", rec.ID.Int64()), zap.Error(err))
		return
	}

	rec.Processed = true
	rec.ProcessedAt = &now
	rec.Outcome = outcome
	rec.Error = msg
	rec.Attempts++
}

func (s *Service) markAttempt(ctx context.Context, rec *Record, cause error) {
	fields := map[string]any{
		"error":    truncate(cause.Error(), 255),
		"attempts": gorm.Expr("attempts + ?", 1),
	}
	if rec.UserID != nil {
		fields["user_id"] = *rec.UserID
	}
	if err := s.records.Update(ctx, rec.ID, fields); err != nil {
		logger.Ctx(ctx).Error("failed to update callback", zap.Int64("callback_id", rec.ID.Int64()), zap.Error(err))
		return
	}
	rec.Attempts++
}

// truncate cuts s to n characters. Invalid UTF-8 is replaced first since
// Postgres refuses it in text columns.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func replayTaskID(id snowflake.ID) string {
	return fmt.Sprintf("%s:%s", taskname.CallbackReplay, id)
}

func (s *Service) scheduleReplay(ctx context.Context, id snowflake.ID) {
	if s.enqueuer == nil {
		return
	}

	t, err := task.NewJSONTask(taskname.CallbackReplay, replayPayload{RecordID: id})
	if err != nil {
		logger.Ctx(ctx).Error("failed to build replay task", zap.Error(err))
		return
	}

	_, err = s.enqueuer.Enqueue(ctx, t,
		asynq.TaskID(replayTaskID(id)),
		asynq.Queue(taskname.QueueDefault),
		asynq.MaxRetry(replayMaxRetry),
		asynq.ProcessIn(30*time.Second),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		logger.Ctx(ctx).Error("failed to enqueue callback replay", zap.Int64("callback_id", id.Int64()), zap.Error(err))
	}
}

// Replay re-runs an unprocessed record from its stored payload. Processed
// records are left alone, and settlement itself is idempotent, so running a
// replay twice is harmless.
func (s *Service) Replay(ctx context.Context, id snowflake.ID) error {
	if id <= 0 {
		return errutil.NotFound("callback not found", nil)
	}

	rec, err := s.records.FindOne(ctx, &Record{ID: id})
	if err != nil {
		return errutil.Internal("failed to load callback", err)
	}
	if rec == nil {
		return errutil.NotFound("callback not found", nil)
	}
	if rec.Processed {
		return nil
	}

	adapter, ok := s.adapters[rec.Provider]
	if !ok {
		s.finish(ctx, rec, OutcomeRejected, msgUnknownProvider)
		return nil
	}

	var q url.Values
	if err := json.Unmarshal(rec.Payload, &q); err != nil {
		s.finish(ctx, rec, OutcomeRejected, "Invalid stored payload")
		return nil
	}

	pb, err := adapter.Parse(q)
	if err != nil {
		s.finish(ctx, rec, OutcomeRejected, errutil.MessageOf(err, "Invalid postback"))
		return nil
	}

	_, internal := s.process(ctx, adapter, rec, pb)
	return internal
}

// EnqueueStale schedules a replay for every record left unprocessed for
// longer than olderThan. It returns how many tasks were newly enqueued.
func (s *Service) EnqueueStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if s.enqueuer == nil {
		return 0, nil
	}

	stale, err := s.records.Find(ctx, nil,
		option.ApplyOperator(option.Condition{Field: "processed", Operator: option.EQ, Value: false}),
		option.ApplyOperator(option.Condition{Field: "created_at", Operator: option.LT, Value: s.now().Add(-olderThan)}),
		option.WithSortBy(option.QuerySortBy{}),
		option.WithLimit(limit),
	)
	if err != nil {
		return 0, errutil.Internal("failed to list stale callbacks", err)
	}

	enqueued := 0
	for _, rec := range stale {
		t, err := task.NewJSONTask(taskname.CallbackReplay, replayPayload{RecordID: rec.ID})
		if err != nil {
			return enqueued, err
		}

		_, err = s.enqueuer.Enqueue(ctx, t,
			asynq.TaskID(replayTaskID(rec.ID)),
			asynq.Queue(taskname.QueueDefault),
			asynq.MaxRetry(replayMaxRetry),
		)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			continue
		}
		if err != nil {
			return enqueued, err
		}
		enqueued++
	}

	if enqueued > 0 {
		logger.Ctx(ctx).Info("enqueued callback replays", zap.Int("count", enqueued))
	}
	return enqueued, nil
}
