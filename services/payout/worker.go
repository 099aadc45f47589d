package payout

import (
	"context"
	"encoding/json"
	"fmt"

	"offerwall/pkg/errutil"
	"offerwall/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// HandleRequested picks a freshly requested payout up for processing. A
// payout that already moved on is left alone.
func (s *Service) HandleRequested(ctx context.Context, t *asynq.Task) error {
	var p requestedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %w: %w", taskname.PayoutRequested, err, asynq.SkipRetry)
	}

	_, err := s.UpdateStatus(ctx, p.PayoutID, StatusUpdate{Status: StatusProcessing})
	switch {
	case err == nil:
		return nil
	case errutil.Is(err, errutil.StatusNotFound):
		zap.L().Warn("payout task target missing", zap.Int64("payout_id", p.PayoutID.Int64()))
		return nil
	case errutil.Is(err, errutil.StatusConflict):
		zap.L().Info("payout already picked up", zap.Int64("payout_id", p.PayoutID.Int64()))
		return nil
	default:
		return err
	}
}
