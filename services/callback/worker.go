package callback

import (
	"context"
	"encoding/json"
	"fmt"

	"offerwall/pkg/errutil"
	"offerwall/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// HandleReplay is the asynq handler for callback:replay tasks.
func (s *Service) HandleReplay(ctx context.Context, t *asynq.Task) error {
	var p replayPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %w: %w", taskname.CallbackReplay, err, asynq.SkipRetry)
	}

	if err := s.Replay(ctx, p.RecordID); err != nil {
		if errutil.Is(err, errutil.StatusNotFound) {
			zap.L().Warn("callback replay target missing", zap.Int64("callback_id", p.RecordID.Int64()))
			return nil
		}
		return err
	}
	return nil
}
