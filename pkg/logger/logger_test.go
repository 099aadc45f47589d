package logger

import (
	"context"
	"testing"

	"offerwall/pkg/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewReplacesGlobals(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	cfg := &config.Config{AppEnv: "production", AppName: "offerwall"}
	log := New(ConfigParams{Cfg: cfg})

	require.NotNil(t, log)
	require.Same(t, log, zap.L())
}

func TestTraceFieldsWithoutSpan(t *testing.T) {
	fields := TraceFields(context.Background())

	require.Len(t, fields, 2)
	require.Equal(t, "trace_id", fields[0].Key)
	require.Equal(t, "00000000000000000000000000000000", fields[0].String)
	require.NotNil(t, Ctx(context.Background()))
}
