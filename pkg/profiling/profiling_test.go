package profiling

import (
	"testing"

	"offerwall/pkg/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
)

func TestProfilerConfig(t *testing.T) {
	cfg := &config.Config{AppName: "offerwall", AppEnv: "staging", AppVersion: "1.4.2"}
	cfg.Pyroscope.Addr = "http://pyroscope:4040"

	pc := profilerConfig(cfg)
	require.Equal(t, "offerwall", pc.ApplicationName)
	require.Equal(t, "http://pyroscope:4040", pc.ServerAddress)
	require.Equal(t, "1.4.2", pc.Tags["version"])
	require.Equal(t, "staging", pc.Tags["env"])
	require.Len(t, pc.ProfileTypes, 6)
}

func TestStartWithoutAddressIsNoop(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	require.NoError(t, Start(lc, &config.Config{}))
	lc.RequireStart().RequireStop()
}
