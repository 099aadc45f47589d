package server

import (
	"net/http"
	"testing"

	"offerwall/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestNewHttpServerPlain(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Addr = "8081"

	srv := NewHttpServer(Params{Config: cfg, Handler: http.NotFoundHandler()})
	require.Equal(t, ":8081", srv.server.Addr)
	require.Nil(t, srv.server.TLSConfig)
}

func TestNewHttpServerTLSWithoutCertificate(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Addr = "8443"
	cfg.TLS.Enable = true
	cfg.TLS.CertPath = t.TempDir() + "/missing.crt"
	cfg.TLS.KeyPath = t.TempDir() + "/missing.key"

	srv := NewHttpServer(Params{Config: cfg, Handler: http.NotFoundHandler()})
	require.NotNil(t, srv.server.TLSConfig)

	_, err := srv.server.TLSConfig.GetCertificate(nil)
	require.Error(t, err)
}
