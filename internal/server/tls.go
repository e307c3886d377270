package server

import (
	"crypto/tls"
	"fmt"

	"github.com/muurk/fluxusb/internal/logging"
	"go.uber.org/zap"
)

// NewTLSConfig loads the certificate pair served on wss:// links.
func NewTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("server: load bridge certificate %s: %w", certFile, err)
	}
	logging.Debug("Loaded bridge certificate", zap.String("cert", certFile), zap.String("key", keyFile))
	return &tls.Config{
		Certificates:     []tls.Certificate{pair},
		MinVersion:       tls.VersionTLS12,
		VerifyConnection: logTLSHandshake,
	}, nil
}

func logTLSHandshake(cs tls.ConnectionState) error {
	logging.Debug("Bridge TLS handshake",
		zap.String("version", tls.VersionName(cs.Version)),
		zap.String("cipher_suite", tls.CipherSuiteName(cs.CipherSuite)),
		zap.Bool("resumed", cs.DidResume),
	)
	return nil
}

// tlsFields describes cfg for the startup log.
func tlsFields(cfg *tls.Config) []zap.Field {
	return []zap.Field{
		zap.String("min_version", tls.VersionName(cfg.MinVersion)),
		zap.Int("certificates", len(cfg.Certificates)),
		zap.Bool("session_tickets", !cfg.SessionTicketsDisabled),
	}
}
