package mqtt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benmeehan/device-agent/pkg/file"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSelfSigned writes a throwaway certificate and key pair into dir.
func writeSelfSigned(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "device-agent-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600))
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600))
	return certPath, keyPath
}

func TestInitialize_RequiresBroker(t *testing.T) {
	s := NewMqttService(file.NewFileService(), zerolog.Nop())
	assert.Error(t, s.Initialize(ConnectionOptions{ClientID: "x"}))
}

func TestClientOptions_Session(t *testing.T) {
	s := NewMqttService(file.NewFileService(), zerolog.Nop())

	persistent, err := s.clientOptions(ConnectionOptions{Broker: "tcp://localhost:1883", ClientID: "device-agent-dev-1"})
	require.NoError(t, err)
	assert.Equal(t, "device-agent-dev-1", persistent.ClientID)
	assert.False(t, persistent.CleanSession)
	assert.True(t, persistent.ResumeSubs)
	assert.Nil(t, persistent.TLSConfig)

	clean, err := s.clientOptions(ConnectionOptions{Broker: "tcp://localhost:1883", ClientID: "x", CleanSession: true})
	require.NoError(t, err)
	assert.True(t, clean.CleanSession)
	assert.False(t, clean.ResumeSubs)
}

func TestBuildTLSConfig_CAOnly(t *testing.T) {
	certPath, _ := writeSelfSigned(t, t.TempDir())
	s := NewMqttService(file.NewFileService(), zerolog.Nop())

	cfg, err := s.buildTLSConfig(ConnectionOptions{CACertificate: certPath})
	require.NoError(t, err)
	assert.NotNil(t, cfg.RootCAs)
	assert.Empty(t, cfg.Certificates)
	assert.False(t, cfg.InsecureSkipVerify)
}

func TestBuildTLSConfig_MutualTLS(t *testing.T) {
	certPath, keyPath := writeSelfSigned(t, t.TempDir())
	s := NewMqttService(file.NewFileService(), zerolog.Nop())

	cfg, err := s.buildTLSConfig(ConnectionOptions{
		CACertificate:     certPath,
		ClientCertificate: certPath,
		ClientKey:         keyPath,
	})
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
}

func TestBuildTLSConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0600))
	certPath, _ := writeSelfSigned(t, dir)
	s := NewMqttService(file.NewFileService(), zerolog.Nop())

	_, err := s.buildTLSConfig(ConnectionOptions{CACertificate: filepath.Join(dir, "missing.pem")})
	assert.ErrorContains(t, err, "failed to read CA certificate")

	_, err = s.buildTLSConfig(ConnectionOptions{CACertificate: garbage})
	assert.ErrorContains(t, err, "failed to append CA certificate")

	_, err = s.buildTLSConfig(ConnectionOptions{
		CACertificate:     certPath,
		ClientCertificate: certPath,
		ClientKey:         garbage,
	})
	assert.ErrorContains(t, err, "failed to load client key pair")
}

func TestDisconnect_WithoutClient(t *testing.T) {
	s := NewMqttService(file.NewFileService(), zerolog.Nop())
	assert.NotPanics(t, func() { s.Disconnect(250) })
}
