package xhttp

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpnhouse/reqinspect/xerror"
)

// writeSelfSigned stores a certificate for 127.0.0.1 and its key in dir.
func writeSelfSigned(t *testing.T, dir string) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "reqinspect test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	keyDer, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile := filepath.Join(dir, "tls.crt")
	keyFile := filepath.Join(dir, "tls.key")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDer}), 0o600))
	return certFile, keyFile
}

func TestServerRunShutdown(t *testing.T) {
	s := New()
	assert.Nil(t, s.Addr())
	require.NoError(t, s.Run("127.0.0.1:0"))
	assert.True(t, s.Running())

	resp, err := http.Get("http://" + s.Addr().String() + "/nowhere")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, s.Shutdown())
	assert.False(t, s.Running())
}

func TestServerRunBusyAddr(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	err = New().Run(lis.Addr().String())
	require.Error(t, err)
	assert.True(t, xerror.IsInternal(err))
}

func TestServerTLS(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t, t.TempDir())
	tlsConfig, err := LoadTLS(certFile, keyFile)
	require.NoError(t, err)

	s := New(WithSSL(tlsConfig), WithDisableHTTPv2())
	require.NoError(t, s.Run("127.0.0.1:0"))
	defer s.Shutdown()

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig:   &tls.Config{InsecureSkipVerify: true},
		ForceAttemptHTTP2: true,
	}}
	resp, err := client.Get("https://" + s.Addr().String() + "/nowhere")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotNil(t, resp.TLS)
	assert.Equal(t, 1, resp.ProtoMajor)
}

func TestLoadTLSMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadTLS(filepath.Join(dir, "tls.crt"), filepath.Join(dir, "tls.key"))
	require.Error(t, err)
	assert.True(t, xerror.IsConfiguration(err))
}

func TestWithPprof(t *testing.T) {
	s := New(WithPprof())

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWithStandardMetrics(t *testing.T) {
	s := New(WithMetrics(nil))
	s.Router().Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s.Router().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.RemoteAddr = "127.0.0.1:9999"
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_request_duration_seconds")
	assert.Contains(t, w.Body.String(), `handler="/ping"`)
}
