package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// selfSignedCert builds a minimal self-signed node certificate for
// tests, standing in for the issuance flow a CA would perform.
func selfSignedCert(t *testing.T, commonName string, notAfter time.Time) *tls.Certificate {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName, Organization: []string{"taskrun"}},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	}
}

func TestSaveLoadCertToFile(t *testing.T) {
	certDir := t.TempDir()
	cert := selfSignedCert(t, "test-node", time.Now().Add(90*24*time.Hour))

	require.NoError(t, SaveCertToFile(cert, certDir))
	require.FileExists(t, filepath.Join(certDir, "node.crt"))
	require.FileExists(t, filepath.Join(certDir, "node.key"))

	loaded, err := LoadCertFromFile(certDir)
	require.NoError(t, err)
	require.Equal(t, cert.Leaf.Subject.CommonName, loaded.Leaf.Subject.CommonName)
}

func TestSaveLoadCACertToFile(t *testing.T) {
	certDir := t.TempDir()
	ca := selfSignedCert(t, "taskrun-root-ca", time.Now().Add(365*24*time.Hour))

	require.NoError(t, SaveCACertToFile(ca.Certificate[0], certDir))
	require.FileExists(t, filepath.Join(certDir, "ca.crt"))

	loaded, err := LoadCACertFromFile(certDir)
	require.NoError(t, err)
	require.True(t, loaded.Equal(ca.Leaf))
}

func TestCertExists(t *testing.T) {
	certDir := t.TempDir()
	require.False(t, CertExists(certDir))

	certPath := filepath.Join(certDir, "node.crt")
	keyPath := filepath.Join(certDir, "node.key")
	caPath := filepath.Join(certDir, "ca.crt")

	require.NoError(t, os.WriteFile(certPath, []byte("cert"), 0o600))
	require.NoError(t, os.WriteFile(keyPath, []byte("key"), 0o600))
	require.NoError(t, os.WriteFile(caPath, []byte("ca"), 0o600))
	require.True(t, CertExists(certDir))

	require.NoError(t, os.Remove(keyPath))
	require.False(t, CertExists(certDir))
}

func TestCertNeedsRotation(t *testing.T) {
	tests := []struct {
		name     string
		notAfter time.Time
		needsRot bool
	}{
		{"expires in 1 day", time.Now().Add(24 * time.Hour), true},
		{"expires in 29 days", time.Now().Add(29 * 24 * time.Hour), true},
		{"expires in 31 days", time.Now().Add(31 * 24 * time.Hour), false},
		{"expires in 60 days", time.Now().Add(60 * 24 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert := &x509.Certificate{NotAfter: tt.notAfter}
			require.Equal(t, tt.needsRot, CertNeedsRotation(cert))
		})
	}

	require.True(t, CertNeedsRotation(nil))
}

func TestGetCertExpiry(t *testing.T) {
	expected := time.Now().Add(90 * 24 * time.Hour)
	require.True(t, GetCertExpiry(&x509.Certificate{NotAfter: expected}).Equal(expected))
	require.True(t, GetCertExpiry(nil).IsZero())
}

func TestGetCertTimeRemaining(t *testing.T) {
	expected := 45 * 24 * time.Hour
	remaining := GetCertTimeRemaining(&x509.Certificate{NotAfter: time.Now().Add(expected)})
	require.InDelta(t, expected, remaining, float64(time.Second))
	require.Zero(t, GetCertTimeRemaining(nil))
}

func TestValidateCertChain(t *testing.T) {
	ca := selfSignedCert(t, "taskrun-root-ca", time.Now().Add(365*24*time.Hour))

	// A leaf signed directly by the CA key, chaining to ca.Leaf.
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "worker-node-1"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(30 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, leafTemplate, ca.Leaf, &key.PublicKey, ca.PrivateKey)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	require.NoError(t, ValidateCertChain(leaf, ca.Leaf))
	require.Error(t, ValidateCertChain(nil, ca.Leaf))
	require.Error(t, ValidateCertChain(leaf, nil))
}

func TestGetCertInfo(t *testing.T) {
	cert := selfSignedCert(t, "worker-test-node", time.Now().Add(30*24*time.Hour))

	info := GetCertInfo(cert.Leaf)
	require.Equal(t, "worker-test-node", info["subject"])
	require.Equal(t, false, info["is_ca"])

	nilInfo := GetCertInfo(nil)
	require.Contains(t, nilInfo, "error")
}

func TestGetCertDir(t *testing.T) {
	tests := []struct{ nodeType, nodeID string }{
		{"manager", "node1"},
		{"worker", "node2"},
	}
	for _, tt := range tests {
		certDir, err := GetCertDir(tt.nodeType, tt.nodeID)
		require.NoError(t, err)
		require.Equal(t, tt.nodeType+"-"+tt.nodeID, filepath.Base(certDir))
	}
}

func TestGetCLICertDir(t *testing.T) {
	certDir, err := GetCLICertDir()
	require.NoError(t, err)
	require.Equal(t, "cli", filepath.Base(certDir))
}

func TestRemoveCerts(t *testing.T) {
	certDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(certDir, "node.crt"), []byte("cert"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(certDir, "node.key"), []byte("key"), 0o600))

	require.NoError(t, RemoveCerts(certDir))
	_, err := os.Stat(certDir)
	require.True(t, os.IsNotExist(err))
}
