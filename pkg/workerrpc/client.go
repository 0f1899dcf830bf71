package workerrpc

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/cuemby/taskrun/pkg/security"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Dial connects to a worker's RPC endpoint. If certDir names a
// directory holding an issued node certificate, the connection is
// secured with mTLS; otherwise it falls back to plaintext, which is
// only appropriate for same-host bridge-network connectivity.
func Dial(addr, certDir string) (*grpc.ClientConn, error) {
	if certDir == "" || !security.CertExists(certDir) {
		return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("load worker rpc client certificate: %w", err)
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("load worker rpc ca certificate: %w", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(caCert)

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	if err != nil {
		return nil, fmt.Errorf("dial worker %s: %w", addr, err)
	}
	return conn, nil
}
