package pool

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io/ioutil"
)

// TLSConfig builds a client TLS configuration from a CA certificate file and
// a client certificate/key pair.
func TLSConfig(caFile, certificateFile, keyFile string) (*tls.Config, error) {
	ca, err := ioutil.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("reading CA file: %w", err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("no certificates parsed from CA file %s", caFile)
	}

	cert, err := tls.LoadX509KeyPair(certificateFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("loading client key pair: %w", err)
	}

	return &tls.Config{RootCAs: roots, Certificates: []tls.Certificate{cert}}, nil
}
