package transport

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// newTLSConfig builds the client TLS configuration for host.
func newTLSConfig(o *Options, host string) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName:         host,
		RootCAs:            Global().RootCAs,
		ClientSessionCache: tls.NewLRUClientSessionCache(0),
	}

	switch {
	case !o.SSLVerifyPeer:
		cfg.InsecureSkipVerify = true
	case !o.SSLVerifyHost:
		// Chain is still verified, the name is not.
		cfg.InsecureSkipVerify = true
		cfg.VerifyConnection = func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return errors.New("tls: server sent no certificate")
			}
			opts := x509.VerifyOptions{
				Roots:         cfg.RootCAs,
				Intermediates: x509.NewCertPool(),
			}
			for _, c := range cs.PeerCertificates[1:] {
				opts.Intermediates.AddCert(c)
			}
			_, err := cs.PeerCertificates[0].Verify(opts)
			return err
		}
	}

	if o.SSLCert != "" {
		cert, err := loadKeyPair(o.SSLCert, o.SSLKey, o.KeyPasswd)
		if err != nil {
			return nil, newError(SSLCertProblem, err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// loadKeyPair reads a PEM certificate and key. The key may live in the
// certificate file and may be encrypted with passwd.
func loadKeyPair(certFile, keyFile, passwd string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("reading client certificate: %w", err)
	}
	keyPEM := certPEM
	if keyFile != "" {
		keyPEM, err = os.ReadFile(keyFile)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("reading client key: %w", err)
		}
	}

	if passwd != "" {
		keyPEM, err = decryptKey(keyPEM, passwd)
		if err != nil {
			return tls.Certificate{}, err
		}
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

func decryptKey(data []byte, passwd string) ([]byte, error) {
	var out []byte
	for {
		block, rest := pem.Decode(data)
		if block == nil {
			break
		}
		data = rest
		//nolint:staticcheck
		if x509.IsEncryptedPEMBlock(block) {
			der, err := x509.DecryptPEMBlock(block, []byte(passwd))
			if err != nil {
				return nil, fmt.Errorf("decrypting client key: %w", err)
			}
			block = &pem.Block{Type: block.Type, Bytes: der}
		}
		out = append(out, pem.EncodeToMemory(block)...)
	}
	if len(out) == 0 {
		return nil, errors.New("no PEM data in client key")
	}
	return out, nil
}
