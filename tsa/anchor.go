// Copyright The Notary Project Authors.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tsa

import (
	"crypto/x509"
	"errors"
	"fmt"

	corex509 "github.com/notaryproject/notation-core-go/x509"
	"github.com/opencontainers/go-digest"
)

// TrustAnchor holds the root certificates that TSA replies must chain to.
type TrustAnchor struct {
	certs []*x509.Certificate
	pool  *x509.CertPool
}

// LoadTrustAnchor reads PEM or DER encoded root certificates from path.
func LoadTrustAnchor(path string) (*TrustAnchor, error) {
	certs, err := corex509.ReadCertificateFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust anchor %s: %w", path, err)
	}
	anchor, err := NewTrustAnchor(certs...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return anchor, nil
}

// NewTrustAnchor returns a TrustAnchor trusting certs.
func NewTrustAnchor(certs ...*x509.Certificate) (*TrustAnchor, error) {
	if len(certs) == 0 {
		return nil, errors.New("trust anchor contains no certificates")
	}
	pool := x509.NewCertPool()
	for _, cert := range certs {
		if cert == nil {
			return nil, errors.New("trust anchor certificate cannot be nil")
		}
		pool.AddCert(cert)
	}
	return &TrustAnchor{certs: certs, pool: pool}, nil
}

// Pool returns the certificates as a pool of roots.
func (a *TrustAnchor) Pool() *x509.CertPool {
	return a.pool
}

// Certificates returns the anchor certificates.
func (a *TrustAnchor) Certificates() []*x509.Certificate {
	return a.certs
}

// Fingerprints returns the SHA-256 digest of each anchor certificate.
func (a *TrustAnchor) Fingerprints() []digest.Digest {
	fingerprints := make([]digest.Digest, 0, len(a.certs))
	for _, cert := range a.certs {
		fingerprints = append(fingerprints, digest.FromBytes(cert.Raw))
	}
	return fingerprints
}
