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
	"context"
	"crypto/x509"
	"fmt"
	"net/http"
	"time"

	"github.com/notaryproject/notation-core-go/revocation"
	"github.com/notaryproject/notation-core-go/revocation/purpose"
	"github.com/notaryproject/notation-core-go/revocation/result"
)

// RevocationValidator checks the revocation status of a certificate chain.
// It is satisfied by revocation.Validator.
type RevocationValidator interface {
	ValidateContext(ctx context.Context, opts revocation.ValidateContextOptions) ([]*result.CertRevocationResult, error)
}

// NewRevocationValidator returns an OCSP and CRL based validator for TSA
// certificate chains. httpClient may be nil.
func NewRevocationValidator(httpClient *http.Client) (RevocationValidator, error) {
	return revocation.NewWithOptions(revocation.Options{
		OCSPHTTPClient:   httpClient,
		CertChainPurpose: purpose.Timestamping,
	})
}

// checkRevocation fails unless every certificate in chain is either known
// to be good or cannot be revoked.
func checkRevocation(ctx context.Context, validator RevocationValidator, chain []*x509.Certificate, signedTime time.Time) error {
	results, err := validator.ValidateContext(ctx, revocation.ValidateContextOptions{
		CertChain:            chain,
		AuthenticSigningTime: signedTime,
	})
	if err != nil {
		return fmt.Errorf("failed to check revocation status of the TSA certificate chain: %w", err)
	}
	for i, certResult := range results {
		switch certResult.Result {
		case result.ResultOK, result.ResultNonRevokable:
			continue
		}
		subject := "unknown"
		if i < len(chain) {
			subject = chain[i].Subject.String()
		}
		return fmt.Errorf("revocation status of TSA certificate %q is %s", subject, certResult.Result)
	}
	return nil
}
