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

// Package tsa talks to RFC 3161 Time-Stamping Authorities over HTTP and
// verifies the replies they return.
package tsa

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/notaryproject/tspclient-go"
	"github.com/notaryproject/tspclient-go/pki"
	"github.com/opencontainers/go-digest"

	gittimestamp "github.com/notaryproject/git-timestamp"
)

// DefaultHash is the message imprint algorithm used when none is configured.
const DefaultHash = crypto.SHA256

// Options configures a Client.
type Options struct {
	// URL is the HTTP endpoint of the TSA.
	URL string

	// HTTPClient sends the requests. A client with a short timeout is used
	// if nil.
	HTTPClient *http.Client

	// TrustAnchor holds the roots replies must chain to. Verify fails
	// without one.
	TrustAnchor *TrustAnchor

	// Hash is the message imprint algorithm. DefaultHash is used if zero.
	Hash crypto.Hash

	// Revocation, when set, checks the revocation status of the TSA
	// certificate chain during Verify.
	Revocation RevocationValidator
}

// Client is a gittimestamp.Authority backed by an RFC 3161 TSA.
type Client struct {
	url         string
	timestamper tspclient.Timestamper
	anchor      *TrustAnchor
	hash        crypto.Hash
	revocation  RevocationValidator
}

// New returns a Client for the TSA at opts.URL.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("TSA URL cannot be empty")
	}
	hash := opts.Hash
	if hash == 0 {
		hash = DefaultHash
	}
	if _, err := algorithmOf(hash); err != nil {
		return nil, err
	}
	timestamper, err := tspclient.NewHTTPTimestamper(opts.HTTPClient, opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid TSA URL %q: %w", opts.URL, err)
	}
	return &Client{
		url:         opts.URL,
		timestamper: timestamper,
		anchor:      opts.TrustAnchor,
		hash:        hash,
		revocation:  opts.Revocation,
	}, nil
}

// ParseHash returns the hash named by a digest algorithm name such as
// "sha256".
func ParseHash(name string) (crypto.Hash, error) {
	switch digest.Algorithm(strings.ToLower(name)) {
	case digest.SHA256:
		return crypto.SHA256, nil
	case digest.SHA384:
		return crypto.SHA384, nil
	case digest.SHA512:
		return crypto.SHA512, nil
	}
	return 0, fmt.Errorf("hash algorithm %q: %w", name, digest.ErrDigestUnsupported)
}

func algorithmOf(hash crypto.Hash) (digest.Algorithm, error) {
	switch hash {
	case crypto.SHA256:
		return digest.SHA256, nil
	case crypto.SHA384:
		return digest.SHA384, nil
	case crypto.SHA512:
		return digest.SHA512, nil
	}
	return "", fmt.Errorf("hash algorithm %v: %w", hash, digest.ErrDigestUnsupported)
}

// BuildQuery encodes a time-stamp request for message. The request carries
// a random nonce and asks for the TSA certificate.
func (c *Client) BuildQuery(message []byte) ([]byte, error) {
	req, err := tspclient.NewRequest(tspclient.RequestOptions{
		Content:       message,
		HashAlgorithm: c.hash,
	})
	if err != nil {
		return nil, err
	}
	return req.MarshalBinary()
}

// Submit posts query to the TSA and returns the DER encoded reply once it
// is granted and answers query.
//
// A reply that is not granted fails with *tspclient.InvalidResponseError,
// wrapping the *pki.FailureInfoError of the TSA when it names a failure.
func (c *Client) Submit(ctx context.Context, query []byte) ([]byte, error) {
	req := &tspclient.Request{}
	if err := req.UnmarshalBinary(query); err != nil {
		return nil, fmt.Errorf("malformed time-stamp request: %w", err)
	}
	// Timestamp validates the status and the answer to req.
	resp, err := c.timestamper.Timestamp(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("TSA %s: %w", c.url, err)
	}
	return resp.MarshalBinary()
}

// Verify checks that reply is a granted timestamp of message, signed by a
// certificate chaining to the trust anchor.
//
// The chain must be valid now, so a proof becomes invalid once the trust
// anchor expires. The time asserted by the TSA must also fall within the
// validity of every certificate in the chain, and revocation is checked at
// that time.
func (c *Client) Verify(ctx context.Context, reply []byte, message []byte) error {
	if c.anchor == nil {
		return errors.New("no TSA trust anchor configured")
	}
	resp, err := parseResponse(reply)
	if err != nil {
		return err
	}
	if err := checkStatus(resp.Status); err != nil {
		return err
	}
	token, err := resp.SignedToken()
	if err != nil {
		return fmt.Errorf("malformed time-stamp token: %w", err)
	}
	info, err := token.Info()
	if err != nil {
		return fmt.Errorf("malformed time-stamp token info: %w", err)
	}
	timestamp, err := info.Validate(message)
	if err != nil {
		return err
	}
	chain, err := token.Verify(ctx, x509.VerifyOptions{
		Roots: c.anchor.Pool(),
	})
	if err != nil {
		return err
	}
	for _, cert := range chain {
		if timestamp.Value.Before(cert.NotBefore) || timestamp.Value.After(cert.NotAfter) {
			return fmt.Errorf("timestamp %s is outside the validity of certificate %q", timestamp.Value.UTC().Format(time.RFC3339), cert.Subject.String())
		}
	}
	if c.revocation != nil {
		return checkRevocation(ctx, c.revocation, chain, timestamp.Value)
	}
	return nil
}

// ParseReply decodes reply without verifying it.
func (c *Client) ParseReply(reply []byte) (*gittimestamp.Reply, error) {
	resp, err := parseResponse(reply)
	if err != nil {
		return nil, err
	}
	parsed := &gittimestamp.Reply{
		Status: statusName(resp.Status),
	}
	if checkStatus(resp.Status) != nil {
		parsed.Text = renderText(resp.Status, nil)
		return parsed, nil
	}
	token, err := resp.SignedToken()
	if err != nil {
		return nil, fmt.Errorf("malformed time-stamp token: %w", err)
	}
	info, err := token.Info()
	if err != nil {
		return nil, fmt.Errorf("malformed time-stamp token info: %w", err)
	}
	parsed.SignedTime = info.GenTime.UTC()
	parsed.Accuracy = accuracyOf(info)
	parsed.SerialNumber = fmt.Sprintf("%#x", info.SerialNumber)
	parsed.Policy = info.Policy.String()
	parsed.MessageImprint = imprintOf(info)
	parsed.Authority = generalName(info.TSA.Bytes)
	parsed.Text = renderText(resp.Status, info)
	return parsed, nil
}

func parseResponse(reply []byte) (*tspclient.Response, error) {
	if len(reply) == 0 {
		return nil, errors.New("empty time-stamp reply")
	}
	resp := &tspclient.Response{}
	if err := resp.UnmarshalBinary(reply); err != nil {
		return nil, fmt.Errorf("malformed time-stamp reply: %w", err)
	}
	return resp, nil
}

// RejectedError is returned by Verify for a stored reply in which the TSA
// did not grant the timestamp.
type RejectedError struct {
	Status      string
	Text        []string
	FailureInfo []string
}

func (e RejectedError) Error() string {
	msg := "TSA did not grant the timestamp: " + e.Status
	if len(e.Text) > 0 {
		msg += " " + strings.Join(e.Text, "; ")
	}
	if len(e.FailureInfo) > 0 {
		msg += " (" + strings.Join(e.FailureInfo, ", ") + ")"
	}
	return msg
}

func checkStatus(status pki.StatusInfo) error {
	switch int(status.Status) {
	case int(pki.StatusGranted), int(pki.StatusGrantedWithMods):
		return nil
	}
	return RejectedError{
		Status:      statusName(status),
		Text:        status.StatusString,
		FailureInfo: failureNames(status),
	}
}
