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
	"crypto"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/notaryproject/notation-core-go/revocation"
	"github.com/notaryproject/notation-core-go/revocation/result"
	"github.com/notaryproject/tspclient-go"
	"github.com/notaryproject/tspclient-go/pki"

	"github.com/notaryproject/git-timestamp/tsa/tsatest"
)

const testRevision = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

type testServer struct {
	tsa    *tsatest.TSA
	server *httptest.Server
	now    time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	tsa, err := tsatest.NewTSA()
	if err != nil {
		t.Fatalf("NewTSA() error = %v", err)
	}
	now := time.Now().UTC().Truncate(time.Second).Add(-time.Minute)
	tsa.NowFunc = func() time.Time {
		return now
	}
	server := httptest.NewServer(tsa)
	t.Cleanup(server.Close)
	return &testServer{tsa: tsa, server: server, now: now}
}

func (s *testServer) client(t *testing.T, opts Options) *Client {
	t.Helper()
	if opts.URL == "" {
		opts.URL = s.server.URL
	}
	if opts.TrustAnchor == nil {
		anchor, err := NewTrustAnchor(s.tsa.Certificate())
		if err != nil {
			t.Fatalf("NewTrustAnchor() error = %v", err)
		}
		opts.TrustAnchor = anchor
	}
	client, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func (s *testServer) timestamp(t *testing.T, client *Client, message string) []byte {
	t.Helper()
	query, err := client.BuildQuery([]byte(message))
	if err != nil {
		t.Fatalf("BuildQuery() error = %v", err)
	}
	reply, err := client.Submit(context.Background(), query)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return reply
}

func TestNew(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("New() expected error for empty URL")
	}
	if _, err := New(Options{URL: "https://tsa.example", Hash: crypto.MD5}); err == nil {
		t.Fatal("New() expected error for MD5")
	}
	client, err := New(Options{URL: "https://tsa.example"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if client.hash != DefaultHash {
		t.Fatalf("hash = %v, want %v", client.hash, DefaultHash)
	}
}

func TestParseHash(t *testing.T) {
	tests := []struct {
		name    string
		want    crypto.Hash
		wantErr bool
	}{
		{name: "sha256", want: crypto.SHA256},
		{name: "SHA384", want: crypto.SHA384},
		{name: "sha512", want: crypto.SHA512},
		{name: "sha1", wantErr: true},
		{name: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHash(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHash() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseHash() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	client, err := New(Options{URL: "https://tsa.example"})
	if err != nil {
		t.Fatal(err)
	}
	query, err := client.BuildQuery([]byte(testRevision))
	if err != nil {
		t.Fatalf("BuildQuery() error = %v", err)
	}
	var req tspclient.Request
	if err := req.UnmarshalBinary(query); err != nil {
		t.Fatalf("Request.UnmarshalBinary() error = %v", err)
	}
	want := sha256.Sum256([]byte(testRevision))
	if string(req.MessageImprint.HashedMessage) != string(want[:]) {
		t.Fatal("message imprint is not the SHA-256 of the revision")
	}
	if !req.CertReq {
		t.Fatal("request does not ask for the TSA certificate")
	}
	if req.Nonce == nil {
		t.Fatal("request carries no nonce")
	}
}

func TestSubmitAndVerify(t *testing.T) {
	s := newTestServer(t)
	client := s.client(t, Options{})
	reply := s.timestamp(t, client, testRevision)

	if err := client.Verify(context.Background(), reply, []byte(testRevision)); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if err := client.Verify(context.Background(), reply, []byte("0000000000000000000000000000000000000000")); err == nil {
		t.Fatal("Verify() accepted a timestamp of another revision")
	}

	parsed, err := client.ParseReply(reply)
	if err != nil {
		t.Fatalf("ParseReply() error = %v", err)
	}
	if parsed.Status != "granted" {
		t.Errorf("Status = %q, want granted", parsed.Status)
	}
	if !parsed.SignedTime.Equal(s.now) {
		t.Errorf("SignedTime = %v, want %v", parsed.SignedTime, s.now)
	}
	if parsed.Accuracy != time.Second {
		t.Errorf("Accuracy = %v, want 1s", parsed.Accuracy)
	}
	sum := sha256.Sum256([]byte(testRevision))
	if !strings.HasPrefix(parsed.MessageImprint, "sha256:") || !strings.Contains(parsed.MessageImprint, hex.EncodeToString(sum[:])) {
		t.Errorf("MessageImprint = %q", parsed.MessageImprint)
	}
	if !strings.Contains(parsed.Authority, "CN=git-timestamp test TSA") {
		t.Errorf("Authority = %q", parsed.Authority)
	}
	for _, want := range []string{
		"Status: granted",
		"Hash Algorithm: sha256",
		"Time stamp: " + s.now.Format("Jan _2 15:04:05 2006") + " GMT",
		"Accuracy: 0x01 seconds, unspecified millis, unspecified micros",
		"Policy OID: 1.3.6.1.4.1.4146.2.3",
	} {
		if !strings.Contains(parsed.Text, want) {
			t.Errorf("Text does not contain %q:\n%s", want, parsed.Text)
		}
	}
}

func TestVerifyUntrusted(t *testing.T) {
	s := newTestServer(t)
	other, err := tsatest.NewTSA()
	if err != nil {
		t.Fatal(err)
	}
	anchor, err := NewTrustAnchor(other.Certificate())
	if err != nil {
		t.Fatal(err)
	}
	client := s.client(t, Options{TrustAnchor: anchor})
	reply := s.timestamp(t, client, testRevision)
	if err := client.Verify(context.Background(), reply, []byte(testRevision)); err == nil {
		t.Fatal("Verify() accepted a reply from an untrusted TSA")
	}
}

func TestVerifyTampered(t *testing.T) {
	s := newTestServer(t)
	client := s.client(t, Options{})
	reply := s.timestamp(t, client, testRevision)

	for _, offset := range []int{len(reply) / 3, len(reply) / 2, len(reply) - 10} {
		tampered := append([]byte(nil), reply...)
		tampered[offset] ^= 0xff
		if err := client.Verify(context.Background(), tampered, []byte(testRevision)); err == nil {
			t.Errorf("Verify() accepted a reply altered at offset %d", offset)
		}
	}
}

func TestVerifyMalformed(t *testing.T) {
	s := newTestServer(t)
	client := s.client(t, Options{})
	for _, reply := range [][]byte{nil, []byte("garbage"), {0x30, 0x03, 0x02, 0x01, 0x00}} {
		if err := client.Verify(context.Background(), reply, []byte(testRevision)); err == nil {
			t.Errorf("Verify(%x) expected error", reply)
		}
	}
	if _, err := client.ParseReply([]byte("garbage")); err == nil {
		t.Error("ParseReply() expected error")
	}
}

func TestVerifyWithoutTrustAnchor(t *testing.T) {
	s := newTestServer(t)
	client := s.client(t, Options{})
	reply := s.timestamp(t, client, testRevision)
	client.anchor = nil
	if err := client.Verify(context.Background(), reply, []byte(testRevision)); err == nil {
		t.Fatal("Verify() expected error without trust anchor")
	}
}

func TestSubmitRejected(t *testing.T) {
	s := newTestServer(t)
	s.tsa.SetReject(true)
	client := s.client(t, Options{})
	query, err := client.BuildQuery([]byte(testRevision))
	if err != nil {
		t.Fatal(err)
	}
	reply, err := client.Submit(context.Background(), query)
	if reply != nil {
		t.Fatalf("Submit() reply = %x, want nil", reply)
	}
	var invalid *tspclient.InvalidResponseError
	if !errors.As(err, &invalid) {
		t.Fatalf("Submit() error = %v, want InvalidResponseError", err)
	}
	var failure *pki.FailureInfoError
	if !errors.As(err, &failure) {
		t.Fatalf("Submit() error = %v, want FailureInfoError", err)
	}
	if !strings.Contains(failure.Error(), "transaction not permitted or supported") {
		t.Fatalf("FailureInfoError = %q", failure.Error())
	}
}

func TestVerifyRejectedReply(t *testing.T) {
	s := newTestServer(t)
	client := s.client(t, Options{})
	query, err := client.BuildQuery([]byte(testRevision))
	if err != nil {
		t.Fatal(err)
	}
	s.tsa.SetReject(true)
	reply, err := s.tsa.Reply(query)
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}

	err = client.Verify(context.Background(), reply, []byte(testRevision))
	var rejected RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("Verify() error = %v, want RejectedError", err)
	}
	if rejected.Status != "rejected" {
		t.Fatalf("RejectedError.Status = %q, want rejected", rejected.Status)
	}
	if len(rejected.Text) != 1 || rejected.Text[0] != "request rejected by test TSA" {
		t.Fatalf("RejectedError.Text = %q", rejected.Text)
	}
	if len(rejected.FailureInfo) != 1 || rejected.FailureInfo[0] != "transaction not permitted or supported" {
		t.Fatalf("RejectedError.FailureInfo = %q", rejected.FailureInfo)
	}

	parsed, err := client.ParseReply(reply)
	if err != nil {
		t.Fatalf("ParseReply() error = %v", err)
	}
	if parsed.Status != "rejected" {
		t.Fatalf("Reply.Status = %q, want rejected", parsed.Status)
	}
}

func TestVerifyExpiredAnchor(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	expired, err := tsatest.NewTSAWithValidity(now.AddDate(-2, 0, 0), now.AddDate(-1, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	// Token issued while the certificate was still valid.
	expired.NowFunc = func() time.Time {
		return now.AddDate(0, -18, 0)
	}
	anchor, err := NewTrustAnchor(expired.Certificate())
	if err != nil {
		t.Fatal(err)
	}
	client, err := New(Options{URL: "https://tsa.example", TrustAnchor: anchor})
	if err != nil {
		t.Fatal(err)
	}
	query, err := client.BuildQuery([]byte(testRevision))
	if err != nil {
		t.Fatal(err)
	}
	reply, err := expired.Reply(query)
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if err := client.Verify(context.Background(), reply, []byte(testRevision)); err == nil {
		t.Fatal("Verify() accepted a reply chaining to an expired trust anchor")
	}
}

func TestVerifyTimestampOutsideValidity(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	issuer, err := tsatest.NewTSAWithValidity(now.Add(-time.Hour), now.AddDate(1, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	// genTime predates the certificate.
	issuer.NowFunc = func() time.Time {
		return now.AddDate(0, 0, -1)
	}
	anchor, err := NewTrustAnchor(issuer.Certificate())
	if err != nil {
		t.Fatal(err)
	}
	client, err := New(Options{URL: "https://tsa.example", TrustAnchor: anchor})
	if err != nil {
		t.Fatal(err)
	}
	query, err := client.BuildQuery([]byte(testRevision))
	if err != nil {
		t.Fatal(err)
	}
	reply, err := issuer.Reply(query)
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if err := client.Verify(context.Background(), reply, []byte(testRevision)); err == nil {
		t.Fatal("Verify() accepted a timestamp outside the certificate validity")
	}
}

func TestSubmitHTTPFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
			},
		},
		{
			name: "wrong content type",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.Write([]byte("<html></html>"))
			},
		},
		{
			name: "garbage reply",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/timestamp-reply")
				w.Write([]byte("garbage"))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()
			client, err := New(Options{URL: server.URL})
			if err != nil {
				t.Fatal(err)
			}
			query, err := client.BuildQuery([]byte(testRevision))
			if err != nil {
				t.Fatal(err)
			}
			if _, err := client.Submit(context.Background(), query); err == nil {
				t.Fatal("Submit() expected error")
			}
		})
	}
}

func TestSubmitMalformedQuery(t *testing.T) {
	s := newTestServer(t)
	client := s.client(t, Options{})
	if _, err := client.Submit(context.Background(), []byte("garbage")); err == nil {
		t.Fatal("Submit() expected error")
	}
	if s.tsa.Requests() != 0 {
		t.Fatal("malformed query was sent to the TSA")
	}
}

type fakeRevocation struct {
	results []*result.CertRevocationResult
	err     error
	opts    revocation.ValidateContextOptions
}

func (f *fakeRevocation) ValidateContext(_ context.Context, opts revocation.ValidateContextOptions) ([]*result.CertRevocationResult, error) {
	f.opts = opts
	return f.results, f.err
}

func TestVerifyRevocation(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name    string
		fake    *fakeRevocation
		wantErr bool
	}{
		{name: "ok", fake: &fakeRevocation{results: []*result.CertRevocationResult{{Result: result.ResultOK}}}},
		{name: "non revokable", fake: &fakeRevocation{results: []*result.CertRevocationResult{{Result: result.ResultNonRevokable}}}},
		{name: "revoked", fake: &fakeRevocation{results: []*result.CertRevocationResult{{Result: result.ResultRevoked}}}, wantErr: true},
		{name: "unknown", fake: &fakeRevocation{results: []*result.CertRevocationResult{{Result: result.ResultUnknown}}}, wantErr: true},
		{name: "error", fake: &fakeRevocation{err: errors.New("OCSP responder unreachable")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := s.client(t, Options{Revocation: tt.fake})
			reply := s.timestamp(t, client, testRevision)
			err := client.Verify(context.Background(), reply, []byte(testRevision))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.fake.opts.AuthenticSigningTime.Equal(s.now) {
				t.Fatalf("AuthenticSigningTime = %v, want %v", tt.fake.opts.AuthenticSigningTime, s.now)
			}
			if len(tt.fake.opts.CertChain) == 0 || !tt.fake.opts.CertChain[0].Equal(s.tsa.Certificate()) {
				t.Fatal("revocation was not checked on the TSA certificate chain")
			}
		})
	}
}

func TestNewRevocationValidator(t *testing.T) {
	validator, err := NewRevocationValidator(&http.Client{Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewRevocationValidator() error = %v", err)
	}
	if validator == nil {
		t.Fatal("NewRevocationValidator() returned nil")
	}
}
