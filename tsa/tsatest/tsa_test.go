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

package tsatest

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/notaryproject/tspclient-go"
	"github.com/notaryproject/tspclient-go/pki"

	"github.com/notaryproject/git-timestamp/internal/cms"
	"github.com/notaryproject/git-timestamp/internal/oid"
)

func newQuery(t *testing.T, alg asn1.ObjectIdentifier, message []byte, nonce int64) []byte {
	t.Helper()
	sum := sha256.Sum256(message)
	query, err := asn1.Marshal(request{
		Version: 1,
		MessageImprint: messageImprint{
			HashAlgorithm: pkix.AlgorithmIdentifier{Algorithm: alg},
			HashedMessage: sum[:],
		},
		Nonce:   big.NewInt(nonce),
		CertReq: true,
	})
	if err != nil {
		t.Fatalf("asn1.Marshal() error = %v", err)
	}
	return query
}

func parseReply(t *testing.T, reply []byte) response {
	t.Helper()
	var resp response
	if _, err := asn1.Unmarshal(reply, &resp); err != nil {
		t.Fatalf("asn1.Unmarshal(reply) error = %v", err)
	}
	return resp
}

func TestTSAReplyGranted(t *testing.T) {
	now := time.Date(2021, 9, 18, 11, 54, 34, 0, time.UTC)
	tsa, err := NewTSA()
	if err != nil {
		t.Fatalf("NewTSA() error = %v", err)
	}
	tsa.NowFunc = func() time.Time {
		return now
	}

	message := []byte("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	reply, err := tsa.Reply(newQuery(t, oid.SHA256, message, 42))
	if err != nil {
		t.Fatalf("TSA.Reply() error = %v", err)
	}
	resp := parseReply(t, reply)
	if int(resp.Status.Status) != int(pki.StatusGranted) {
		t.Fatalf("Response.Status = %v, want granted", resp.Status.Status)
	}

	var contentInfo cms.ContentInfo
	if _, err := asn1.Unmarshal(resp.TimeStampToken.FullBytes, &contentInfo); err != nil {
		t.Fatalf("asn1.Unmarshal(token) error = %v", err)
	}
	if !contentInfo.ContentType.Equal(oid.SignedData) {
		t.Fatalf("ContentInfo.ContentType = %v, want %v", contentInfo.ContentType, oid.SignedData)
	}
	var signed cms.SignedData
	if _, err := asn1.Unmarshal(contentInfo.Content.Bytes, &signed); err != nil {
		t.Fatalf("asn1.Unmarshal(SignedData) error = %v", err)
	}
	if len(signed.SignerInfos) != 1 {
		t.Fatalf("len(SignerInfos) = %d, want 1", len(signed.SignerInfos))
	}
	if !bytes.Equal(signed.Certificates.Bytes, tsa.Certificate().Raw) {
		t.Fatal("SignedData does not carry the TSA certificate")
	}
	var signingCert signingCertificateV2
	if err := signed.SignerInfos[0].SignedAttributes.TryGet(oid.SigningCertificateV2, &signingCert); err != nil {
		t.Fatalf("TryGet(SigningCertificateV2) error = %v", err)
	}
	certHash := sha256.Sum256(tsa.Certificate().Raw)
	if !bytes.Equal(signingCert.Certificates[0].CertHash, certHash[:]) {
		t.Fatal("SigningCertificateV2 does not identify the TSA certificate")
	}

	var info tstInfo
	if _, err := asn1.Unmarshal(signed.EncapsulatedContentInfo.Content, &info); err != nil {
		t.Fatalf("asn1.Unmarshal(TSTInfo) error = %v", err)
	}
	if !info.GenTime.Equal(now) {
		t.Errorf("TSTInfo.GenTime = %v, want %v", info.GenTime, now)
	}
	var signingTime time.Time
	if err := signed.SignerInfos[0].SignedAttributes.TryGet(oid.SigningTime, &signingTime); err != nil {
		t.Fatalf("TryGet(SigningTime) error = %v", err)
	}
	if !signingTime.Equal(now) {
		t.Errorf("signingTime = %v, want the genTime %v", signingTime, now)
	}
	if info.Nonce == nil || info.Nonce.Int64() != 42 {
		t.Errorf("TSTInfo.Nonce = %v, want 42", info.Nonce)
	}
	sum := sha256.Sum256(message)
	if !bytes.Equal(info.MessageImprint.HashedMessage, sum[:]) {
		t.Error("TSTInfo.MessageImprint does not match the request")
	}
	if tsa.Requests() != 1 {
		t.Errorf("Requests() = %d, want 1", tsa.Requests())
	}
}

func TestTSAReplyRejection(t *testing.T) {
	tsa, err := NewTSA()
	if err != nil {
		t.Fatalf("NewTSA() error = %v", err)
	}

	tests := []struct {
		name    string
		query   []byte
		reject  bool
		wantBit int
	}{
		{name: "bad algorithm", query: newQuery(t, oid.SHA256WithRSA, []byte("x"), 1), wantBit: failureBadAlg},
		{name: "digest size mismatch", query: newQuery(t, oid.SHA512, []byte("x"), 1), wantBit: failureBadDataFormat},
		{name: "malformed", query: []byte("not a request"), wantBit: failureBadDataFormat},
		{name: "rejecting", query: newQuery(t, oid.SHA256, []byte("x"), 1), reject: true, wantBit: failureBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tsa.SetReject(tt.reject)
			defer tsa.SetReject(false)
			reply, err := tsa.Reply(tt.query)
			if err != nil {
				t.Fatalf("TSA.Reply() error = %v", err)
			}
			resp := parseReply(t, reply)
			if int(resp.Status.Status) != int(pki.StatusRejection) {
				t.Fatalf("Response.Status = %v, want rejection", resp.Status.Status)
			}
			if resp.Status.FailInfo.At(tt.wantBit) != 1 {
				t.Fatalf("Response.FailInfo bit %d not set", tt.wantBit)
			}
			if len(resp.TimeStampToken.FullBytes) != 0 {
				t.Fatal("rejected reply carries a token")
			}

			var parsed tspclient.Response
			if err := parsed.UnmarshalBinary(reply); err != nil {
				t.Fatalf("Response.UnmarshalBinary() error = %v", err)
			}
			if len(parsed.Status.StatusString) != 1 || parsed.Status.StatusString[0] != "request rejected by test TSA" {
				t.Fatalf("Response.StatusString = %q", parsed.Status.StatusString)
			}
			if parsed.Status.Err() == nil {
				t.Fatal("StatusInfo.Err() = nil, want the rejection")
			}
		})
	}
}

func TestTSAServeHTTP(t *testing.T) {
	tsa, err := NewTSA()
	if err != nil {
		t.Fatalf("NewTSA() error = %v", err)
	}
	server := httptest.NewServer(tsa)
	defer server.Close()

	resp, err := http.Post(server.URL, "text/plain", bytes.NewReader(newQuery(t, oid.SHA256, []byte("x"), 1)))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnsupportedMediaType)
	}

	resp, err = http.Post(server.URL, mediaTypeQuery, bytes.NewReader(newQuery(t, oid.SHA256, []byte("x"), 1)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Header.Get("Content-Type"); got != mediaTypeReply {
		t.Fatalf("Content-Type = %q, want %q", got, mediaTypeReply)
	}
}
