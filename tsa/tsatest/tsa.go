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

// Package tsatest provides a Time-Stamping Authority for tests.
package tsatest

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"io"
	"math"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/notaryproject/tspclient-go/pki"

	"github.com/notaryproject/git-timestamp/internal/cms"
	"github.com/notaryproject/git-timestamp/internal/oid"
)

const (
	mediaTypeQuery = "application/timestamp-query"
	mediaTypeReply = "application/timestamp-reply"
)

// PKIFailureInfo bits defined in RFC 3161 2.4.2.
const (
	failureBadAlg        = 0
	failureBadRequest    = 2
	failureBadDataFormat = 5
)

// MessageImprint ::= SEQUENCE {
//  hashAlgorithm   AlgorithmIdentifier,
//  hashedMessage   OCTET STRING }
type messageImprint struct {
	HashAlgorithm pkix.AlgorithmIdentifier
	HashedMessage []byte
}

// TimeStampReq ::= SEQUENCE {
//  version         INTEGER                 { v1(1) },
//  messageImprint  MessageImprint,
//  reqPolicy       TSAPolicyID              OPTIONAL,
//  nonce           INTEGER                  OPTIONAL,
//  certReq         BOOLEAN                  DEFAULT FALSE,
//  extensions      [0] IMPLICIT Extensions  OPTIONAL }
type request struct {
	Version        int
	MessageImprint messageImprint
	ReqPolicy      asn1.ObjectIdentifier `asn1:"optional"`
	Nonce          *big.Int              `asn1:"optional"`
	CertReq        bool                  `asn1:"optional,default:false"`
	Extensions     []pkix.Extension      `asn1:"optional,tag:0"`
}

// TimeStampResp ::= SEQUENCE {
//  status          PKIStatusInfo,
//  timeStampToken  TimeStampToken  OPTIONAL }
type response struct {
	Status         statusInfo
	TimeStampToken asn1.RawValue `asn1:"optional"`
}

// PKIStatusInfo ::= SEQUENCE {
//  status        PKIStatus,
//  statusString  PKIFreeText     OPTIONAL,
//  failInfo      PKIFailureInfo  OPTIONAL }
//
// PKIFreeText is a SEQUENCE OF UTF8String, written as raw values since
// encoding/asn1 cannot apply a string type to slice elements.
type statusInfo struct {
	Status       pki.Status
	StatusString []asn1.RawValue `asn1:"optional"`
	FailInfo     asn1.BitString  `asn1:"optional"`
}

func freeText(lines ...string) []asn1.RawValue {
	text := make([]asn1.RawValue, 0, len(lines))
	for _, line := range lines {
		text = append(text, asn1.RawValue{Tag: asn1.TagUTF8String, Bytes: []byte(line)})
	}
	return text
}

// Accuracy ::= SEQUENCE {
//  seconds     INTEGER             OPTIONAL,
//  millis  [0] INTEGER (1..999)    OPTIONAL,
//  micros  [1] INTEGER (1..999)    OPTIONAL }
type accuracy struct {
	Seconds      int `asn1:"optional"`
	Milliseconds int `asn1:"optional,tag:0"`
	Microseconds int `asn1:"optional,tag:1"`
}

// TSTInfo ::= SEQUENCE {
//  version         INTEGER                 { v1(1) },
//  policy          TSAPolicyId,
//  messageImprint  MessageImprint,
//  serialNumber    INTEGER,
//  genTime         GeneralizedTime,
//  accuracy        Accuracy                OPTIONAL,
//  ordering        BOOLEAN                 DEFAULT FALSE,
//  nonce           INTEGER                 OPTIONAL,
//  tsa             [0] GeneralName         OPTIONAL,
//  extensions      [1] IMPLICIT Extensions OPTIONAL }
type tstInfo struct {
	Version        int
	Policy         asn1.ObjectIdentifier
	MessageImprint messageImprint
	SerialNumber   *big.Int
	GenTime        time.Time        `asn1:"generalized"`
	Accuracy       accuracy         `asn1:"optional"`
	Ordering       bool             `asn1:"optional,default:false"`
	Nonce          *big.Int         `asn1:"optional"`
	TSA            asn1.RawValue    `asn1:"optional,tag:0"`
	Extensions     []pkix.Extension `asn1:"optional,tag:1"`
}

// ESSCertIDv2 ::= SEQUENCE {
//  hashAlgorithm   AlgorithmIdentifier DEFAULT {algorithm id-sha256},
//  certHash        Hash,
//  issuerSerial    IssuerSerial OPTIONAL }
type essCertIDv2 struct {
	HashAlgorithm pkix.AlgorithmIdentifier `asn1:"optional"`
	CertHash      []byte
}

// SigningCertificateV2 ::= SEQUENCE {
//  certs       SEQUENCE OF ESSCertIDv2,
//  policies    SEQUENCE OF PolicyInformation OPTIONAL }
type signingCertificateV2 struct {
	Certificates []essCertIDv2
}

// TSA is a Time-Stamping Authority for testing purpose. It serves RFC 3161
// requests over HTTP.
type TSA struct {
	// key is the TSA signing key.
	key *rsa.PrivateKey

	// cert is the self-signed certificate by the TSA signing key.
	cert *x509.Certificate

	// NowFunc provides the current time. time.Now() is used if nil.
	NowFunc func() time.Time

	mu       sync.Mutex
	reject   bool
	requests int
}

// NewTSA creates a TSA with random credentials, valid from an hour ago for
// a year.
func NewTSA() (*TSA, error) {
	now := time.Now()
	return NewTSAWithValidity(now.Add(-time.Hour), now.Add(365*24*time.Hour))
}

// NewTSAWithValidity creates a TSA whose certificate is valid from notBefore
// to notAfter.
func NewTSAWithValidity(notBefore, notAfter time.Time) (*TSA, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	serialNumber, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return nil, err
	}
	// RFC 3161 2.3 requires a critical extended key usage extension with
	// timeStamping as its only purpose.
	eku, err := asn1.Marshal([]asn1.ObjectIdentifier{oid.TimeStamping})
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:   "git-timestamp test TSA",
			Organization: []string{"Notary"},
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		ExtraExtensions: []pkix.Extension{
			{Id: oid.ExtKeyUsage, Critical: true, Value: eku},
		},
	}
	certBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, key.Public(), key)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(certBytes)
	if err != nil {
		return nil, err
	}
	return &TSA{
		key:  key,
		cert: cert,
	}, nil
}

// Certificate returns the certificate used by the server.
func (tsa *TSA) Certificate() *x509.Certificate {
	return tsa.cert
}

func (tsa *TSA) now() time.Time {
	if tsa.NowFunc != nil {
		return tsa.NowFunc()
	}
	return time.Now()
}

// SetReject makes the TSA reject all further requests.
func (tsa *TSA) SetReject(reject bool) {
	tsa.mu.Lock()
	defer tsa.mu.Unlock()
	tsa.reject = reject
}

// Requests returns the number of requests served.
func (tsa *TSA) Requests() int {
	tsa.mu.Lock()
	defer tsa.mu.Unlock()
	return tsa.requests
}

// ServeHTTP implements the RFC 3161 3.4 Time-Stamp Protocol via HTTP.
func (tsa *TSA) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Header.Get("Content-Type") != mediaTypeQuery {
		http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reply, err := tsa.Reply(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", mediaTypeReply)
	w.Write(reply)
}

// Reply answers a DER encoded time-stamp request with a DER encoded reply.
func (tsa *TSA) Reply(query []byte) ([]byte, error) {
	tsa.mu.Lock()
	tsa.requests++
	reject := tsa.reject
	tsa.mu.Unlock()

	var req request
	if rest, err := asn1.Unmarshal(query, &req); err != nil || len(rest) > 0 {
		return rejection(failureBadDataFormat)
	}
	if reject || req.Version != 1 {
		return rejection(failureBadRequest)
	}
	hash, ok := oid.ConvertToHash(req.MessageImprint.HashAlgorithm.Algorithm)
	if !ok {
		return rejection(failureBadAlg)
	}
	if len(req.MessageImprint.HashedMessage) != hash.Size() {
		return rejection(failureBadDataFormat)
	}

	genTime := tsa.now().UTC().Truncate(time.Second)
	infoBytes, err := tsa.generateTokenInfo(&req, genTime)
	if err != nil {
		return nil, err
	}
	signed, err := tsa.generateSignedData(infoBytes, genTime, req.CertReq)
	if err != nil {
		return nil, err
	}
	content, err := cms.RawValue(signed, "explicit,tag:0")
	if err != nil {
		return nil, err
	}
	token, err := cms.RawValue(cms.ContentInfo{
		ContentType: oid.SignedData,
		Content:     content,
	}, "")
	if err != nil {
		return nil, err
	}
	return asn1.Marshal(response{
		Status: statusInfo{
			Status: pki.StatusGranted,
		},
		TimeStampToken: token,
	})
}

// rejection encodes a rejected reply carrying failInfo.
func rejection(failInfo int) ([]byte, error) {
	bits := make([]byte, failInfo/8+1)
	bits[failInfo/8] |= 0x80 >> (failInfo % 8)
	return asn1.Marshal(response{
		Status: statusInfo{
			Status:       pki.StatusRejection,
			StatusString: freeText("request rejected by test TSA"),
			FailInfo:     asn1.BitString{Bytes: bits, BitLength: failInfo + 1},
		},
	})
}

// generateTokenInfo generates the timestamp token info answering req.
func (tsa *TSA) generateTokenInfo(req *request, genTime time.Time) ([]byte, error) {
	serialNumber, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return nil, err
	}
	name, err := asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        4,
		IsCompound: true,
		Bytes:      tsa.cert.RawSubject,
	})
	if err != nil {
		return nil, err
	}
	info := tstInfo{
		Version:        1,
		Policy:         asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 4146, 2, 3},
		MessageImprint: req.MessageImprint,
		SerialNumber:   serialNumber,
		GenTime:        genTime,
		Accuracy: accuracy{
			Seconds: 1,
		},
		Nonce: req.Nonce,
		TSA: asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        0,
			IsCompound: true,
			Bytes:      name,
		},
	}
	return asn1.Marshal(info)
}

// generateSignedData signs infoBytes as CMS SignedData. signingTime is the
// genTime of the token.
func (tsa *TSA) generateSignedData(infoBytes []byte, signingTime time.Time, requestCert bool) (cms.SignedData, error) {
	var issuer asn1.RawValue
	if _, err := asn1.Unmarshal(tsa.cert.RawIssuer, &issuer); err != nil {
		return cms.SignedData{}, err
	}
	infoDigest := sha256.Sum256(infoBytes)
	certDigest := sha256.Sum256(tsa.cert.Raw)
	attributes := cms.Attributes{}
	for _, attr := range []struct {
		id  asn1.ObjectIdentifier
		val any
	}{
		{oid.ContentType, oid.TSTInfo},
		{oid.MessageDigest, infoDigest[:]},
		{oid.SigningTime, signingTime},
		{oid.SigningCertificateV2, signingCertificateV2{
			Certificates: []essCertIDv2{{
				HashAlgorithm: pkix.AlgorithmIdentifier{Algorithm: oid.SHA256},
				CertHash:      certDigest[:],
			}},
		}},
	} {
		attribute, err := cms.NewAttribute(attr.id, attr.val)
		if err != nil {
			return cms.SignedData{}, err
		}
		attributes = append(attributes, attribute)
	}
	signed := cms.SignedData{
		Version: 3,
		DigestAlgorithmIdentifiers: []pkix.AlgorithmIdentifier{
			{Algorithm: oid.SHA256},
		},
		EncapsulatedContentInfo: cms.EncapsulatedContentInfo{
			ContentType: oid.TSTInfo,
			Content:     infoBytes,
		},
		SignerInfos: []cms.SignerInfo{
			{
				Version: 1,
				SignerIdentifier: cms.IssuerAndSerialNumber{
					Issuer:       issuer,
					SerialNumber: tsa.cert.SerialNumber,
				},
				DigestAlgorithm:    pkix.AlgorithmIdentifier{Algorithm: oid.SHA256},
				SignedAttributes:   attributes,
				SignatureAlgorithm: pkix.AlgorithmIdentifier{Algorithm: oid.SHA256WithRSA},
			},
		},
	}
	if requestCert {
		certs, err := cms.RawValue(tsa.cert.Raw, "tag:0")
		if err != nil {
			return cms.SignedData{}, err
		}
		signed.Certificates = certs
	}

	signer := &signed.SignerInfos[0]
	encodedAttributes, err := asn1.MarshalWithParams(signer.SignedAttributes, "set")
	if err != nil {
		return cms.SignedData{}, err
	}
	hashedAttributes := sha256.Sum256(encodedAttributes)
	signer.Signature, err = rsa.SignPKCS1v15(rand.Reader, tsa.key, crypto.SHA256, hashedAttributes[:])
	if err != nil {
		return cms.SignedData{}, err
	}
	return signed, nil
}
