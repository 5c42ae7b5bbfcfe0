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

// Package cms holds the Cryptographic Message Syntax (CMS) structures defined
// in RFC 5652 that make up a time-stamp token.
package cms

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"math/big"
)

// ErrAttributeNotFound is returned when an attribute is missing.
var ErrAttributeNotFound = errors.New("attribute not found")

// ContentInfo ::= SEQUENCE {
//  contentType ContentType,
//  content     [0] EXPLICIT ANY DEFINED BY contentType }
type ContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,tag:0"`
}

// SignedData ::= SEQUENCE {
//  version             CMSVersion,
//  digestAlgorithms    DigestAlgorithmIdentifiers,
//  encapContentInfo    EncapsulatedContentInfo,
//  certificates        [0] IMPLICIT CertificateSet             OPTIONAL,
//  crls                [1] IMPLICIT CertificateRevocationLists OPTIONAL,
//  signerInfos         SignerInfos }
type SignedData struct {
	Version                    int
	DigestAlgorithmIdentifiers []pkix.AlgorithmIdentifier `asn1:"set"`
	EncapsulatedContentInfo    EncapsulatedContentInfo
	Certificates               asn1.RawValue          `asn1:"optional,tag:0"`
	CRLs                       []pkix.CertificateList `asn1:"optional,tag:1"`
	SignerInfos                []SignerInfo           `asn1:"set"`
}

// EncapsulatedContentInfo ::= SEQUENCE {
//  eContentType    ContentType,
//  eContent        [0] EXPLICIT OCTET STRING   OPTIONAL }
type EncapsulatedContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     []byte `asn1:"explicit,optional,tag:0"`
}

// SignerInfo ::= SEQUENCE {
//  version             CMSVersion,
//  sid                 SignerIdentifier,
//  digestAlgorithm     DigestAlgorithmIdentifier,
//  signedAttrs         [0] IMPLICIT SignedAttributes   OPTIONAL,
//  signatureAlgorithm  SignatureAlgorithmIdentifier,
//  signature           SignatureValue,
//  unsignedAttrs       [1] IMPLICIT UnsignedAttributes OPTIONAL }
// Only version 1 is supported, where the SignerIdentifier is an
// IssuerAndSerialNumber.
type SignerInfo struct {
	Version            int
	SignerIdentifier   IssuerAndSerialNumber
	DigestAlgorithm    pkix.AlgorithmIdentifier
	SignedAttributes   Attributes `asn1:"optional,tag:0"`
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          []byte
	UnsignedAttributes Attributes `asn1:"optional,tag:1"`
}

// IssuerAndSerialNumber ::= SEQUENCE {
//  issuer          Name,
//  serialNumber    CertificateSerialNumber }
type IssuerAndSerialNumber struct {
	Issuer       asn1.RawValue
	SerialNumber *big.Int
}

// Attribute ::= SEQUENCE {
//  attrType    OBJECT IDENTIFIER,
//  attrValues  SET OF AttributeValue }
type Attribute struct {
	Type   asn1.ObjectIdentifier
	Values asn1.RawValue `asn1:"set"`
}

// Attributes ::= SET SIZE (1..MAX) OF Attribute
type Attributes []Attribute

// NewAttribute builds an attribute holding the single value val.
func NewAttribute(identifier asn1.ObjectIdentifier, val any) (Attribute, error) {
	values, err := RawValue([]any{val}, "set")
	if err != nil {
		return Attribute{}, err
	}
	return Attribute{Type: identifier, Values: values}, nil
}

// TryGet tries to find the attribute by the given identifier, parse and store
// the result in the value pointed to by out.
func (a Attributes) TryGet(identifier asn1.ObjectIdentifier, out any) error {
	for _, attribute := range a {
		if identifier.Equal(attribute.Type) {
			_, err := asn1.Unmarshal(attribute.Values.Bytes, out)
			return err
		}
	}
	return ErrAttributeNotFound
}

// RawValue encodes val with the given ASN.1 params and returns it as an
// asn1.RawValue.
func RawValue(val any, params string) (asn1.RawValue, error) {
	b, err := asn1.MarshalWithParams(val, params)
	if err != nil {
		return asn1.NullRawValue, err
	}
	var raw asn1.RawValue
	if _, err := asn1.UnmarshalWithParams(b, &raw, params); err != nil {
		return asn1.NullRawValue, err
	}
	return raw, nil
}
