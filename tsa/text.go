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
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/notaryproject/tspclient-go"
	"github.com/notaryproject/tspclient-go/pki"
	"github.com/opencontainers/go-digest"

	"github.com/notaryproject/git-timestamp/internal/oid"
)

// PKIStatus names as defined in RFC 2510 3.2.3.
var statusNames = []string{
	"granted",
	"granted with modifications",
	"rejected",
	"waiting",
	"revocation warning",
	"revoked",
	"key update warning",
}

// PKIFailureInfo bits as defined in RFC 2510 3.2.3 and RFC 3161 2.4.2.
var failureNameMap = map[int]string{
	0:  "unrecognized or unsupported algorithm identifier",
	1:  "integrity check failed",
	2:  "transaction not permitted or supported",
	3:  "message time not sufficiently close to the system time",
	4:  "no certificate could be found matching the provided criteria",
	5:  "the data submitted has the wrong format",
	6:  "the authority indicated in the request is different from the one creating the response",
	7:  "the requester's data is incorrect",
	8:  "the timestamp is missing but should be there",
	9:  "the proof-of-possession failed",
	14: "the TSA's time source is not available",
	15: "the requested TSA policy is not supported",
	16: "the requested extension is not supported",
	17: "the additional information requested is not available",
	25: "the request cannot be handled due to system failure",
}

func statusName(status pki.StatusInfo) string {
	if s := int(status.Status); s >= 0 && s < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("unknown status %d", int(status.Status))
}

func failureNames(status pki.StatusInfo) []string {
	var names []string
	for bit := 0; bit < status.FailInfo.BitLength; bit++ {
		if status.FailInfo.At(bit) == 0 {
			continue
		}
		name, ok := failureNameMap[bit]
		if !ok {
			name = fmt.Sprintf("failure bit %d", bit)
		}
		names = append(names, name)
	}
	return names
}

func accuracyOf(info *tspclient.TSTInfo) time.Duration {
	return time.Duration(info.Accuracy.Seconds)*time.Second +
		time.Duration(info.Accuracy.Milliseconds)*time.Millisecond +
		time.Duration(info.Accuracy.Microseconds)*time.Microsecond
}

// imprintOf renders the message imprint as a digest, e.g. "sha256:9f86...".
func imprintOf(info *tspclient.TSTInfo) string {
	imprint := info.MessageImprint
	if hash, ok := oid.ConvertToHash(imprint.HashAlgorithm.Algorithm); ok {
		if alg, err := algorithmOf(hash); err == nil {
			return digest.NewDigestFromBytes(alg, imprint.HashedMessage).String()
		}
	}
	return imprint.HashAlgorithm.Algorithm.String() + ":" + hex.EncodeToString(imprint.HashedMessage)
}

func hashName(alg asn1.ObjectIdentifier) string {
	if hash, ok := oid.ConvertToHash(alg); ok {
		if alg, err := algorithmOf(hash); err == nil {
			return alg.String()
		}
		return strings.ToLower(strings.ReplaceAll(hash.String(), "-", ""))
	}
	return alg.String()
}

// generalName renders a DER encoded GeneralName (RFC 5280 4.2.1.6). Empty
// input yields "".
func generalName(der []byte) string {
	if len(der) == 0 {
		return ""
	}
	var name asn1.RawValue
	if _, err := asn1.Unmarshal(der, &name); err != nil || name.Class != asn1.ClassContextSpecific {
		return "unsupported name"
	}
	switch name.Tag {
	case 1:
		return "email:" + string(name.Bytes)
	case 2:
		return "DNS:" + string(name.Bytes)
	case 4:
		var rdn pkix.RDNSequence
		if _, err := asn1.Unmarshal(name.Bytes, &rdn); err != nil {
			return "unsupported name"
		}
		var dn pkix.Name
		dn.FillFromRDNSequence(&rdn)
		return "DirName:" + dn.String()
	case 6:
		return "URI:" + string(name.Bytes)
	}
	return fmt.Sprintf("unsupported name type %d", name.Tag)
}

func optionalCount(v int, unit string) string {
	if v == 0 {
		return "unspecified " + unit
	}
	return fmt.Sprintf("0x%02X %s", v, unit)
}

// renderText renders a reply the way `openssl ts -reply -text` does. info is
// nil for replies that carry no token.
func renderText(status pki.StatusInfo, info *tspclient.TSTInfo) string {
	var b strings.Builder
	b.WriteString("Status info:\n")
	fmt.Fprintf(&b, "Status: %s\n", statusName(status))
	description := "unspecified"
	if len(status.StatusString) > 0 {
		description = strings.Join(status.StatusString, "\n")
	}
	fmt.Fprintf(&b, "Status description: %s\n", description)
	failure := "unspecified"
	if names := failureNames(status); len(names) > 0 {
		failure = strings.Join(names, "\n")
	}
	fmt.Fprintf(&b, "Failure info: %s\n", failure)

	b.WriteString("\nTST info:\n")
	if info == nil {
		b.WriteString("Not included.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Version: %d\n", info.Version)
	fmt.Fprintf(&b, "Policy OID: %s\n", info.Policy)
	fmt.Fprintf(&b, "Hash Algorithm: %s\n", hashName(info.MessageImprint.HashAlgorithm.Algorithm))
	fmt.Fprintf(&b, "Message data: %s\n", imprintOf(info))
	fmt.Fprintf(&b, "Serial number: %#x\n", info.SerialNumber)
	fmt.Fprintf(&b, "Time stamp: %s\n", info.GenTime.UTC().Format("Jan _2 15:04:05.999999999 2006 GMT"))
	if info.Accuracy.Seconds == 0 && info.Accuracy.Milliseconds == 0 && info.Accuracy.Microseconds == 0 {
		b.WriteString("Accuracy: unspecified\n")
	} else {
		fmt.Fprintf(&b, "Accuracy: %s, %s, %s\n",
			optionalCount(info.Accuracy.Seconds, "seconds"),
			optionalCount(info.Accuracy.Milliseconds, "millis"),
			optionalCount(info.Accuracy.Microseconds, "micros"))
	}
	ordering := "no"
	if info.Ordering {
		ordering = "yes"
	}
	fmt.Fprintf(&b, "Ordering: %s\n", ordering)
	if info.Nonce == nil {
		b.WriteString("Nonce: unspecified\n")
	} else {
		fmt.Fprintf(&b, "Nonce: %#x\n", info.Nonce)
	}
	tsaName := generalName(info.TSA.Bytes)
	if tsaName == "" {
		tsaName = "unspecified"
	}
	fmt.Fprintf(&b, "TSA: %s\n", tsaName)
	b.WriteString("Extensions:\n")
	for _, ext := range info.Extensions {
		critical := ""
		if ext.Critical {
			critical = " critical"
		}
		fmt.Fprintf(&b, "    %s%s\n", ext.Id, critical)
	}
	return b.String()
}
