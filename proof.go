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

package gittimestamp

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// proofLineLength matches the line length of `openssl base64`.
const proofLineLength = 64

// EncodeProof encodes an authority reply as the blob stored in the notes
// ref: standard base64 wrapped at 64 columns with a trailing newline.
func EncodeProof(reply []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(reply)
	var b strings.Builder
	b.Grow(len(encoded) + len(encoded)/proofLineLength + 1)
	for len(encoded) > proofLineLength {
		b.WriteString(encoded[:proofLineLength])
		b.WriteByte('\n')
		encoded = encoded[proofLineLength:]
	}
	b.WriteString(encoded)
	b.WriteByte('\n')
	return []byte(b.String())
}

// DecodeProof decodes a stored blob back to the authority reply. Whitespace
// is ignored so blobs rewrapped by other tools still decode.
func DecodeProof(blob []byte) ([]byte, error) {
	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, string(blob))
	if compact == "" {
		return nil, errors.New("empty timestamp blob")
	}
	reply, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("decode timestamp blob: %w", err)
	}
	return reply, nil
}
