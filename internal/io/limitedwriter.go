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

// Package io bounds how much data is read from sources that should be small,
// such as stored timestamp notes.
package io

import (
	"bytes"
	"errors"
	"io"
)

// ErrLimitExceeded is returned when the write limit is exceeded.
var ErrLimitExceeded = errors.New("write limit exceeded")

// LimitedWriter writes to W until N bytes have been written. A write that
// does not fit writes what fits and fails with ErrLimitExceeded.
type LimitedWriter struct {
	W io.Writer // underlying writer
	N int64     // remaining bytes
}

// LimitWriter returns a LimitedWriter writing at most limit bytes to w.
func LimitWriter(w io.Writer, limit int64) *LimitedWriter {
	return &LimitedWriter{W: w, N: limit}
}

func (l *LimitedWriter) Write(p []byte) (int, error) {
	if l.N <= 0 {
		return 0, ErrLimitExceeded
	}
	truncated := int64(len(p)) > l.N
	if truncated {
		p = p[:l.N]
	}
	n, err := l.W.Write(p)
	l.N -= int64(n)
	if err == nil && truncated {
		err = ErrLimitExceeded
	}
	return n, err
}

// ReadAll reads r until EOF. It fails with ErrLimitExceeded if r holds more
// than limit bytes.
func ReadAll(r io.Reader, limit int64) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(LimitWriter(&buf, limit), r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
