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

package io

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLimitWriter(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		written  int
		wantErr  bool
	}{
		{"hello", "hello", 5, false},
		{"1234567890", "1234567890", 10, false},
		{"1234567891011", "1234567891", 10, true},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		lw := LimitWriter(&buf, 10)
		n, err := lw.Write([]byte(tt.input))
		if (err != nil) != tt.wantErr {
			t.Fatalf("Write(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if n != tt.written {
			t.Errorf("Write(%q) = %d, want %d", tt.input, n, tt.written)
		}
		if buf.String() != tt.expected {
			t.Errorf("buffer = %q, want %q", buf.String(), tt.expected)
		}
	}
}

func TestLimitWriterFull(t *testing.T) {
	var buf bytes.Buffer
	lw := LimitWriter(&buf, 5)
	if _, err := lw.Write([]byte("hello")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := lw.Write([]byte("!")); !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("Write() error = %v, want ErrLimitExceeded", err)
	}
}

func TestReadAll(t *testing.T) {
	got, err := ReadAll(strings.NewReader("proof\n"), 6)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != "proof\n" {
		t.Errorf("ReadAll() = %q, want %q", got, "proof\n")
	}

	if _, err := ReadAll(strings.NewReader("proof\n"), 5); !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("ReadAll() error = %v, want ErrLimitExceeded", err)
	}
}
