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

// Package semver provides functions related to semanic version.
// This package is based on "golang.org/x/mod/semver"
package semver

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// IsSemverValid returns true if version is a valid semantic version
func IsSemverValid(version string) bool {
	// a valid semanic version MUST not have prefix 'v'
	if strings.HasPrefix(version, "v") {
		return false
	}
	// golang package "golang.org/x/mod/semver" requires prefix 'v'
	return semver.IsValid("v" + version)
}

// Compare validates and compares two semantic versions.
// The result will be 0 if v == w, -1 if v < w, or +1 if v > w.
func Compare(v, w string) (int, error) {
	if !IsSemverValid(v) {
		return 0, fmt.Errorf("%s is not a valid semantic version", v)
	}
	if !IsSemverValid(w) {
		return 0, fmt.Errorf("%s is not a valid semantic version", w)
	}
	return semver.Compare("v"+v, "v"+w), nil
}

// FromToolOutput extracts the version printed by a tool such as
// `git --version` and returns it as a semantic version. Vendor suffixes are
// dropped and a missing patch number counts as zero:
//
//	git version 2.39.3 (Apple Git-146)  -> 2.39.3
//	git version 2.39.3.windows.1        -> 2.39.3
//	git version 2.45                    -> 2.45.0
func FromToolOutput(out string) (string, error) {
	s := strings.TrimSpace(out)
	start := strings.IndexAny(s, "0123456789")
	if start < 0 {
		return "", fmt.Errorf("no version found in %q", out)
	}
	s = s[start:]
	end := 0
	for end < len(s) && (s[end] == '.' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	parts := strings.Split(strings.Trim(s[:end], "."), ".")
	if len(parts) < 2 {
		return "", fmt.Errorf("no version found in %q", out)
	}
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	version := strings.Join(parts[:3], ".")
	if !IsSemverValid(version) {
		return "", fmt.Errorf("%s is not a valid semantic version", version)
	}
	return version, nil
}
