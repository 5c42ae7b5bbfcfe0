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

// Package dir implements the git-timestamp directory structure.
//
// The user level configuration directory is
// `$XDG_CONFIG_HOME/git-timestamp` on Unix, `%AppData%/git-timestamp` on
// Windows and `~/Library/Application Support/git-timestamp` on macOS, as
// reported by os.UserConfigDir. Tests override UserConfigDir directly.
package dir

import (
	"os"
	"path/filepath"
)

// UserConfigDir is the user level config directory. It is resolved lazily
// from os.UserConfigDir when empty.
var UserConfigDir string

// for mocking
var userConfigDir = os.UserConfigDir

const gitTimestamp = "git-timestamp"

// The relative paths of git-timestamp files inside the config directory.
const (
	// PathConfigFile is the config file name.
	PathConfigFile = "config.json"

	// PathTrustAnchor is the default trust anchor certificate file.
	PathTrustAnchor = "tsa/cacert.pem"
)

// userConfigDirPath returns the user level config directory.
func userConfigDirPath() string {
	if UserConfigDir == "" {
		userDir, err := userConfigDir()
		if err != nil {
			// fall back to the working directory when no home is available,
			// e.g. inside minimal CI containers.
			userDir = "."
		}
		UserConfigDir = filepath.Join(userDir, gitTimestamp)
	}
	return UserConfigDir
}
