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

package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/notaryproject/git-timestamp/internal/semver"
)

// minGitVersion is the oldest git the CLI backend supports.
const minGitVersion = "2.23.0"

var (
	gitVersionOnce sync.Once
	gitVersion     string
	gitVersionErr  error
)

// GitVersion returns the version of the git executable on PATH.
func GitVersion(ctx context.Context) (string, error) {
	gitVersionOnce.Do(func() {
		out, err := exec.CommandContext(ctx, "git", "--version").CombinedOutput()
		if err != nil {
			if s := strings.TrimSpace(string(out)); s != "" {
				gitVersionErr = fmt.Errorf("git --version: %v: %s", err, s)
				return
			}
			gitVersionErr = fmt.Errorf("git --version: %w", err)
			return
		}
		gitVersion, gitVersionErr = semver.FromToolOutput(string(out))
	})
	return gitVersion, gitVersionErr
}

func ensureMinGitVersion(ctx context.Context) error {
	version, err := GitVersion(ctx)
	if err != nil {
		return err
	}
	return checkGitVersion(version)
}

func checkGitVersion(version string) error {
	cmp, err := semver.Compare(version, minGitVersion)
	if err != nil {
		return err
	}
	if cmp < 0 {
		return fmt.Errorf("git %s is too old; git-timestamp requires git >= %s", version, minGitVersion)
	}
	return nil
}
