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

package dir

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// SysFS is a fs.FS that also knows the real system path of its files.
type SysFS interface {
	fs.FS

	// SysPath returns the real system path of the given path items in the SysFS.
	SysPath(items ...string) (string, error)
}

type sysFS struct {
	fs.FS
	root string
}

// SysPath returns the real system path of the given path items in the SysFS.
// Absolute items are rejected; callers resolve those themselves.
func (s sysFS) SysPath(items ...string) (string, error) {
	pathItems := []string{s.root}
	for _, item := range items {
		if filepath.IsAbs(item) {
			return "", fmt.Errorf("path %q is absolute, want a path relative to %s", item, s.root)
		}
		pathItems = append(pathItems, item)
	}
	return filepath.Join(pathItems...), nil
}

// NewSysFS returns the SysFS rooted at root.
func NewSysFS(root string) SysFS {
	return sysFS{
		FS:   os.DirFS(root),
		root: root}
}

// ConfigFS is the config SysFS.
func ConfigFS() SysFS {
	return NewSysFS(userConfigDirPath())
}
