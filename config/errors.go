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

package config

import "fmt"

// InvalidConfigError is used when a config value cannot be used.
type InvalidConfigError struct {
	Key string
	Msg string
}

// Error returns the error message.
func (e InvalidConfigError) Error() string {
	switch {
	case e.Key != "" && e.Msg != "":
		return fmt.Sprintf("invalid config %q: %s", e.Key, e.Msg)
	case e.Key != "":
		return fmt.Sprintf("invalid config %q", e.Key)
	}
	return "invalid config"
}
