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

// Action is a top-level git-timestamp command.
type Action int

// Actions in the order they are listed in usage text.
const (
	ActionCreate Action = iota + 1
	ActionVerify
	ActionExamine
	ActionRemove
	ActionPush
	ActionFetch
)

var actionNameMap = map[Action]string{
	ActionCreate:  "create",
	ActionVerify:  "verify",
	ActionExamine: "examine",
	ActionRemove:  "remove",
	ActionPush:    "push",
	ActionFetch:   "fetch",
}

// ParseAction returns the Action named s.
func ParseAction(s string) (Action, error) {
	for a := ActionCreate; a <= ActionFetch; a++ {
		if actionNameMap[a] == s {
			return a, nil
		}
	}
	return 0, InvalidActionError{Action: s}
}

func (a Action) String() string {
	if name, ok := actionNameMap[a]; ok {
		return name
	}
	return "unknown"
}

// PerRevision reports whether a acts on individual revisions. push and fetch
// sync the whole notes ref instead.
func (a Action) PerRevision() bool {
	switch a {
	case ActionCreate, ActionVerify, ActionExamine, ActionRemove:
		return true
	}
	return false
}

func actionNames() []string {
	names := make([]string, 0, len(actionNameMap))
	for a := ActionCreate; a <= ActionFetch; a++ {
		names = append(names, actionNameMap[a])
	}
	return names
}
