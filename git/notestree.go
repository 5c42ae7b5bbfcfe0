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
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	iox "github.com/notaryproject/git-timestamp/internal/io"
)

// blobMode is the mode of note blobs.
const blobMode = filemode.Regular

// notesEntry is a blob in a notes tree, keyed by its full path.
type notesEntry struct {
	mode filemode.FileMode
	hash plumbing.Hash
}

// notesTree is the flattened content of a notes commit. Notes are keyed by
// the annotated object id, whatever fanout they were stored with. Other
// entries keep their path.
type notesTree map[string]notesEntry

// readNotesTree flattens tree. A nil tree gives an empty notesTree.
func readNotesTree(s storer.EncodedObjectStorer, tree *object.Tree) (notesTree, error) {
	notes := notesTree{}
	if tree == nil {
		return notes, nil
	}
	if err := walkNotes(s, tree, "", "", notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// walkNotes descends into tree. dir is the real path, hex the object id
// prefix spelled by the fanout directories so far.
func walkNotes(s storer.EncodedObjectStorer, tree *object.Tree, dir, hex string, notes notesTree) error {
	for _, e := range tree.Entries {
		path := e.Name
		if dir != "" {
			path = dir + "/" + e.Name
		}
		prefix := ""
		if hex != "" || dir == "" {
			prefix = hex + e.Name
		}
		if e.Mode == filemode.Dir {
			sub, err := object.GetTree(s, e.Hash)
			if err != nil {
				return fmt.Errorf("read notes tree %s: %w", path, err)
			}
			if !isHex(e.Name) {
				prefix = ""
			}
			if err := walkNotes(s, sub, path, prefix, notes); err != nil {
				return err
			}
			continue
		}
		key := path
		if prefix != "" && validateID(prefix) == nil {
			key = prefix
		}
		notes[key] = notesEntry{mode: e.Mode, hash: e.Hash}
	}
	return nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return s != ""
}

// write stores notes as a tree and returns its hash. Notes are written
// without fanout.
func (n notesTree) write(s storer.EncodedObjectStorer) (plumbing.Hash, error) {
	root := &treeNode{}
	for path, e := range n {
		root.insert(strings.Split(path, "/"), e)
	}
	return root.write(s)
}

type treeNode struct {
	blobs map[string]notesEntry
	dirs  map[string]*treeNode
}

func (t *treeNode) insert(parts []string, e notesEntry) {
	if len(parts) == 1 {
		if t.blobs == nil {
			t.blobs = map[string]notesEntry{}
		}
		t.blobs[parts[0]] = e
		return
	}
	if t.dirs == nil {
		t.dirs = map[string]*treeNode{}
	}
	sub, ok := t.dirs[parts[0]]
	if !ok {
		sub = &treeNode{}
		t.dirs[parts[0]] = sub
	}
	sub.insert(parts[1:], e)
}

func (t *treeNode) write(s storer.EncodedObjectStorer) (plumbing.Hash, error) {
	tree := &object.Tree{}
	for name, e := range t.blobs {
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: name, Mode: e.mode, Hash: e.hash})
	}
	for name, sub := range t.dirs {
		h, err := sub.write(s)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: h})
	}
	sortTreeEntries(tree.Entries)

	obj := s.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.SetEncodedObject(obj)
}

// sortTreeEntries orders entries the way git does: directories compare as
// if their name ended with a slash.
func sortTreeEntries(entries []object.TreeEntry) {
	key := func(e object.TreeEntry) string {
		if e.Mode == filemode.Dir {
			return e.Name + "/"
		}
		return e.Name
	}
	sort.Slice(entries, func(i, j int) bool {
		return key(entries[i]) < key(entries[j])
	})
}

func writeBlob(s storer.EncodedObjectStorer, content []byte) (plumbing.Hash, error) {
	obj := s.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(content)))
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := w.Write(content); err != nil {
		w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.SetEncodedObject(obj)
}

func readBlob(s storer.EncodedObjectStorer, h plumbing.Hash) ([]byte, error) {
	blob, err := object.GetBlob(s, h)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, fmt.Errorf("note blob %s is missing: %w", h, err)
		}
		return nil, err
	}
	r, err := blob.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	content, err := iox.ReadAll(r, MaxNoteSize)
	if err != nil {
		return nil, fmt.Errorf("note blob %s: %w", h, err)
	}
	return content, nil
}
