// Copyright 2023 Jigsaw Operations LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package filter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// RuleStore persists the user lists.
type RuleStore interface {
	// Load returns every stored rule.
	Load(ctx context.Context) ([]Rule, error)
	// Add stores r. Adding a rule that is already stored is not an error.
	Add(ctx context.Context, r Rule) error
	// Remove deletes r. Removing a rule that is not stored is not an error.
	Remove(ctx context.Context, r Rule) error
}

// FileStore is a [RuleStore] backed by a YAML file of the form:
//
//	whitelist:
//	  - safe.example.com
//	blacklist:
//	  - "*.tracker.example.net"
//
// A missing file holds no rules. Multiple goroutines may use a FileStore simultaneously, but other processes
// writing the same file are not coordinated with.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ RuleStore = (*FileStore)(nil)

// NewFileStore creates a [FileStore] for the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type ruleFile struct {
	Whitelist []string `yaml:"whitelist"`
	Blacklist []string `yaml:"blacklist"`
}

func (f *ruleFile) list(kind Kind) (*[]string, error) {
	switch kind {
	case KindWhitelist:
		return &f.Whitelist, nil
	case KindBlacklist:
		return &f.Blacklist, nil
	default:
		return nil, fmt.Errorf("cannot store %v rules", kind)
	}
}

func (s *FileStore) read() (*ruleFile, error) {
	var rf ruleFile
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &rf, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse %v: %w", s.path, err)
	}
	return &rf, nil
}

func (s *FileStore) write(rf *ruleFile) error {
	data, err := yaml.Marshal(rf)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Load implements [RuleStore].
func (s *FileStore) Load(ctx context.Context) ([]Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rf, err := s.read()
	if err != nil {
		return nil, err
	}
	rules := make([]Rule, 0, len(rf.Whitelist)+len(rf.Blacklist))
	for _, p := range rf.Whitelist {
		rules = append(rules, Rule{Pattern: Normalize(p), Kind: KindWhitelist})
	}
	for _, p := range rf.Blacklist {
		rules = append(rules, Rule{Pattern: Normalize(p), Kind: KindBlacklist})
	}
	return rules, nil
}

func (s *FileStore) modify(r Rule, change func([]string, string) []string) error {
	pattern := Normalize(r.Pattern)
	if pattern == "" {
		return errors.New("empty pattern")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rf, err := s.read()
	if err != nil {
		return err
	}
	list, err := rf.list(r.Kind)
	if err != nil {
		return err
	}
	*list = change(*list, pattern)
	return s.write(rf)
}

// Add implements [RuleStore].
func (s *FileStore) Add(ctx context.Context, r Rule) error {
	return s.modify(r, func(list []string, p string) []string {
		if slices.Contains(list, p) {
			return list
		}
		list = append(list, p)
		slices.Sort(list)
		return list
	})
}

// Remove implements [RuleStore].
func (s *FileStore) Remove(ctx context.Context, r Rule) error {
	return s.modify(r, func(list []string, p string) []string {
		return slices.DeleteFunc(list, func(e string) bool { return Normalize(e) == p })
	})
}
