// Package diagnostics keeps a tree of named crawl statistics addressed by
// "a > b > c" paths and writes it out once when the crawl ends.
package diagnostics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-spider/internal/crawler"
)

// PathDelimiter separates path segments.
const PathDelimiter = " > "

// DefaultOutput is the object path used when none is configured.
const DefaultOutput = "node_spider_dump.txt"

// escapePrefix marks child keys that would collide with a stat field.
const escapePrefix = "~"

// ErrAlreadyWritten is returned by WriteAllStats after the first call.
var ErrAlreadyWritten = errors.New("diagnostics already written")

// Stat is the payload stored at one node.
type Stat struct {
	Name               string
	Description        string
	Num                *int
	PatternDescription string
	AdditionalData     map[string]any
}

// Count returns Num or 0.
func (s Stat) Count() int {
	if s.Num == nil {
		return 0
	}
	return *s.Num
}

// StatPatch holds the fields UpdateStat overwrites. Nil fields are left alone.
type StatPatch struct {
	Name               *string
	Description        *string
	Num                *int
	PatternDescription *string
	AdditionalData     map[string]any
}

type node struct {
	stat     Stat
	children map[string]*node
	order    []string
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

func (n *node) child(name string) *node {
	c, ok := n.children[name]
	if !ok {
		c = newNode()
		n.children[name] = c
		n.order = append(n.order, name)
	}
	return c
}

// Tree is a concurrency-safe stat tree. A nil *Tree discards everything.
type Tree struct {
	mu      sync.Mutex
	root    *node
	store   crawler.BlobStore
	output  string
	written bool
	logger  *zap.Logger
}

// New returns an empty tree that writes to output through store.
func New(store crawler.BlobStore, output string, logger *zap.Logger) *Tree {
	if output == "" {
		output = DefaultOutput
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tree{root: newNode(), store: store, output: output, logger: logger}
}

// AddStat replaces the stat at path, creating intermediate nodes.
func (t *Tree) AddStat(path string, stat Stat) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lookup(path).stat = stat
}

// IncrementStat adds amount to the counter at path. Missing nodes start at 0
// and take the last path segment as their name.
func (t *Tree) IncrementStat(path string, amount int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.lookup(path)
	if n.stat.Name == "" {
		segments := split(path)
		if len(segments) > 0 {
			n.stat.Name = segments[len(segments)-1]
		}
	}
	total := n.stat.Count() + amount
	n.stat.Num = &total
}

// Increment adds one to the counter at path.
func (t *Tree) Increment(path string) {
	t.IncrementStat(path, 1)
}

// UpdateStat merges patch into the stat at path.
func (t *Tree) UpdateStat(path string, patch StatPatch) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &t.lookup(path).stat
	if patch.Name != nil {
		s.Name = *patch.Name
	}
	if patch.Description != nil {
		s.Description = *patch.Description
	}
	if patch.Num != nil {
		num := *patch.Num
		s.Num = &num
	}
	if patch.PatternDescription != nil {
		s.PatternDescription = *patch.PatternDescription
	}
	if patch.AdditionalData != nil {
		if s.AdditionalData == nil {
			s.AdditionalData = make(map[string]any, len(patch.AdditionalData))
		}
		for k, v := range patch.AdditionalData {
			s.AdditionalData[k] = v
		}
	}
}

// Get returns the stat at path without creating it.
func (t *Tree) Get(path string) (Stat, bool) {
	if t == nil {
		return Stat{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.root
	for _, seg := range split(path) {
		next, ok := n.children[seg]
		if !ok {
			return Stat{}, false
		}
		n = next
	}
	return n.stat, true
}

// Reset drops every stat and allows another write.
func (t *Tree) Reset() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.root = newNode()
	t.written = false
}

// MarshalJSON renders the tree with stat fields first and children in
// insertion order.
func (t *Tree) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("{}"), nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var buf bytes.Buffer
	if err := writeNode(&buf, t.root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteAllStats serializes the tree with four-space indentation and stores
// it. Only the first call writes.
func (t *Tree) WriteAllStats(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	if t.written {
		t.mu.Unlock()
		return ErrAlreadyWritten
	}
	t.written = true
	var raw bytes.Buffer
	err := writeNode(&raw, t.root)
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode diagnostics: %w", err)
	}
	if t.store == nil {
		return errors.New("diagnostics store is not configured")
	}

	var out bytes.Buffer
	if err := json.Indent(&out, raw.Bytes(), "", "    "); err != nil {
		return fmt.Errorf("indent diagnostics: %w", err)
	}
	uri, err := t.store.PutObject(ctx, t.output, "application/json", &out)
	if err != nil {
		return fmt.Errorf("store diagnostics: %w", err)
	}
	t.logger.Info("diagnostics written", zap.String("uri", uri))
	return nil
}

func (t *Tree) lookup(path string) *node {
	n := t.root
	for _, seg := range split(path) {
		n = n.child(seg)
	}
	return n
}

func split(path string) []string {
	parts := strings.Split(path, PathDelimiter)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeNode(buf *bytes.Buffer, n *node) error {
	buf.WriteByte('{')
	first := true
	field := func(key string, value any) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		if child, ok := value.(*node); ok {
			return writeNode(buf, child)
		}
		v, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		buf.Write(v)
		return nil
	}

	s := n.stat
	var err error
	if s.Name != "" {
		err = errors.Join(err, field("name", s.Name))
	}
	if s.Description != "" {
		err = errors.Join(err, field("description", s.Description))
	}
	if s.Num != nil {
		err = errors.Join(err, field("num", *s.Num))
	}
	if s.PatternDescription != "" {
		err = errors.Join(err, field("patternDescription", s.PatternDescription))
	}
	if s.AdditionalData != nil {
		err = errors.Join(err, field("additionalData", s.AdditionalData))
	}
	if err != nil {
		return err
	}
	for _, name := range n.order {
		if err := field(childKey(name), n.children[name]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// childKey returns the JSON key of a child segment. Segments named like a
// stat field, or already starting with the escape prefix, get one more
// prefix so keys stay unique and the original name is recoverable.
func childKey(name string) string {
	switch {
	case strings.HasPrefix(name, escapePrefix):
		return escapePrefix + name
	case name == "name", name == "description", name == "num",
		name == "patternDescription", name == "additionalData":
		return escapePrefix + name
	}
	return name
}
