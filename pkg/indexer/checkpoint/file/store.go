// Package file implements a CheckpointStore backed by a single JSON document
// on disk (with a small YAML descriptor written beside it): the simplest of
// the three backends, useful for single-process
// deployments and for tests that don't want a database dependency.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rodolfodpk/bittensor-indexer/pkg/indexer"
)

const metaFormatVersion = 1

// document is the on-disk shape of the primary checkpoint file, written
// atomically on every Save.
type document struct {
	LastProcessedBlock uint64    `json:"last_processed_block"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// sidecarMeta is a small human-readable descriptor written next to the
// primary checkpoint file (path + ".meta.yaml"), so an operator or a
// migration tool inspecting the data directory doesn't need to parse the
// JSON document to know which backend and format version produced it.
type sidecarMeta struct {
	Backend       string `yaml:"backend"`
	FormatVersion int    `yaml:"format_version"`
}

// Store persists the checkpoint as a JSON document at path, replacing it
// atomically via write-temp-then-rename so a crash mid-write never leaves a
// half-written file behind. A best-effort YAML sidecar is refreshed on every
// save; a sidecar write failure is logged, not fatal, since it carries no
// data the engine needs back.
type Store struct {
	mu   sync.Mutex
	path string
}

// New opens (without yet reading) a file-backed CheckpointStore at path. The
// parent directory must already exist.
func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) metaPath() string {
	return s.path + ".meta.yaml"
}

func (s *Store) writeSidecar() {
	data, err := yaml.Marshal(sidecarMeta{Backend: "file", FormatVersion: metaFormatVersion})
	if err != nil {
		log.Printf("indexer: checkpoint sidecar marshal failed: %v", err)
		return
	}
	if err := os.WriteFile(s.metaPath(), data, 0o644); err != nil {
		log.Printf("indexer: checkpoint sidecar write failed: %v", err)
	}
}

func (s *Store) Load(ctx context.Context) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, indexer.CheckpointErrorFor("load", "file", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, false, indexer.CheckpointErrorFor("load", "file", fmt.Errorf("corrupt checkpoint file: %w", err))
	}
	return doc.LastProcessedBlock, true, nil
}

func (s *Store) Save(ctx context.Context, blockNumber uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := document{LastProcessedBlock: blockNumber, UpdatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return indexer.CheckpointErrorFor("save", "file", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return indexer.CheckpointErrorFor("save", "file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return indexer.CheckpointErrorFor("save", "file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return indexer.CheckpointErrorFor("save", "file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return indexer.CheckpointErrorFor("save", "file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return indexer.CheckpointErrorFor("save", "file", err)
	}
	s.writeSidecar()
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}
