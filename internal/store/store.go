package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/carousell/ct-go/pkg/logger"
	"github.com/ofirdahan/poalim-chat/internal/config"
	"github.com/ofirdahan/poalim-chat/internal/models"
)

const tmpSuffix = ".tmp"

// Store persists the chat document. Load never fails: a missing, unreadable
// or structurally invalid file yields an empty document so a corrupted disk
// state can never keep the server from starting.
type Store interface {
	Load() *models.PersistedDocument
	Save(doc *models.PersistedDocument) error
}

type fileStore struct {
	mu   sync.Mutex
	dir  string
	path string
	log  *logger.Logger
}

func New(conf *config.Config) Store {
	return &fileStore{
		dir:  conf.Store.DataDir,
		path: filepath.Join(conf.Store.DataDir, conf.Store.FileName),
		log:  logger.MustNamed("store"),
	}
}

func (s *fileStore) Load() *models.PersistedDocument {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warnw("read chat db failed, starting empty", "path", s.path, "error", err)
		}
		return models.EmptyDocument()
	}

	doc := &models.PersistedDocument{}
	if err := json.Unmarshal(raw, doc); err != nil {
		s.log.Warnw("parse chat db failed, starting empty", "path", s.path, "error", err)
		return models.EmptyDocument()
	}
	if doc.Rooms == nil {
		doc.Rooms = map[string]models.PersistedRoom{}
	}
	return doc
}

// Save writes the whole document atomically: marshal, write a temp file in
// the same directory, rename over the target. A crash mid-write leaves the
// previous good state untouched.
func (s *fileStore) Save(doc *models.PersistedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chat db: %w", err)
	}

	tmp := s.path + tmpSuffix
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write temp chat db: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace chat db: %w", err)
	}
	return nil
}
