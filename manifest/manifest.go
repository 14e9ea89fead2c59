package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hupe1980/mdstore/internal/fs"
)

const (
	ManifestFileName = "MANIFEST"
	CurrentFileName  = "CURRENT"
	CurrentVersion   = 1
)

// ErrNotFound is returned by Load when no manifest has been saved yet.
var ErrNotFound = errors.New("manifest: not found")

// Manifest describes the file-backed state of a store at a point in time:
// where every box's events live in the backing file and what their cached
// aggregates were.
type Manifest struct {
	Version    int         `json:"version"`
	ID         uint64      `json:"id"`
	SessionID  string      `json:"session_id"`
	Dimensions int         `json:"dimensions"`
	EventKind  string      `json:"event_kind"`
	FileLength uint64      `json:"file_length"`
	FreeSpace  []BlockInfo `json:"free_space,omitempty"`
	Boxes      []BoxInfo   `json:"boxes"`
}

// BlockInfo is a free range of records in the backing file.
type BlockInfo struct {
	Position uint64 `json:"position"`
	Size     uint64 `json:"size"`
}

// BoxInfo is the durable state of one box. Signal and ErrorSquared are
// meaningless for masked boxes and stored as zero.
type BoxInfo struct {
	ID           uint64       `json:"id"`
	Depth        uint32       `json:"depth"`
	Extents      [][2]float32 `json:"extents"`
	Signal       float64      `json:"signal"`
	ErrorSquared float64      `json:"error_squared"`
	Position     uint64       `json:"position"`
	Size         uint64       `json:"size"`
	Saved        bool         `json:"saved"`
	Masked       bool         `json:"masked,omitempty"`
	Centroid     []float32    `json:"centroid,omitempty"`
}

// Store manages the manifest file and atomic updates.
type Store struct {
	fs  fs.FileSystem
	dir string
	mu  sync.Mutex
}

// NewStore creates a new manifest store.
func NewStore(fsys fs.FileSystem, dir string) *Store {
	if fsys == nil {
		fsys = fs.Default
	}
	return &Store{
		fs:  fsys,
		dir: dir,
	}
}

func (s *Store) readFile(path string) ([]byte, error) {
	f, err := s.fs.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Load loads the current manifest. It returns ErrNotFound if none exists.
func (s *Store) Load() (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*Manifest, error) {
	content, err := s.readFile(filepath.Join(s.dir, CurrentFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(string(content))
	data, err := s.readFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", name, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode %s: %w", name, err)
	}

	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported manifest version: %d (expected %d)", m.Version, CurrentVersion)
	}

	return &m, nil
}

// Save atomically saves a new manifest. m.ID is advanced past the id of
// the current manifest; the previous manifest file is removed once CURRENT
// points at the new one.
func (s *Store) Save(m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var previous string
	if cur, err := s.load(); err == nil {
		previous = fileName(cur.ID)
		if m.ID < cur.ID {
			m.ID = cur.ID
		}
	}

	m.Version = CurrentVersion
	m.ID++

	filename := fileName(m.ID)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: encode: %w", err)
	}

	if err := s.writeAtomic(filename, data); err != nil {
		return err
	}
	if err := s.syncDir(); err != nil {
		return err
	}

	if err := s.writeAtomic(CurrentFileName, []byte(filename)); err != nil {
		return err
	}
	if err := s.syncDir(); err != nil {
		return err
	}

	if previous != "" && previous != filename {
		// The old manifest is unreachable now; failing to remove it only
		// leaves garbage behind.
		_ = s.fs.Remove(filepath.Join(s.dir, previous))
	}
	return nil
}

func fileName(id uint64) string {
	return fmt.Sprintf("%s-%06d.json", ManifestFileName, id)
}

// writeAtomic writes data to name via a synced temp file and a rename.
func (s *Store) writeAtomic(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	tmpPath := path + ".tmp"

	f, err := s.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(tmpPath)
		return err
	}

	if err := s.fs.Rename(tmpPath, path); err != nil {
		s.fs.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *Store) syncDir() error {
	f, err := s.fs.OpenFile(s.dir, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
