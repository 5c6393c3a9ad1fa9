package mlmodel

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which capability a persisted model serves.
type Kind string

const (
	KindAnomaly     Kind = "anomaly"
	KindDrift       Kind = "drift"
	KindCalibration Kind = "calibration"
)

var Kinds = []Kind{KindAnomaly, KindDrift, KindCalibration}

// ErrArtifactNotFound covers both a missing artifact and one that fails to
// decode; callers treat the two identically and fall back to a heuristic.
var ErrArtifactNotFound = errors.New("mlmodel: artifact not found")

// ArtifactInfo describes one persisted model.
type ArtifactInfo struct {
	Kind      Kind      `json:"kind"`
	SensorID  uint      `json:"sensor_id"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
}

// Store is a filesystem blob store for trained model artifacts, keyed by
// (kind, sensor). Writes are atomic (temp file + rename) and serialized per
// key; reads may run concurrently with unrelated writes.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mlmodel: create store dir: %w", err)
	}
	return &Store{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *Store) path(kind Kind, sensorID uint) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_model_%d.gob", kind, sensorID))
}

func (s *Store) keyLock(kind Kind, sensorID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(kind) + "/" + strconv.FormatUint(uint64(sensorID), 10)
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Put persists model under (kind, sensorID). A half-written file is never
// observable: the temp file is renamed into place only after a full encode.
func (s *Store) Put(kind Kind, sensorID uint, model any) error {
	lock := s.keyLock(kind, sensorID)
	lock.Lock()
	defer lock.Unlock()

	final := s.path(kind, sensorID)
	tmp := final + ".tmp-" + uuid.NewString()

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("mlmodel: create temp artifact: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(model); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("mlmodel: encode artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("mlmodel: close temp artifact: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("mlmodel: publish artifact: %w", err)
	}
	return nil
}

// Get decodes the artifact for (kind, sensorID) into out. Missing and
// corrupt artifacts both surface as ErrArtifactNotFound.
func (s *Store) Get(kind Kind, sensorID uint, out any) error {
	f, err := os.Open(s.path(kind, sensorID))
	if err != nil {
		return ErrArtifactNotFound
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(out); err != nil {
		return ErrArtifactNotFound
	}
	return nil
}

// Exists reports whether an artifact is present for (kind, sensorID).
func (s *Store) Exists(kind Kind, sensorID uint) bool {
	_, err := os.Stat(s.path(kind, sensorID))
	return err == nil
}

// Age returns the time since the artifact was written.
func (s *Store) Age(kind Kind, sensorID uint) (time.Duration, error) {
	info, err := os.Stat(s.path(kind, sensorID))
	if err != nil {
		return 0, ErrArtifactNotFound
	}
	return time.Since(info.ModTime()), nil
}

// Delete removes the artifact for (kind, sensorID) if present.
func (s *Store) Delete(kind Kind, sensorID uint) error {
	lock := s.keyLock(kind, sensorID)
	lock.Lock()
	defer lock.Unlock()
	err := os.Remove(s.path(kind, sensorID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List enumerates all persisted artifacts.
func (s *Store) List() ([]ArtifactInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("mlmodel: list artifacts: %w", err)
	}
	var out []ArtifactInfo
	for _, e := range entries {
		kind, sensorID, ok := parseArtifactName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, ArtifactInfo{
			Kind:      kind,
			SensorID:  sensorID,
			CreatedAt: info.ModTime(),
			SizeBytes: info.Size(),
		})
	}
	return out, nil
}

func parseArtifactName(name string) (Kind, uint, bool) {
	if !strings.HasSuffix(name, ".gob") {
		return "", 0, false
	}
	base := strings.TrimSuffix(name, ".gob")
	parts := strings.Split(base, "_model_")
	if len(parts) != 2 {
		return "", 0, false
	}
	id, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return "", 0, false
	}
	kind := Kind(parts[0])
	switch kind {
	case KindAnomaly, KindDrift, KindCalibration:
		return kind, uint(id), true
	}
	return "", 0, false
}
