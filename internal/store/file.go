package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/internal/core/port"
	"go.uber.org/zap"
)

type fileContent struct {
	Meters map[string]*meterRecord `json:"meters"`
}

type meterRecord struct {
	State      *domain.MeterState       `json:"state,omitempty"`
	Credential *domain.DeviceCredential `json:"credential,omitempty"`
}

// FileStore keeps every meter in a single JSON document. Writes replace the
// file atomically through a temporary file in the same directory.
type FileStore struct {
	mu      sync.Mutex
	path    string
	content fileContent
	logger  *zap.Logger
}

func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		content: fileContent{Meters: map[string]*meterRecord{}},
		logger:  logger.With(zap.String("store", path)),
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("state file not found, starting empty")
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.content); err != nil {
			return nil, fmt.Errorf("decode state file: %w", err)
		}
	}
	if s.content.Meters == nil {
		s.content.Meters = map[string]*meterRecord{}
	}
	return s, nil
}

func (s *FileStore) LoadMeterState(meterId string) (domain.MeterState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.content.Meters[meterId]
	if !ok || rec.State == nil {
		return domain.MeterState{}, false, nil
	}
	return *rec.State, true, nil
}

func (s *FileStore) SaveMeterState(meterId string, state domain.MeterState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(meterId).State = &state
	return s.flush()
}

func (s *FileStore) LoadCredential(meterId string) (domain.DeviceCredential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.content.Meters[meterId]
	if !ok || rec.Credential == nil {
		return domain.DeviceCredential{}, false, nil
	}
	return *rec.Credential, true, nil
}

func (s *FileStore) SaveCredential(meterId string, credential domain.DeviceCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(meterId).Credential = &credential
	return s.flush()
}

func (s *FileStore) record(meterId string) *meterRecord {
	rec, ok := s.content.Meters[meterId]
	if !ok {
		rec = &meterRecord{}
		s.content.Meters[meterId] = rec
	}
	return rec
}

func (s *FileStore) flush() error {
	data, err := json.MarshalIndent(s.content, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state file: %w", err)
	}
	// the file holds api keys
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// ensure interface compliance
var _ port.StateStore = (*FileStore)(nil)
