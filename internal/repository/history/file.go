package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/councillor-bot/councillor-deploy/internal/config"
	domain "github.com/councillor-bot/councillor-deploy/internal/domain/deploy"
)

// Repository defines persistence operations for the deploy history.
type Repository interface {
	Load(ctx context.Context) (map[string]*domain.Record, error)
	Save(ctx context.Context, record *domain.Record) error
}

// FileRepository persists the deploy history to a JSON file on disk,
// keyed by target name and keeping the latest record per target.
type FileRepository struct {
	// path is the filesystem location of the JSON history file.
	path string
	// mu protects concurrent access to the history file.
	mu sync.Mutex
}

// ErrNotFound is returned when the history file does not exist yet.
var ErrNotFound = errors.New("history not found")

// errRecordNotSet is returned when a nil record is passed to Save.
var errRecordNotSet = errors.New("record is not set")

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the history from disk.
func (r *FileRepository) Load(_ context.Context) (map[string]*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load()
}

// Save stores the record as the latest deploy of its target.
func (r *FileRepository) Save(_ context.Context, record *domain.Record) error {
	if record == nil {
		return errRecordNotSet
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if errors.Is(err, ErrNotFound) {
		records = make(map[string]*domain.Record, 1)
	} else if err != nil {
		return err
	}

	records[record.Target] = record.Clone()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}

	return nil
}

// load reads and decodes the history file. Callers hold the mutex.
func (r *FileRepository) load() (map[string]*domain.Record, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read history file: %w", err)
	}

	var records map[string]*domain.Record
	if err = json.Unmarshal(contents, &records); err != nil {
		return nil, fmt.Errorf("decode history file: %w", err)
	}

	return records, nil
}
