package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/zapic/internal/bridge"
	"github.com/GriffinCanCode/zapic/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/zapic/internal/page"
)

const (
	dirName          = "zapic"
	webPageFile      = "web-page.gz"
	installationFile = "installation.gz"
	eventsFile       = "events.gz"
	shareDir         = "share"

	maxAttempts = 3
)

var ErrCorrupt = errors.New("cache: corrupt entry")

// Store persists the web page, installation id and event backlog as gzip
// compressed JSON files under <dir>/zapic.
type Store struct {
	root    string
	logger  *zap.Logger
	metrics *monitoring.Metrics

	// mu serialises access per store so concurrent writers cannot interleave
	// a read with a half-renamed file.
	mu sync.Mutex
}

// New creates a store rooted at dir/zapic, creating the directory.
func New(dir string, logger *zap.Logger, metrics *monitoring.Metrics) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	root := filepath.Join(dir, dirName)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &Store{root: root, logger: logger, metrics: metrics}, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

type webPageEntry struct {
	HTML            string            `json:"html"`
	Headers         map[string]string `json:"headers"`
	LastValidatedAt int64             `json:"lastValidatedAt,omitempty"`
}

// ReadWebPage returns the cached page. A missing or corrupt entry reports
// false.
func (s *Store) ReadWebPage() (*page.CachedPage, bool) {
	var entry webPageEntry
	if !s.read(webPageFile, &entry) {
		return nil, false
	}

	var validated time.Time
	if entry.LastValidatedAt > 0 {
		validated = time.UnixMilli(entry.LastValidatedAt)
	}
	return page.New(entry.HTML, entry.Headers, validated), true
}

// WriteWebPage replaces the cached page.
func (s *Store) WriteWebPage(p *page.CachedPage) error {
	if p == nil {
		return fmt.Errorf("cannot cache nil page")
	}

	entry := webPageEntry{
		HTML:    p.HTML,
		Headers: p.Headers,
	}
	if !p.LastValidatedAt.IsZero() {
		entry.LastValidatedAt = p.LastValidatedAt.UnixMilli()
	}
	return s.write(webPageFile, entry)
}

type installationEntry struct {
	ID string `json:"id"`
}

// ReadInstallationID returns the persisted installation id.
func (s *Store) ReadInstallationID() (uuid.UUID, bool) {
	var entry installationEntry
	if !s.read(installationFile, &entry) {
		return uuid.Nil, false
	}

	id, err := uuid.Parse(entry.ID)
	if err != nil || id == uuid.Nil {
		s.discard(installationFile, fmt.Errorf("%w: invalid installation id", ErrCorrupt))
		return uuid.Nil, false
	}
	return id, true
}

// WriteInstallationID persists id.
func (s *Store) WriteInstallationID(id uuid.UUID) error {
	return s.write(installationFile, installationEntry{ID: id.String()})
}

// ReadEvents returns the persisted event backlog. Entries of unknown kind are
// skipped.
func (s *Store) ReadEvents() ([]bridge.Event, bool) {
	var entries []bridge.Event
	if !s.read(eventsFile, &entries) {
		return nil, false
	}

	events := entries[:0]
	for _, e := range entries {
		if !e.Kind.Valid() {
			s.logger.Warn("Skipping cached event of unknown kind", zap.String("kind", string(e.Kind)))
			continue
		}
		events = append(events, e)
	}
	return events, true
}

// WriteEvents persists the event backlog, replacing any previous one.
func (s *Store) WriteEvents(events []bridge.Event) error {
	if events == nil {
		events = []bridge.Event{}
	}
	return s.write(eventsFile, events)
}

// DeleteEvents removes the persisted backlog.
func (s *Store) DeleteEvents() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(filepath.Join(s.root, eventsFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}

// read decodes the named entry into v, retrying I/O errors. Corrupt entries
// are deleted.
func (s *Store) read(name string, v any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.root, name)

	var (
		data []byte
		err  error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		data, err = os.ReadFile(path)
		if err == nil || os.IsNotExist(err) {
			break
		}
		s.logger.Debug("Cache read failed",
			zap.String("entry", name),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	if os.IsNotExist(err) {
		s.metrics.RecordCacheOp(name, "read", "miss")
		return false
	}
	if err != nil {
		s.logger.Warn("Giving up reading cache entry", zap.String("entry", name), zap.Error(err))
		s.metrics.RecordCacheOp(name, "read", "error")
		return false
	}

	if err := decode(data, v); err != nil {
		s.discardLocked(name, err)
		return false
	}

	s.metrics.RecordCacheOp(name, "read", "hit")
	return true
}

// write encodes v and atomically replaces the named entry.
func (s *Store) write(name string, v any) error {
	data, err := encode(v)
	if err != nil {
		s.metrics.RecordCacheOp(name, "write", "error")
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = s.replace(name, data); err == nil {
			s.metrics.RecordCacheOp(name, "write", "ok")
			return nil
		}
		s.logger.Debug("Cache write failed",
			zap.String("entry", name),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	s.logger.Warn("Giving up writing cache entry", zap.String("entry", name), zap.Error(err))
	s.metrics.RecordCacheOp(name, "write", "error")
	return fmt.Errorf("failed to write %s after %d attempts: %w", name, maxAttempts, err)
}

// replace writes data to a temp file in the store and renames it over name.
func (s *Store) replace(name string, data []byte) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.root, name+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(s.root, name)); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *Store) discard(name string, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discardLocked(name, cause)
}

func (s *Store) discardLocked(name string, cause error) {
	s.logger.Warn("Deleting corrupt cache entry", zap.String("entry", name), zap.Error(cause))
	s.metrics.RecordCacheOp(name, "read", "corrupt")

	if err := os.Remove(filepath.Join(s.root, name)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to delete corrupt cache entry", zap.String("entry", name), zap.Error(err))
	}
}

func encode(v any) ([]byte, error) {
	raw, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v any) error {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := sonic.ConfigStd.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}
