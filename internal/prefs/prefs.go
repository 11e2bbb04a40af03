// Package prefs stores the user's string preferences in a JSON file under
// the XDG config directory.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/goccy/go-json"
)

const (
	prefsFileName = "prefs.json"
	appDirName    = "jira-panel"

	notSet = "__NOT_SET"
)

// Preference keys. Every stored value is keyed by one of these.
const (
	KeyClientID        = "clientId"
	KeySharedSecret    = "sharedSecret"
	KeyAddonURL        = "addonUrl"
	KeyJiraHost        = "jiraHost"
	KeyAuthorized      = "authorized"
	KeyAuthToken       = "authToken"
	KeyAuthTokenExpiry = "authTokenExpiry"
)

// ErrNotSet is returned when a key has no value.
var ErrNotSet = errors.New("preference not set")

// Store reads and writes preferences. Every call goes to disk so that
// separate processes see each other's changes.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore uses dir, or the default XDG config path when dir is empty. The
// directory is created on the first write.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = defaultDir()
	}
	return &Store{dir: dir}
}

func (s *Store) Path() string {
	return filepath.Join(s.dir, prefsFileName)
}

func (s *Store) GetString(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok || !isValueSet(v) {
		return "", fmt.Errorf("%w: %q", ErrNotSet, key)
	}
	return v, nil
}

func (s *Store) GetInt(key string) (int64, error) {
	v, err := s.GetString(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("preference %q: %w", key, err)
	}
	return n, nil
}

func (s *Store) SetString(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value
	return s.save(values)
}

// IsSet reports whether every key has a value.
func (s *Store) IsSet(keys ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return false
	}
	for _, k := range keys {
		if !isValueSet(values[k]) {
			return false
		}
	}
	return true
}

func (s *Store) Unset(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(values, k)
	}
	return s.save(values)
}

func isValueSet(v string) bool {
	return v != "" && v != notSet && v != "null"
}

func (s *Store) load() (map[string]string, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("reading prefs: %w", err)
	}
	values := make(map[string]string)
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing prefs: %w", err)
	}
	return values, nil
}

// save writes through a temp file and rename so readers never see a
// partial file.
func (s *Store) save(values map[string]string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating prefs dir: %w", err)
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling prefs: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, ".prefs-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("renaming prefs file: %w", err)
	}
	committed = true
	return nil
}

// defaultDir returns ~/.config/jira-panel, respecting XDG_CONFIG_HOME.
func defaultDir() string {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", appDirName)
}
