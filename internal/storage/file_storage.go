package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/segscope/backend/internal/segment"
)

var readableExts = []string{".json", ".yaml", ".yml"}

// FileStorage implements ProjectStorage using the local file system.
// Projects are written as JSON; hand-authored YAML files are read too.
type FileStorage struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStorage creates a new file-based storage
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStorage{
		baseDir: baseDir,
	}, nil
}

// Save writes the project to a JSON file
func (fs *FileStorage) Save(project *segment.Project) error {
	if project.Name == "" {
		return errors.New("project name is required")
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := filepath.Join(fs.baseDir, fileStem(project.Name)+".json")

	data, err := json.MarshalIndent(project, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// Get retrieves a project from disk, trying each readable extension in turn
func (fs *FileStorage) Get(name string) (*segment.Project, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	base := fileStem(name)
	for _, ext := range readableExts {
		path := filepath.Join(fs.baseDir, base+ext)
		project, err := readProjectFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if project.Name == "" {
			project.Name = name
		}
		// A file whose stored name disagrees belongs to another project
		if project.Name != name {
			continue
		}
		return project, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
}

// List returns the names of every stored project, sorted
func (fs *FileStorage) List() ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	seen := make(map[string]bool)
	names := make([]string, 0)
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || !isReadable(ext) {
			continue
		}
		project, err := readProjectFile(filepath.Join(fs.baseDir, entry.Name()))
		if err != nil {
			continue
		}
		name := project.Name
		if name == "" {
			stem := strings.TrimSuffix(entry.Name(), ext)
			if name, err = url.PathUnescape(stem); err != nil {
				name = stem
			}
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op for file storage
func (fs *FileStorage) Close() error {
	return nil
}

func readProjectFile(path string) (*segment.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var project segment.Project
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &project)
	default:
		err = json.Unmarshal(data, &project)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}
	return &project, nil
}

func isReadable(ext string) bool {
	for _, e := range readableExts {
		if e == ext {
			return true
		}
	}
	return false
}

// fileStem maps a project name to a file stem. The mapping is reversible,
// so distinct names never share a file.
func fileStem(name string) string {
	return url.PathEscape(name)
}
