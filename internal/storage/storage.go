package storage

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/segscope/backend/internal/config"
	"github.com/segscope/backend/internal/segment"
)

// ErrProjectNotFound is returned by Get when no project has the given name
var ErrProjectNotFound = errors.New("project not found")

// ProjectStorage defines the interface for persisting projects
type ProjectStorage interface {
	Save(project *segment.Project) error
	Get(name string) (*segment.Project, error)
	List() ([]string, error)
	Close() error
}

// New opens the backend selected in cfg
func New(cfg config.StorageConfig, logger *logrus.Entry) (ProjectStorage, error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		logger.WithField("dir", cfg.DataDir).Info("Using file project storage")
		return NewFileStorage(cfg.DataDir)
	case config.BackendSQLite:
		logger.WithField("path", cfg.SQLitePath).Info("Using SQLite project storage")
		return NewSQLiteStorage(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
