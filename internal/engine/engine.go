package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/segscope/backend/internal/config"
	"github.com/segscope/backend/internal/metrics"
	"github.com/segscope/backend/internal/search"
	"github.com/segscope/backend/internal/segment"
	"github.com/segscope/backend/internal/storage"
)

// ErrNoProject is returned when a query runs before any project is open
var ErrNoProject = errors.New("no project open")

// Engine is the session context: the open project, its store and the
// result of the last successful similarity query.
type Engine struct {
	Config  config.SimilarityConfig
	Logger  *logrus.Entry
	Storage storage.ProjectStorage
	Results *ResultStore

	// State
	project *segment.Project
	mu      sync.RWMutex
	queryMu sync.Mutex

	// Stats
	stats EngineStats
}

type EngineStats struct {
	QueriesRun    int64
	QueriesFailed int64
	LastError     string
	LastDuration  time.Duration
	StartTime     time.Time
}

func NewEngine(cfg config.SimilarityConfig, logger *logrus.Entry, store storage.ProjectStorage) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = search.DefaultTopK
	}
	return &Engine{
		Config:  cfg,
		Logger:  logger,
		Storage: store,
		Results: &ResultStore{},
		stats:   EngineStats{StartTime: time.Now()},
	}
}

// OpenProject loads a stored project and makes it the active one
func (e *Engine) OpenProject(name string) error {
	project, err := e.Storage.Get(name)
	if err != nil {
		return fmt.Errorf("failed to open project %q: %w", name, err)
	}

	e.mu.Lock()
	e.project = project
	e.mu.Unlock()

	e.Logger.WithFields(logrus.Fields{
		"project":  project.Name,
		"segments": len(project.Segments),
	}).Info("Project opened")
	return nil
}

// SetProject persists the project and makes it the active one
func (e *Engine) SetProject(project *segment.Project) error {
	if err := e.Storage.Save(project); err != nil {
		return fmt.Errorf("failed to save project %q: %w", project.Name, err)
	}

	e.mu.Lock()
	e.project = project
	e.mu.Unlock()

	e.Logger.WithFields(logrus.Fields{
		"project":  project.Name,
		"segments": len(project.Segments),
	}).Info("Project installed")
	return nil
}

// Project returns the active project, or nil
func (e *Engine) Project() *segment.Project {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.project
}

// Segment returns segment idx of the active project
func (e *Engine) Segment(idx int) (segment.Segment, error) {
	p := e.Project()
	if p == nil {
		return segment.Segment{}, ErrNoProject
	}
	if idx < 0 || idx >= len(p.Segments) {
		return segment.Segment{}, fmt.Errorf("%w: %d not in [0, %d)", search.ErrInvalidIndex, idx, len(p.Segments))
	}
	return p.Segments[idx], nil
}

// ComputeSimilarSegments finds the segments most similar to target over the
// whole active project and stores the result. It blocks until done; only
// one query runs at a time. A failed query leaves the stored result as it
// was, unless ClearOnFailure is set.
func (e *Engine) ComputeSimilarSegments(target int) (*search.SimilarityResult, error) {
	e.queryMu.Lock()
	defer e.queryMu.Unlock()

	start := time.Now()
	log := e.Logger.WithField("target", target)

	project := e.Project()
	if project == nil {
		e.fail(metrics.OutcomeNoProject, start, ErrNoProject, log)
		return nil, ErrNoProject
	}
	log = log.WithField("project", project.Name)

	result, err := search.FindSimilar(project.Segments, target, e.Config.TopK)
	if err != nil {
		outcome := metrics.OutcomeVectorizationError
		if errors.Is(err, search.ErrInvalidIndex) {
			outcome = metrics.OutcomeInvalidIndex
		}
		e.fail(outcome, start, err, log)
		return nil, err
	}

	result.Project = project.Name
	e.Results.set(result)

	elapsed := time.Since(start)
	metrics.RecordQuery(metrics.OutcomeOK, elapsed, result.CorpusSize, len(result.Candidates))

	e.mu.Lock()
	e.stats.QueriesRun++
	e.stats.LastDuration = elapsed
	e.mu.Unlock()

	log.WithFields(logrus.Fields{
		"query_id":   result.QueryID,
		"candidates": len(result.Candidates),
		"duration":   elapsed,
	}).Debug("Similarity query finished")

	return result.Clone(), nil
}

// Result returns the last successful query result, if any
func (e *Engine) Result() (*search.SimilarityResult, bool) {
	return e.Results.Get()
}

// Snapshot returns a copy of the current stats
func (e *Engine) Snapshot() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

func (e *Engine) fail(outcome string, start time.Time, err error, log *logrus.Entry) {
	elapsed := time.Since(start)
	metrics.RecordQuery(outcome, elapsed, 0, 0)

	if e.Config.ClearOnFailure {
		e.Results.clear()
	}

	e.mu.Lock()
	e.stats.QueriesRun++
	e.stats.QueriesFailed++
	e.stats.LastError = err.Error()
	e.stats.LastDuration = elapsed
	e.mu.Unlock()

	log.WithError(err).WithField("outcome", outcome).Warn("Similarity query failed")
}
