package session

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"engagement-server/pkg/errors"
)

// Session directory contents. Each session is isolated under its own
// directory keyed by session ID; the analysis artifact is the only
// persisted output.
const (
	PresenterFile = "presenter.webm"
	AudienceFile  = "audience.webm"
	ArtifactFile  = "analysis.json"
)

// Store manages the on-disk layout of recording sessions.
type Store struct {
	logger *logrus.Logger
	root   string
}

// NewStore creates the session root if needed and returns a store over it.
func NewStore(logger *logrus.Logger, root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating session root")
	}
	return &Store{logger: logger, root: root}, nil
}

// NewSessionID generates a fresh session identifier.
func (s *Store) NewSessionID() string {
	return uuid.NewString()
}

// Dir returns the directory for a session.
func (s *Store) Dir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

// EnsureSession creates the session directory if it does not exist.
func (s *Store) EnsureSession(sessionID string) error {
	return os.MkdirAll(s.Dir(sessionID), 0o755)
}

// PresenterVideo returns the presenter recording path, failing with a
// not-found class error when the file is absent. The presenter video is a
// hard precondition for analysis.
func (s *Store) PresenterVideo(sessionID string) (string, error) {
	path := filepath.Join(s.Dir(sessionID), PresenterFile)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrap(errors.ErrPresenterMissing, "presenter video not found").
				WithField("session_id", sessionID)
		}
		return "", errors.Wrap(err, "checking presenter video")
	}
	return path, nil
}

// AudienceVideo returns the audience recording path and whether it exists.
// The audience recording is optional.
func (s *Store) AudienceVideo(sessionID string) (string, bool) {
	path := filepath.Join(s.Dir(sessionID), AudienceFile)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// ArtifactPath returns the analysis artifact path for a session.
func (s *Store) ArtifactPath(sessionID string) string {
	return filepath.Join(s.Dir(sessionID), ArtifactFile)
}

// WriteAnalysis persists the analysis artifact atomically: the document is
// written to a temporary file in the same directory and renamed into
// place, so a reader never observes a partially-written artifact.
func (s *Store) WriteAnalysis(sessionID string, v interface{}) (string, error) {
	if err := s.EnsureSession(sessionID); err != nil {
		return "", errors.Wrap(err, "creating session directory")
	}
	final := s.ArtifactPath(sessionID)

	tmp, err := os.CreateTemp(s.Dir(sessionID), ArtifactFile+".tmp-*")
	if err != nil {
		return "", errors.Wrap(errors.ErrArtifactWrite, err.Error())
	}
	tmpPath := tmp.Name()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", errors.Wrap(errors.ErrArtifactWrite, err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", errors.Wrap(errors.ErrArtifactWrite, err.Error())
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return "", errors.Wrap(errors.ErrArtifactWrite, err.Error())
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"artifact":   final,
	}).Info("Analysis artifact written")
	return final, nil
}

// ReadAnalysis loads the analysis artifact into v.
func (s *Store) ReadAnalysis(sessionID string, v interface{}) error {
	data, err := os.ReadFile(s.ArtifactPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(errors.ErrNotFound, "no analysis artifact").
				WithField("session_id", sessionID)
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// InvalidateAnalysis removes any prior artifact for the session. A re-run
// must call this first so a reader never sees a stale result alongside a
// new upload.
func (s *Store) InvalidateAnalysis(sessionID string) error {
	err := os.Remove(s.ArtifactPath(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing stale analysis artifact")
	}
	if err == nil {
		s.logger.WithField("session_id", sessionID).Debug("Stale analysis artifact invalidated")
	}
	return nil
}
