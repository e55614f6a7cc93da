package persistence

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// FileStore keeps one file per session under a directory. Session ids are
// used as file names, so they must not contain path separators.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create session directory %s", dir)
	}

	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(sessionID string) (string, error) {
	if sessionID == "" || sessionID != filepath.Base(sessionID) {
		return "", errors.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(s.dir, sessionID+".json"), nil
}

func (s *FileStore) Get(ctx context.Context, sessionID string) ([]byte, error) {
	path, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not read session %s", sessionID)
	}

	return b, nil
}

func (s *FileStore) Set(ctx context.Context, sessionID string, payload []byte) error {
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}

	// write to a temp file first so a crash mid-write cannot corrupt the
	// previous snapshot
	tmp := path + ".tmp"
	err = os.WriteFile(tmp, payload, 0644)
	if err != nil {
		return errors.Wrapf(err, "could not write session %s", sessionID)
	}

	err = os.Rename(tmp, path)
	if err != nil {
		return errors.Wrapf(err, "could not commit session %s", sessionID)
	}

	log.Debug().Str("session_id", sessionID).Int("bytes", len(payload)).Msg("session saved")

	return nil
}

func (s *FileStore) Delete(ctx context.Context, sessionID string) error {
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "could not delete session %s", sessionID)
	}

	return nil
}

var _ Store = &FileStore{}
