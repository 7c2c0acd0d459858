// Package filestore persists the credential store as one file per key in a data folder,
// the on-disk counterpart of browser local storage.
package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/campus-auth-client/credentials"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
	fileExt  = ".cred"
)

var _ credentials.Backend = (*Backend)(nil)

type Backend struct {
	folder string
	log    zerolog.Logger
	lock   sync.Mutex
}

// New creates the folder if needed. It is the only fallible step: once a Backend exists
// its operations never return errors.
func New(folder string, log zerolog.Logger) (*Backend, error) {
	if err := os.MkdirAll(folder, dirPerm); err != nil {
		return nil, fmt.Errorf("[filestore New] creating %s: %w", folder, err)
	}
	return &Backend{folder: folder, log: log}, nil
}

func (b *Backend) path(key string) string {
	return filepath.Join(b.folder, key+fileExt)
}

func (b *Backend) Get(key string) (string, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()

	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false
	}
	if err != nil {
		b.log.Error().Err(err).Str("key", key).Msg("reading credential file")
		return "", false
	}
	return string(data), true
}

// Set writes to a temporary file and renames it over the key so a crash never leaves a
// truncated value behind.
func (b *Backend) Set(key, value string) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if err := b.write(key, value); err != nil {
		b.log.Error().Err(err).Str("key", key).Msg("writing credential file")
	}
}

func (b *Backend) write(key, value string) error {
	tmp, err := os.CreateTemp(b.folder, key+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, b.path(key))
}

func (b *Backend) Delete(key string) {
	b.lock.Lock()
	defer b.lock.Unlock()

	err := os.Remove(b.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		b.log.Error().Err(err).Str("key", key).Msg("removing credential file")
	}
}
