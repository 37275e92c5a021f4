package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/lplay/errutil"
	"github.com/xeptore/lplay/must"
)

// Store persists Settings as a single indented JSON document.
type Store struct {
	path   string
	logger zerolog.Logger
}

func NewStore(path string, logger zerolog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the settings file. A missing or unparsable file is replaced by
// the defaults; an unparsable one is kept next to it with a .corrupt suffix.
func (s *Store) Load() (*Settings, error) {
	flawP := flaw.P{"path": s.path}

	data, err := os.ReadFile(s.path)
	if nil != err {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info().Str("path", s.path).Msg("Settings file does not exist. Writing defaults")
			return s.reset()
		}
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return nil, flaw.From(fmt.Errorf("failed to read settings file: %v", err)).Append(flawP)
	}

	out := Default()
	if err := json.Unmarshal(data, out); nil != err {
		backup := s.path + ".corrupt"
		s.logger.
			Warn().
			Err(err).
			Str("path", s.path).
			Str("backup", backup).
			Msg("Settings file is corrupt. Writing defaults")
		if err := os.Rename(s.path, backup); nil != err {
			flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
			return nil, flaw.From(fmt.Errorf("failed to move corrupt settings file aside: %v", err)).Append(flawP)
		}
		return s.reset()
	}

	for _, err := range out.normalize() {
		s.logger.Warn().Err(err).Msg("Dropping invalid audio record from settings")
	}
	return out, nil
}

func (s *Store) reset() (*Settings, error) {
	out := Default()
	if err := s.Save(out); nil != err {
		return nil, err
	}
	return out, nil
}

// Save writes v to a temporary file next to the target and renames it into
// place.
func (s *Store) Save(v *Settings) (err error) {
	flawP := flaw.P{"path": s.path}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o0755); nil != err {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return flaw.From(fmt.Errorf("failed to create settings directory: %v", err)).Append(flawP)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if nil != err {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return flaw.From(fmt.Errorf("failed to encode settings: %v", err)).Append(flawP)
	}

	tmpPath := s.path + ".tmp"
	flawP["tmp_path"] = tmpPath
	if err := writeSynced(tmpPath, data); nil != err {
		return err
	}

	if err := os.Rename(tmpPath, s.path); nil != err {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return flaw.From(fmt.Errorf("failed to move settings file into place: %v", err)).Append(flawP)
	}

	return nil
}

func writeSynced(path string, data []byte) (err error) {
	flawP := flaw.P{"path": path}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o0644)
	if nil != err {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return flaw.From(fmt.Errorf("failed to open settings file for write: %v", err)).Append(flawP)
	}
	defer func() {
		if closeErr := f.Close(); nil != closeErr {
			flawP["err_debug_tree"] = errutil.Tree(closeErr).FlawP()
			closeErr = flaw.From(fmt.Errorf("failed to close settings file: %v", closeErr)).Append(flawP)
			if nil != err {
				err = must.BeFlaw(err).Join(closeErr)
			} else {
				err = closeErr
			}
		}
	}()

	if _, err := f.Write(data); nil != err {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return flaw.From(fmt.Errorf("failed to write settings content: %v", err)).Append(flawP)
	}

	if err := f.Sync(); nil != err {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return flaw.From(fmt.Errorf("failed to sync settings file: %v", err)).Append(flawP)
	}

	return nil
}
