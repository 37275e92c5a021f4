package track

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/lplay/errutil"
	"github.com/xeptore/lplay/must"
)

type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// Track is one playable audio item and its persisted playback state.
type Track struct {
	ID          string  `json:"id"`
	Kind        Kind    `json:"kind"`
	FilePath    string  `json:"filepath"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	Album       string  `json:"album"`
	Year        string  `json:"year"`
	Duration    float64 `json:"duration"`
	Ext         string  `json:"ext"`
	Channels    int     `json:"channels"`
	SampleRate  int     `json:"sample_rate"`
	Bitrate     int     `json:"bitrate"`
	Position    float64 `json:"position"`
	Listened    bool    `json:"listened"`
	Thumbnail   string  `json:"thumbnail"`
	SourceURL   string  `json:"url,omitempty"`
	DownloadURL string  `json:"download_url,omitempty"`
	Downloaded  bool    `json:"downloaded"`
	FileSize    int64   `json:"filesize"`
	Description string  `json:"description,omitempty"`
	UploadDate  string  `json:"upload_date,omitempty"`
}

type InvalidError struct {
	ID     string
	Field  string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid track %q: %s %s", e.ID, e.Field, e.Reason)
}

func (t *Track) Validate() error {
	switch {
	case t.ID == "":
		return &InvalidError{ID: t.ID, Field: "id", Reason: "is empty"}
	case t.Duration < 0:
		return &InvalidError{ID: t.ID, Field: "duration", Reason: "is negative"}
	case t.Position < 0 || t.Position > 1:
		return &InvalidError{ID: t.ID, Field: "position", Reason: "is out of [0, 1] range"}
	}

	switch t.Kind {
	case KindLocal:
		if t.FilePath == "" {
			return &InvalidError{ID: t.ID, Field: "filepath", Reason: "is empty"}
		}
	case KindRemote:
		if t.DownloadURL == "" {
			return &InvalidError{ID: t.ID, Field: "download_url", Reason: "is empty"}
		}
		if t.Downloaded && t.FilePath == "" {
			return &InvalidError{ID: t.ID, Field: "filepath", Reason: "is empty for a downloaded track"}
		}
	default:
		return &InvalidError{ID: t.ID, Field: "kind", Reason: fmt.Sprintf("%q is not supported", t.Kind)}
	}

	return nil
}

// SameAs reports identity equality. Attributes are not compared.
func (t *Track) SameAs(other *Track) bool {
	return nil != t && nil != other && t.ID == other.ID
}

func (t *Track) IsRemote() bool {
	return t.Kind == KindRemote
}

func (t *Track) Playable() bool {
	if t.IsRemote() {
		return t.Downloaded && t.FilePath != ""
	}
	return t.FilePath != ""
}

func (t *Track) Clone() *Track {
	c := *t
	return &c
}

func (t *Track) FlawP() flaw.P {
	return flaw.P{
		"id":         t.ID,
		"kind":       t.Kind,
		"filepath":   t.FilePath,
		"title":      t.Title,
		"duration":   t.Duration,
		"position":   t.Position,
		"downloaded": t.Downloaded,
		"url":        t.SourceURL,
	}
}

// HashFile returns the hex MD5 digest of the file contents, used as the
// identity of local tracks.
func HashFile(path string) (sum string, err error) {
	flawP := flaw.P{"path": path}

	f, err := os.Open(path)
	if nil != err {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return "", flaw.From(fmt.Errorf("failed to open file for hashing: %v", err)).Append(flawP)
	}
	defer func() {
		if closeErr := f.Close(); nil != closeErr {
			flawP["err_debug_tree"] = errutil.Tree(closeErr).FlawP()
			closeErr = flaw.From(fmt.Errorf("failed to close hashed file: %v", closeErr)).Append(flawP)
			if nil != err {
				err = must.BeFlaw(err).Join(closeErr)
			} else {
				err = closeErr
			}
		}
	}()

	h := md5.New() //nolint:gosec
	if _, err := io.Copy(h, f); nil != err {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return "", flaw.From(fmt.Errorf("failed to hash file: %v", err)).Append(flawP)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
