package metadata

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// Registry picks an Extractor by file extension, then by sniffing the
// file header.
type Registry struct {
	byExt  map[string]Extractor
	byType map[tag.FileType]Extractor
}

func NewRegistry(prober StreamProber) *Registry {
	var (
		mp3  = MP3{prober: prober}
		ogg  = Ogg{prober: prober}
		flac = FLAC{prober: prober}
		m4a  = M4A{prober: prober}
	)
	return &Registry{
		byExt: map[string]Extractor{
			"mp3":  mp3,
			"ogg":  ogg,
			"oga":  ogg,
			"flac": flac,
			"m4a":  m4a,
			"mp4":  m4a,
		},
		byType: map[tag.FileType]Extractor{
			tag.MP3:  mp3,
			tag.OGG:  ogg,
			tag.FLAC: flac,
			tag.M4A:  m4a,
			tag.M4B:  m4a,
			tag.ALAC: m4a,
		},
	}
}

func (r *Registry) Extract(ctx context.Context, path string) (*Info, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if e, ok := r.byExt[ext]; ok {
		return e.Extract(ctx, path)
	}

	e, ok := r.sniff(path)
	if !ok {
		return nil, ErrUnsupported
	}
	return e.Extract(ctx, path)
}

func (r *Registry) sniff(path string) (Extractor, bool) {
	f, err := os.Open(path)
	if nil != err {
		return nil, false
	}
	defer f.Close()

	_, fileType, err := tag.Identify(f)
	if nil != err {
		return nil, false
	}
	e, ok := r.byType[fileType]
	return e, ok
}
