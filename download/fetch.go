package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"
	"golang.org/x/sync/errgroup"

	"github.com/xeptore/lplay/config"
	"github.com/xeptore/lplay/errutil"
	"github.com/xeptore/lplay/httputil"
	"github.com/xeptore/lplay/mathutil"
	"github.com/xeptore/lplay/must"
)

const OutputExt = "ogg"

type Transcoder interface {
	Transcode(ctx context.Context, in, out string) error
}

// Downloader fetches a remote payload into a staging file and transcodes it
// into the audio directory.
type Downloader struct {
	audioDir   string
	stagingDir string
	partSize   int64
	client     *http.Client
	transcoder Transcoder
	logger     zerolog.Logger
}

func NewDownloader(audioDir string, partSize int64, client *http.Client, transcoder Transcoder, logger zerolog.Logger) *Downloader {
	return &Downloader{
		audioDir:   audioDir,
		stagingDir: filepath.Join(audioDir, "staging"),
		partSize:   partSize,
		client:     client,
		transcoder: transcoder,
		logger:     logger,
	}
}

// OutputPath is where the playable file of trackID ends up.
func (d *Downloader) OutputPath(trackID string) string {
	return filepath.Join(d.audioDir, trackID+"."+OutputExt)
}

func (d *Downloader) stagingPath(req Request) string {
	return filepath.Join(d.stagingDir, req.TrackID+"."+req.Ext)
}

func (d *Downloader) Fetch(ctx context.Context, req Request) (string, error) {
	output := d.OutputPath(req.TrackID)
	flawP := flaw.P{"request": flaw.P{"track_id": req.TrackID, "url": req.URL, "ext": req.Ext, "size": req.Size}, "output": output}

	if _, err := os.Stat(output); nil == err {
		d.logger.Debug().Str("path", output).Msg("Output file already exists. Skipping download")
		return output, nil
	}

	if err := os.MkdirAll(d.stagingDir, 0o0755); nil != err {
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return "", flaw.From(fmt.Errorf("failed to create staging directory: %v", err)).Append(flawP)
	}

	staging := d.stagingPath(req)
	flawP["staging"] = staging
	defer func() {
		if err := os.Remove(staging); nil != err && !errors.Is(err, os.ErrNotExist) {
			d.logger.Warn().Err(err).Str("path", staging).Msg("Failed to remove staging file")
		}
	}()

	if err := d.saveTo(ctx, req, staging); nil != err {
		switch {
		case errutil.IsContext(ctx):
			return "", ctx.Err()
		case errutil.IsFlaw(err):
			return "", must.BeFlaw(err).Append(flawP)
		default:
			flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
			return "", flaw.From(fmt.Errorf("failed to download payload: %v", err)).Append(flawP)
		}
	}

	transcodeCtx, cancel := context.WithTimeout(ctx, config.TranscodeTimeout)
	defer cancel()
	if err := d.transcoder.Transcode(transcodeCtx, staging, output); nil != err {
		if err := os.Remove(output); nil != err && !errors.Is(err, os.ErrNotExist) {
			d.logger.Warn().Err(err).Str("path", output).Msg("Failed to remove partial transcode output")
		}
		switch {
		case errutil.IsContext(ctx):
			return "", ctx.Err()
		case errutil.IsFlaw(err):
			return "", must.BeFlaw(err).Append(flawP)
		default:
			flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
			return "", flaw.From(fmt.Errorf("failed to transcode payload: %v", err)).Append(flawP)
		}
	}

	return output, nil
}

func (d *Downloader) saveTo(ctx context.Context, req Request, fileName string) error {
	size, ranged, err := d.probe(ctx, req)
	if nil != err {
		d.logger.Debug().Err(err).Str("url", req.URL).Msg("Payload probe failed. Falling back to a single stream")
		size, ranged = 0, false
	}

	if !ranged || size <= d.partSize {
		return d.downloadWhole(ctx, req.URL, fileName)
	}
	return d.downloadRanges(ctx, req.URL, fileName, size)
}

// probe reports the payload size and whether the server honors byte ranges.
func (d *Downloader) probe(ctx context.Context, req Request) (size int64, ranged bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, config.PayloadHeadTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodHead, req.URL, nil)
	if nil != err {
		return 0, false, fmt.Errorf("failed to create payload info request: %v", err)
	}

	resp, err := d.client.Do(httpReq)
	if nil != err {
		return 0, false, fmt.Errorf("failed to send payload info request: %v", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			err = fmt.Errorf("failed to close payload info response body: %v", closeErr)
		}
	}()

	if code := resp.StatusCode; code != http.StatusOK {
		return 0, false, fmt.Errorf("unexpected status code: %d", code)
	}

	size, err = strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if nil != err {
		if req.Size > 0 {
			size = req.Size
		} else {
			return 0, false, fmt.Errorf("failed to parse content length: %v", err)
		}
	}
	return size, resp.Header.Get("Accept-Ranges") == "bytes", nil
}

func (d *Downloader) downloadWhole(ctx context.Context, url, fileName string) (err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if nil != err {
		return fmt.Errorf("failed to create payload request: %v", err)
	}

	resp, err := d.client.Do(httpReq)
	if nil != err {
		return fmt.Errorf("failed to send payload request: %v", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr && nil == err {
			err = fmt.Errorf("failed to close payload response body: %v", closeErr)
		}
	}()

	if err := httputil.CheckStatus(resp); nil != err {
		return flaw.From(err).Append(errutil.HTTPResponseFlawPayload(resp))
	}

	return writeFile(fileName, resp.Body)
}

func (d *Downloader) downloadRanges(ctx context.Context, url, fileName string, size int64) error {
	wg, ctx := errgroup.WithContext(ctx)
	wg.SetLimit(-1)

	numParts := mathutil.CeilInts(size, d.partSize)
	for i := range numParts {
		wg.Go(func() error {
			start := i * d.partSize
			end := min((i+1)*d.partSize, size) - 1
			if err := d.downloadRange(ctx, url, partName(fileName, i), start, end); nil != err {
				return fmt.Errorf("failed to download part %d: %v", i, err)
			}
			return nil
		})
	}

	if err := wg.Wait(); nil != err {
		removeParts(fileName, numParts)
		return err
	}

	return assembleParts(fileName, numParts)
}

// assembleParts joins the parts into fileName, leaving no part behind on
// failure.
func assembleParts(fileName string, numParts int64) error {
	if err := joinParts(fileName, numParts); nil != err {
		removeParts(fileName, numParts)
		return err
	}
	return nil
}

// removeParts deletes whatever part files are still on disk.
func removeParts(fileName string, numParts int64) {
	for i := range numParts {
		_ = os.Remove(partName(fileName, i))
	}
}

func partName(fileName string, i int64) string {
	return fileName + ".part." + strconv.FormatInt(i, 10)
}

func (d *Downloader) downloadRange(ctx context.Context, url, partFile string, start, end int64) (err error) {
	ctx, cancel := context.WithTimeout(ctx, config.PayloadPartTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if nil != err {
		return fmt.Errorf("failed to create payload part request: %v", err)
	}
	httpReq.Header.Add("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := d.client.Do(httpReq)
	if nil != err {
		return fmt.Errorf("failed to send payload part request: %v", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr && nil == err {
			err = fmt.Errorf("failed to close payload part response body: %v", closeErr)
		}
	}()

	if code := resp.StatusCode; code != http.StatusPartialContent {
		return fmt.Errorf("unexpected status code: %d", code)
	}

	return writeFile(partFile, resp.Body)
}

func writeFile(fileName string, r io.Reader) (err error) {
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o0644)
	if nil != err {
		return fmt.Errorf("failed to create file: %v", err)
	}
	defer func() {
		if closeErr := f.Close(); nil != closeErr && nil == err {
			err = fmt.Errorf("failed to close file: %v", closeErr)
		}
	}()

	if _, err := io.Copy(f, r); nil != err {
		return fmt.Errorf("failed to write file: %v", err)
	}

	return f.Sync()
}

func joinParts(fileName string, numParts int64) (err error) {
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o0644)
	if nil != err {
		return fmt.Errorf("failed to create payload file: %v", err)
	}
	defer func() {
		if closeErr := f.Close(); nil != closeErr && nil == err {
			err = fmt.Errorf("failed to close payload file: %v", closeErr)
		}
	}()

	for i := range numParts {
		err := func() (err error) {
			partFileName := partName(fileName, i)
			fp, err := os.Open(partFileName)
			if nil != err {
				return fmt.Errorf("failed to open payload part file: %v", err)
			}
			defer func() {
				if closeErr := fp.Close(); nil != closeErr && nil == err {
					err = fmt.Errorf("failed to close payload part file: %v", closeErr)
				}
			}()

			if _, err := io.Copy(f, fp); nil != err {
				return fmt.Errorf("failed to copy payload part: %v", err)
			}

			return os.Remove(partFileName)
		}()
		if nil != err {
			return err
		}
	}

	return f.Sync()
}
