package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/xeptore/lplay/download"
	"github.com/xeptore/lplay/errutil"
	"github.com/xeptore/lplay/log"
	"github.com/xeptore/lplay/player"
	"github.com/xeptore/lplay/ratelimit"
	"github.com/xeptore/lplay/resolver"
	"github.com/xeptore/lplay/session"
	"github.com/xeptore/lplay/track"
)

var errNoArgs = errors.New("at least one argument is required")

func addTracks(cliCtx *cli.Context) error {
	ctx, cancel := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	inputs := cliCtx.Args().Slice()
	if len(inputs) == 0 {
		return errNoArgs
	}

	e, err := loadEnv(cliCtx)
	if nil != err {
		return err
	}

	thumbnails := e.newThumbnails()
	defer thumbnails.Close()

	deps := session.Deps{
		Player:     nil,
		Downloads:  nil,
		Extractor:  e.newExtractor(),
		Resolver:   e.newResolver(),
		Thumbnails: thumbnails,
		Store:      nil,
	}
	var downloads *download.Manager
	if cliCtx.Bool(flagDownload) {
		downloads, err = e.newDownloads()
		if nil != err {
			return err
		}
		defer downloads.Close()
		deps.Downloads = downloads
	}
	c := e.newSession(deps)

	var (
		mux    sync.Mutex
		remote []string
		failed int
	)
	wg, wgCtx := errgroup.WithContext(ctx)
	wg.SetLimit(ratelimit.ResolveConcurrency)
	for _, input := range inputs {
		wg.Go(func() error {
			var (
				t     *track.Track
				added bool
				err   error
			)
			if resolver.IsRemoteURL(input) {
				t, added, err = c.AddURL(wgCtx, input)
			} else {
				t, added, err = c.AddFile(wgCtx, input)
			}

			mux.Lock()
			defer mux.Unlock()
			if nil != err {
				if errutil.IsContext(wgCtx) {
					return wgCtx.Err()
				}
				failed++
				if rejected := new(session.RejectedError); errors.As(err, &rejected) {
					e.logger.Warn().Err(rejected.Err).Str("input", input).Msg("Input was rejected")
				} else {
					e.logger.Error().Func(log.Flaw(err)).Str("input", input).Msg("Failed to add input")
				}
				return nil
			}
			if !added {
				e.logger.Info().Str("id", t.ID).Str("title", t.Title).Msg("Track is already in the catalog")
			} else {
				e.logger.Info().Str("id", t.ID).Str("title", t.Title).Msg("Track added")
			}
			if t.IsRemote() {
				remote = append(remote, t.ID)
			}
			return nil
		})
	}
	if err := wg.Wait(); nil != err {
		return err
	}

	if nil != downloads && len(remote) > 0 {
		if err := awaitDownloads(ctx, e, c, remote); nil != err {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d inputs could not be added", failed, len(inputs))
	}
	return nil
}

func listTracks(cliCtx *cli.Context) error {
	e, err := loadEnv(cliCtx)
	if nil != err {
		return err
	}

	tracks := e.settings.Audios
	if cliCtx.Bool(flagUnlistened) {
		tracks = lo.Filter(tracks, func(t *track.Track, _ int) bool { return !t.Listened })
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tTITLE\tARTIST\tLENGTH\tPROGRESS\tSTATE")
	for i, t := range tracks {
		marker := " "
		if i == e.settings.Row && !cliCtx.Bool(flagUnlistened) {
			marker = ">"
		}
		fmt.Fprintf(
			w,
			"%s%d\t%s\t%s\t%s\t%s\t%3.0f%%\t%s\n",
			marker,
			i,
			t.ID,
			t.Title,
			t.Artist,
			(time.Duration(t.Duration) * time.Second).String(),
			t.Position*100,
			trackState(t),
		)
	}
	return w.Flush()
}

func trackState(t *track.Track) string {
	var flags []string
	switch {
	case !t.IsRemote():
		flags = append(flags, "local")
	case t.Downloaded:
		flags = append(flags, "downloaded")
	default:
		flags = append(flags, "remote")
	}
	if t.Listened {
		flags = append(flags, "listened")
	}
	return strings.Join(flags, ",")
}

func removeTracks(cliCtx *cli.Context) error {
	ids := cliCtx.Args().Slice()
	if len(ids) == 0 {
		return errNoArgs
	}

	e, err := loadEnv(cliCtx)
	if nil != err {
		return err
	}
	thumbnails := e.newThumbnails()
	defer thumbnails.Close()

	c := e.newSession(session.Deps{Player: nil, Downloads: nil, Extractor: nil, Resolver: nil, Thumbnails: thumbnails, Store: nil})
	n, err := c.Remove(cliCtx.Context, ids...)
	if nil != err {
		return err
	}
	e.logger.Info().Int("removed", n).Int("requested", len(ids)).Msg("Tracks removed")
	return nil
}

func downloadTracks(cliCtx *cli.Context) error {
	ctx, cancel := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	e, err := loadEnv(cliCtx)
	if nil != err {
		return err
	}

	downloads, err := e.newDownloads()
	if nil != err {
		return err
	}
	defer downloads.Close()

	c := e.newSession(session.Deps{Player: nil, Downloads: downloads, Extractor: nil, Resolver: nil, Thumbnails: nil, Store: nil})

	ids := cliCtx.Args().Slice()
	if len(ids) == 0 {
		tracks, err := c.Tracks(ctx)
		if nil != err {
			return err
		}
		ids = lo.FilterMap(tracks, func(t *track.Track, _ int) (string, bool) {
			return t.ID, t.IsRemote() && !t.Downloaded
		})
		if len(ids) == 0 {
			e.logger.Info().Msg("Every remote track is already downloaded")
			return nil
		}
	}
	return awaitDownloads(ctx, e, c, ids)
}

// awaitDownloads queues ids and runs the session loop until each queued job
// completes or is abandoned.
func awaitDownloads(ctx context.Context, e *env, c *session.Controller, ids []string) error {
	var (
		mux     sync.Mutex
		waiting = make(map[string]bool)
		queuing = true
		failed  []string
		settled = make(chan struct{})
	)
	c.OnDownload(func(ev download.Event) {
		mux.Lock()
		defer mux.Unlock()
		if !waiting[ev.TrackID] {
			return
		}
		switch ev.Kind {
		case download.EventCompleted:
		case download.EventAbandoned:
			failed = append(failed, ev.TrackID)
		default:
			return
		}
		delete(waiting, ev.TrackID)
		if !queuing && len(waiting) == 0 {
			close(settled)
		}
	})

	loopCtx, loopCancel := context.WithCancel(ctx)
	errc := c.Start(loopCtx)
	defer func() {
		loopCancel()
		if err := <-errc; nil != err {
			e.logger.Error().Func(log.Flaw(err)).Msg("Session loop failed")
		}
	}()

	for _, id := range ids {
		mux.Lock()
		waiting[id] = true
		mux.Unlock()

		queued, err := c.Download(ctx, id)
		switch {
		case nil != err:
			mux.Lock()
			delete(waiting, id)
			mux.Unlock()
			if errutil.IsContext(ctx) {
				return ctx.Err()
			}
			if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrNotRemote) {
				e.logger.Warn().Err(err).Str("id", id).Msg("Track cannot be downloaded")
				continue
			}
			return err
		case !queued:
			e.logger.Debug().Str("id", id).Msg("Track is already downloaded or queued")
		default:
			e.logger.Info().Str("id", id).Msg("Download queued")
		}
	}

	tracks, err := c.Tracks(ctx)
	if nil != err {
		return err
	}

	mux.Lock()
	for _, t := range tracks {
		if waiting[t.ID] && t.Downloaded {
			delete(waiting, t.ID)
		}
	}
	queuing = false
	pending := len(waiting)
	mux.Unlock()

	if pending > 0 {
		e.logger.Info().Int("pending", pending).Msg("Waiting for downloads")
		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	mux.Lock()
	defer mux.Unlock()
	if len(failed) > 0 {
		return fmt.Errorf("failed to download %d tracks: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

func toggleListened(cliCtx *cli.Context) error {
	ids := cliCtx.Args().Slice()
	if len(ids) == 0 {
		return errNoArgs
	}

	e, err := loadEnv(cliCtx)
	if nil != err {
		return err
	}
	c := e.newSession(session.Deps{Player: nil, Downloads: nil, Extractor: nil, Resolver: nil, Thumbnails: nil, Store: nil})
	for _, id := range ids {
		v, err := c.ToggleListened(cliCtx.Context, id)
		if nil != err {
			if errors.Is(err, session.ErrNotFound) {
				e.logger.Warn().Str("id", id).Msg("Track was not found")
				continue
			}
			return err
		}
		e.logger.Info().Str("id", id).Bool("listened", v).Msg("Listened flag updated")
	}
	return nil
}

func applyPreset(cliCtx *cli.Context) error {
	if cliCtx.NArg() == 0 {
		for _, name := range player.PresetNames() {
			fmt.Fprintln(os.Stdout, name)
		}
		return nil
	}

	e, err := loadEnv(cliCtx)
	if nil != err {
		return err
	}
	c := e.newSession(session.Deps{Player: nil, Downloads: nil, Extractor: nil, Resolver: nil, Thumbnails: nil, Store: nil})
	name := cliCtx.Args().First()
	if err := c.ApplyPreset(cliCtx.Context, name); nil != err {
		if errors.Is(err, session.ErrUnknownPreset) {
			return fmt.Errorf("unknown preset %q. available presets: %s", name, strings.Join(player.PresetNames(), ", "))
		}
		return err
	}
	e.logger.Info().Str("preset", name).Msg("Equalizer preset applied")
	return nil
}
