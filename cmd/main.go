package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/lplay/constant"
	"github.com/xeptore/lplay/errutil"
	"github.com/xeptore/lplay/log"
)

const (
	flagConfigFilePath = "config"
	flagFlawReport     = "flaw-report"
	flagDownload       = "download"
	flagPlay           = "play"
	flagUnlistened     = "unlistened"
	envConfig          = "LPLAY_CONFIG"
)

func main() {
	logger := log.NewPretty(os.Stderr).Level(zerolog.TraceLevel)
	if err := godotenv.Load(); nil != err {
		if errors.Is(err, os.ErrNotExist) {
			logger.Trace().Msg(".env file was not found")
		} else {
			logger.Fatal().Err(err).Msg("Failed to load .env file")
		}
	}

	var flawReport string

	//nolint:exhaustruct
	app := &cli.App{
		Name:     constant.AppName,
		Version:  constant.Version,
		Compiled: constant.CompileTime,
		Suggest:  true,
		Usage:    "Local and remote audio player",
		Flags: []cli.Flag{
			//nolint:exhaustruct
			&cli.StringFlag{
				Name:     flagConfigFilePath,
				Aliases:  []string{"c"},
				Usage:    "Config file path",
				Required: false,
			},
			//nolint:exhaustruct
			&cli.StringFlag{
				Name:        flagFlawReport,
				Usage:       "Write a YAML report of a fatal error to this file",
				Required:    false,
				Destination: &flawReport,
			},
		},
		Commands: []*cli.Command{
			//nolint:exhaustruct
			{
				Name:    "run",
				Aliases: []string{"r"},
				Usage:   "Run the player and expose it to media keys",
				Action:  run,
				Flags: []cli.Flag{
					//nolint:exhaustruct
					&cli.BoolFlag{
						Name:  flagPlay,
						Usage: "Start playing the selected track",
					},
				},
			},
			//nolint:exhaustruct
			{
				Name:      "add",
				Aliases:   []string{"a"},
				Usage:     "Add local files or remote URLs to the catalog",
				ArgsUsage: "<path or url>...",
				Action:    addTracks,
				Flags: []cli.Flag{
					//nolint:exhaustruct
					&cli.BoolFlag{
						Name:  flagDownload,
						Usage: "Download added remote tracks and wait for them",
					},
				},
			},
			//nolint:exhaustruct
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List catalog tracks",
				Action:  listTracks,
				Flags: []cli.Flag{
					//nolint:exhaustruct
					&cli.BoolFlag{
						Name:  flagUnlistened,
						Usage: "Only show tracks not listened yet",
					},
				},
			},
			//nolint:exhaustruct
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Remove tracks from the catalog",
				ArgsUsage: "<id>...",
				Action:    removeTracks,
			},
			//nolint:exhaustruct
			{
				Name:      "download",
				Aliases:   []string{"dl"},
				Usage:     "Download remote tracks and wait for them",
				ArgsUsage: "<id>...",
				Action:    downloadTracks,
			},
			//nolint:exhaustruct
			{
				Name:      "listened",
				Usage:     "Toggle the listened flag of tracks",
				ArgsUsage: "<id>...",
				Action:    toggleListened,
			},
			//nolint:exhaustruct
			{
				Name:      "preset",
				Usage:     "Apply an equalizer preset, or list presets without an argument",
				ArgsUsage: "[name]",
				Action:    applyPreset,
			},
		},
	}

	if err := app.Run(os.Args); nil != err {
		if errors.Is(err, context.Canceled) {
			logger.Trace().Msg("Application was canceled")
			return
		}
		if flawErr := new(flaw.Flaw); errors.As(err, &flawErr) {
			if flawReport != "" {
				if reportErr := writeFlawReport(flawReport, flawErr); nil != reportErr {
					logger.Error().Func(log.Flaw(reportErr)).Msg("Failed to write flaw report")
				}
			}
			logger.Fatal().Func(log.Flaw(flawErr)).Msg("Application exited with flaw")
			return
		}
		logger.Fatal().Err(err).Msg("Application exited with error")
	}
}

func writeFlawReport(path string, f *flaw.Flaw) error {
	data, err := errutil.FlawToYAML(f)
	if nil != err {
		return err
	}
	if err := os.WriteFile(path, data, 0o0600); nil != err {
		flawP := flaw.P{"path": path, "err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to write flaw report file: %v", err)).Append(flawP)
	}
	return nil
}
