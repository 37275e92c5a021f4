package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xeptore/lplay/constant"
)

const (
	QueueOrderFIFO = "fifo"
	QueueOrderLIFO = "lifo"
)

type Config struct {
	DataDir     string   `json:"data_dir"     yaml:"data_dir"`
	LogLevel    string   `json:"log_level"    yaml:"log_level"`
	LogFormat   string   `json:"log_format"   yaml:"log_format"`
	FFmpegPath  string   `json:"ffmpeg_path"  yaml:"ffmpeg_path"`
	FFprobePath string   `json:"ffprobe_path" yaml:"ffprobe_path"`
	YtDlpPath   string   `json:"ytdlp_path"   yaml:"ytdlp_path"`
	MpvPath     string   `json:"mpv_path"     yaml:"mpv_path"`
	Download    Download `json:"download"     yaml:"download"`
	Playback    Playback `json:"playback"     yaml:"playback"`
}

type Download struct {
	MaxConcurrent int    `json:"max_concurrent" yaml:"max_concurrent"`
	MaxAttempts   int    `json:"max_attempts"   yaml:"max_attempts"`
	QueueOrder    string `json:"queue_order"    yaml:"queue_order"`
	PartSize      int64  `json:"part_size"      yaml:"part_size"`
}

type Playback struct {
	SampleInterval time.Duration `json:"sample_interval" yaml:"sample_interval"`
	FlushEvery     int           `json:"flush_every"     yaml:"flush_every"`
}

func Default() *Config {
	return &Config{
		DataDir:     defaultDataDir(),
		LogLevel:    "info",
		LogFormat:   "pretty",
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		YtDlpPath:   "yt-dlp",
		MpvPath:     "mpv",
		Download: Download{
			MaxConcurrent: 4,
			MaxAttempts:   3,
			QueueOrder:    QueueOrderFIFO,
			PartSize:      4 * 1024 * 1024,
		},
		Playback: Playback{
			SampleInterval: time.Second,
			FlushEvery:     10,
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); nil == err {
		return filepath.Join(dir, constant.AppName)
	}
	return filepath.Join(".", "."+constant.AppName)
}

func (cfg *Config) SettingsFile() string {
	return filepath.Join(cfg.DataDir, "settings.json")
}

func (cfg *Config) AudioDir() string {
	return filepath.Join(cfg.DataDir, "audio")
}

func (cfg *Config) ThumbnailsDir() string {
	return filepath.Join(cfg.DataDir, "thumbnails")
}

func (cfg *Config) MpvSocket() string {
	return filepath.Join(cfg.DataDir, "mpv.sock")
}

func (cfg *Config) validate() error {
	if cfg.DataDir == "" {
		return errors.New("data dir is empty")
	}

	if cfg.Download.MaxConcurrent < 1 {
		return fmt.Errorf("download max concurrent must be positive, got %d", cfg.Download.MaxConcurrent)
	}

	if cfg.Download.MaxAttempts < 1 {
		return fmt.Errorf("download max attempts must be positive, got %d", cfg.Download.MaxAttempts)
	}

	switch cfg.Download.QueueOrder {
	case QueueOrderFIFO, QueueOrderLIFO:
	default:
		return fmt.Errorf("unsupported download queue order %q", cfg.Download.QueueOrder)
	}

	if cfg.Download.PartSize < 64*1024 {
		return fmt.Errorf("download part size must be at least 64KiB, got %d", cfg.Download.PartSize)
	}

	if cfg.Playback.SampleInterval < 100*time.Millisecond {
		return fmt.Errorf("playback sample interval is too short: %s", cfg.Playback.SampleInterval)
	}

	if cfg.Playback.FlushEvery < 1 {
		return fmt.Errorf("playback flush every must be positive, got %d", cfg.Playback.FlushEvery)
	}

	return nil
}

func FromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if nil != err {
		return nil, fmt.Errorf("failed to read config file %q: %v", filePath, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); nil != err {
		return nil, fmt.Errorf("failed to unmarshal config file %q: %v", filePath, err)
	}

	if err := cfg.validate(); nil != err {
		return nil, fmt.Errorf("validation failed: %v", err)
	}

	return cfg, nil
}

func FromString(data string) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(data), cfg); nil != err {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	if err := cfg.validate(); nil != err {
		return nil, fmt.Errorf("validation failed: %v", err)
	}

	return cfg, nil
}
