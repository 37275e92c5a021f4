package config

import "time"

var (
	ResolveTimeout           = 30 * time.Second
	ThumbnailDownloadTimeout = 10 * time.Second
	PayloadHeadTimeout       = 5 * time.Second
	PayloadPartTimeout       = 2 * time.Minute
	TranscodeTimeout         = 10 * time.Minute
	ProbeTimeout             = 10 * time.Second
	PipelineDialTimeout      = 10 * time.Second
	PipelineRequestTimeout   = 3 * time.Second
	ShutdownGracePeriod      = 3 * time.Second
	MediaKeyCallTimeout      = 5 * time.Second
)
