package constant

import (
	_ "embed"
	"fmt"
	"strings"
	"time"
)

const AppName = "lplay"

var (
	//go:embed version
	version string

	// compileTime is overridden with -ldflags -X at build time.
	compileTime = "2026-10-01T00:00:00Z"

	// Version is the embedded release version.
	Version = strings.TrimSpace(version)

	// CompileTime is compileTime parsed at init.
	CompileTime time.Time
)

func init() {
	t, err := time.Parse(time.RFC3339, compileTime)
	if nil != err {
		panic(fmt.Errorf("could not parse CompileTime constant %q. Make sure it is set at build time", compileTime))
	}
	CompileTime = t
}
