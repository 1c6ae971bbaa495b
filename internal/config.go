package internal

import (
	"os"
	"path/filepath"
)

// BaseDir is the proxy's state directory, overridable via $CDPPROXY_HOME so
// multiple operators on one machine don't collide on $HOME.
var (
	BaseDir     = envOr("CDPPROXY_HOME", filepath.Join(os.Getenv("HOME"), ".cdpproxy"))
	ChromiumDir = filepath.Join(BaseDir, "chromium")
	Verbose     bool
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
