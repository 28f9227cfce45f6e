package browser

import (
	"os/exec"
	"path/filepath"

	"github.com/jmylchreest/kleinsync/internal/logger"
)

// Binary names and install locations probed when no path is configured.
var chromeCandidates = []string{
	"google-chrome-stable",
	"google-chrome",
	"chromium",
	"chromium-browser",
	"headless-shell",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/snap/bin/chromium",
	"/headless-shell/headless-shell",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
}

// FindChromePath returns override when it is executable, otherwise the
// first Chrome or Chromium binary found. An empty result lets chromedp
// fall back to its own lookup.
func FindChromePath(override string) string {
	if override != "" {
		if path, err := exec.LookPath(override); err == nil {
			return path
		}
		logger.Warn("configured Chrome binary not usable, searching", "path", override)
	}

	for _, name := range chromeCandidates {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		logger.Debug("found Chrome binary", "name", name, "path", path)
		return path
	}

	logger.Warn("no Chrome binary found")
	return ""
}
