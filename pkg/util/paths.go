package util

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultAppName = "plana"

// CacheDir returns the per-user cache directory for appName. The directory is
// not created.
func CacheDir(appName string) string {
	base, err := os.UserCacheDir()
	if err != nil || strings.TrimSpace(base) == "" {
		base = filepath.Join(homeDir(), ".cache")
	}
	return filepath.Join(base, sanitizeAppNameForPath(appName))
}

// LogDir returns the directory log files are written to, a "logs" folder
// under the cache directory.
func LogDir(appName string) string {
	return filepath.Join(CacheDir(appName), "logs")
}

// SpoolPath returns the default location of the pending-write spool database.
func SpoolPath(appName string) string {
	return filepath.Join(CacheDir(appName), "spool.sqlite")
}

func homeDir() string {
	if h := strings.TrimSpace(os.Getenv("HOME")); h != "" {
		return h
	}
	if h, err := os.UserHomeDir(); err == nil && strings.TrimSpace(h) != "" {
		return h
	}
	return "."
}

// sanitizeAppNameForPath normalizes an application name so it is safe as a
// single directory segment on every platform.
func sanitizeAppNameForPath(name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return defaultAppName
	}
	n = strings.NewReplacer(
		"/", "-",
		"\\", "-",
		"<", "-",
		">", "-",
		":", "-",
		"\"", "-",
		"|", "-",
		"?", "-",
		"*", "-",
		"\x00", "",
	).Replace(n)
	n = strings.TrimRight(n, " .")
	if strings.TrimSpace(n) == "" {
		return defaultAppName
	}
	return n
}
