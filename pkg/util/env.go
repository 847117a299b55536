package util

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LocalBinEnvPath returns $HOME/.local/bin/.env, or "" when the home directory
// cannot be resolved.
func LocalBinEnvPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".local", "bin", ".env")
}

// LoadEnvFiles populates missing environment variables from the given files
// and from the $HOME/.local/bin/.env fallback. Already-set variables are never
// overwritten, and explicit files take precedence over the fallback. It
// returns the files that were actually loaded.
//
// The current working directory is not searched.
func LoadEnvFiles(files ...string) []string {
	candidates := append([]string{}, files...)
	if fallback := LocalBinEnvPath(); fallback != "" {
		candidates = append(candidates, fallback)
	}

	var loaded []string
	for _, path := range candidates {
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err == nil {
			loaded = append(loaded, path)
		}
	}
	return loaded
}
