package app

import (
	"fmt"
	"strings"
)

// Version is set at build time with -ldflags "-X ...app.Version=v1.2.3".
var Version = "dev"

func formatStartupMessage(appName, version string) string {
	appName = strings.TrimSpace(appName)
	version = strings.TrimSpace(version)
	if version == "" {
		return fmt.Sprintf("Starting %s...", appName)
	}
	return fmt.Sprintf("Starting %s %s...", appName, version)
}
