package errutil

import (
	"fmt"

	"github.com/small-frappuccino/plana/pkg/log"
)

// HandleGatewayError executes fn and logs any error as a Discord gateway failure.
// The error is returned unmodified so callers can still inspect it.
func HandleGatewayError(operation string, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("nil function provided")
	}
	err := fn()
	if err == nil {
		return nil
	}
	log.DiscordLogger().Error("Discord operation failed", "operation", operation, "error", err)
	return err
}

// HandleBackendError executes fn and logs any error as a backend failure.
// It returns the error wrapped with the operation and the resource path.
func HandleBackendError(operation, path string, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("nil function provided")
	}
	err := fn()
	if err == nil {
		return nil
	}
	log.BackendLogger().Error("Backend operation failed", "operation", operation, "path", path, "error", err)
	return fmt.Errorf("backend %s %s: %w", operation, path, err)
}
