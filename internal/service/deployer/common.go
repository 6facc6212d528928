package deployer

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/councillor-bot/councillor-deploy/internal/logger"
	"github.com/councillor-bot/councillor-deploy/internal/service/common"
)

const (
	// MarkerFilename marks that a deploy is running right now to avoid parallel execution.
	MarkerFilename = "councillor-deploy-marker.bin"

	// deployExecutable is the binary name killed when a stale marker is found.
	deployExecutable = "councillor-deploy"

	// markerLifetime is the period after which a stale deploy marker is ignored.
	markerLifetime = 30 * time.Minute
)

// IsDeployRunningNow checks presence of a marker file and attempts recovery
// if it looks stale.
func IsDeployRunningNow(ctx context.Context, markerPath string) bool {
	logger.Debug(ctx, "Checking for the presence of a deploy marker")

	fileInfo, err := os.Stat(markerPath)
	if err == nil {
		if time.Since(fileInfo.ModTime()) <= markerLifetime {
			return true
		}

		logger.Info(ctx, "The deploy marker is too old, attempting cleanup")

		if err = common.TerminateProcessesByName(deployExecutable); err != nil {
			return true
		}

		if err = os.Remove(markerPath); err != nil {
			return true
		}

		return false
	}

	if errors.Is(err, os.ErrNotExist) {
		return false
	}

	logger.Infof(ctx, "Unable to read deploy marker: %v", err)

	return false
}
