package ports

import (
	"context"

	"github.com/reglet-dev/execsafety/domain/entities"
)

// Installer ensures capabilities are present, installing them under a trust policy.
type Installer interface {
	EnsureCapabilityInstalled(ctx context.Context, capabilityID string, opts entities.InstallOptions) entities.InstallResult
	EnsureCommandCapabilities(ctx context.Context, command string, opts entities.InstallOptions) entities.CommandInstallReport
}
