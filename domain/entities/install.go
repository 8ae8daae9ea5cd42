package entities

import "time"

// TrustPolicy decides which install recipes may be attempted.
type TrustPolicy string

const (
	// TrustStrictVerified keeps only hand-reviewed recipes.
	TrustStrictVerified TrustPolicy = "strict_verified"
	// TrustVerifiedFallback keeps every recipe, verified ones first.
	TrustVerifiedFallback TrustPolicy = "verified_fallback"
	// TrustBestEffort keeps every recipe.
	TrustBestEffort TrustPolicy = "best_effort"
)

// AutonomyMode is the externally configured risk posture of an execution context.
type AutonomyMode string

const (
	AutonomyRestrictive AutonomyMode = "restrictive"
	AutonomyStandard    AutonomyMode = "standard"
	AutonomyPermissive  AutonomyMode = "permissive"
)

// TrustPolicy maps an autonomy mode to the trust policy used for installs.
// Unknown modes get the standard policy.
func (m AutonomyMode) TrustPolicy() TrustPolicy {
	switch m {
	case AutonomyRestrictive:
		return TrustStrictVerified
	case AutonomyPermissive:
		return TrustBestEffort
	default:
		return TrustVerifiedFallback
	}
}

// InstallAttempt records one recipe run.
type InstallAttempt struct {
	RecipeID string        `json:"recipeId"`
	Method   InstallMethod `json:"method"`
	// Image is set when the recipe ran in a container; the binary then exists
	// only in that image.
	Image  string `json:"image,omitempty"`
	Output string `json:"output,omitempty"`
	// VerifyOutput is the output of the recipe's verify command, if one ran.
	VerifyOutput string        `json:"verifyOutput,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
	ExitCode     int           `json:"exitCode"`
	Verified     bool          `json:"verified"`
	BinaryFound  bool          `json:"binaryFound"`
	OK           bool          `json:"ok"`
}

// InstallResult aggregates the attempts for one capability.
type InstallResult struct {
	CapabilityID      string           `json:"capabilityId"`
	Reason            string           `json:"reason,omitempty"`
	Attempts          []InstallAttempt `json:"attempts,omitempty"`
	CooldownRemaining time.Duration    `json:"cooldownRemaining,omitempty"`
	AlreadyAvailable  bool             `json:"alreadyAvailable,omitempty"`
	OK                bool             `json:"ok"`
}

// CommandResolution lists what a command needs from the capability registry.
type CommandResolution struct {
	Executables         []string               `json:"executables"`
	KnownCapabilities   []CapabilityDescriptor `json:"knownCapabilities"`
	MissingCapabilities []CapabilityDescriptor `json:"missingCapabilities"`
	UnknownExecutables  []string               `json:"unknownExecutables"`
}

// CommandInstallReport summarizes ensuring every missing capability of a command.
type CommandInstallReport struct {
	Installed          []string        `json:"installed"`
	Failed             []InstallResult `json:"failed"`
	MissingKnown       []string        `json:"missingKnown"`
	UnknownExecutables []string        `json:"unknownExecutables"`
	// Skipped is set when install orchestration is disabled and nothing was attempted.
	Skipped bool `json:"skipped,omitempty"`
	OK      bool `json:"ok"`
}

// InstallOptions configures a single ensure call.
type InstallOptions struct {
	OnEvent     EventFunc
	TrustPolicy TrustPolicy
	// AllowContainers runs recipes with a container hint inside their image.
	AllowContainers bool
}
