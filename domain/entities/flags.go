package entities

// FeatureFlags gates each platform subsystem independently.
type FeatureFlags struct {
	LifecycleEvents      bool `json:"lifecycleEvents" yaml:"lifecycle_events"`
	InstallOrchestration bool `json:"installOrchestration" yaml:"install_orchestration"`
	CheckpointRollback   bool `json:"checkpointRollback" yaml:"checkpoint_rollback"`
	ContainerExecution   bool `json:"containerExecution" yaml:"container_execution"`
}

// DefaultFeatureFlags enables events only; installs and rollback are opt-in rollouts.
func DefaultFeatureFlags() FeatureFlags {
	return FeatureFlags{LifecycleEvents: true}
}
