package entities

// PolicyAction is the verdict of a policy evaluation.
type PolicyAction string

const (
	PolicyActionAllow   PolicyAction = "allow"
	PolicyActionRewrite PolicyAction = "rewrite"
	PolicyActionDeny    PolicyAction = "deny"
)

// PolicyDecision is the outcome of evaluating one command string.
// Decisions are stateless and never persisted.
type PolicyDecision struct {
	Action PolicyAction `json:"action"`
	Reason string       `json:"reason"`
	// Command is the replacement command, set only when Action is rewrite.
	Command string `json:"command,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// IsDenied reports whether the decision blocks the command.
func (d PolicyDecision) IsDenied() bool {
	return d.Action == PolicyActionDeny
}

// EffectiveCommand returns the command that should run: the rewrite if
// there is one, otherwise original.
func (d PolicyDecision) EffectiveCommand(original string) string {
	if d.Action == PolicyActionRewrite && d.Command != "" {
		return d.Command
	}
	return original
}

// AllowDecision builds an allow decision.
func AllowDecision(reason string) PolicyDecision {
	return PolicyDecision{Action: PolicyActionAllow, Reason: reason}
}

// DenyDecision builds a deny decision.
func DenyDecision(reason, detail string) PolicyDecision {
	return PolicyDecision{Action: PolicyActionDeny, Reason: reason, Detail: detail}
}

// RewriteDecision builds a rewrite decision carrying the replacement command.
func RewriteDecision(reason, command, detail string) PolicyDecision {
	return PolicyDecision{Action: PolicyActionRewrite, Reason: reason, Command: command, Detail: detail}
}

// EvaluateOptions carries the execution context for a policy evaluation.
type EvaluateOptions struct {
	// Cwd resolves relative path arguments. Empty means the process working directory.
	Cwd string
	// AllowedRoots are paths the caller explicitly permits destructive operations under.
	AllowedRoots []string
}
