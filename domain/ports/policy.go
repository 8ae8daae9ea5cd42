package ports

import "github.com/reglet-dev/execsafety/domain/entities"

// PolicyEvaluator decides whether a command may run and how.
// Implementations must be pure and safe for concurrent use.
type PolicyEvaluator interface {
	Evaluate(command string, opts entities.EvaluateOptions) entities.PolicyDecision
}
