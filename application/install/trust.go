package install

import (
	"github.com/reglet-dev/execsafety/domain/entities"
)

// FilterRecipes returns the recipes a trust policy permits, in attempt order.
//
//   - strict_verified keeps verified recipes only.
//   - verified_fallback keeps everything, verified recipes first, declared
//     order preserved within each group.
//   - best_effort keeps everything in declared order.
//
// Unknown policies are treated as strict_verified.
func FilterRecipes(recipes []entities.InstallRecipe, policy entities.TrustPolicy) []entities.InstallRecipe {
	out := make([]entities.InstallRecipe, 0, len(recipes))
	switch policy {
	case entities.TrustBestEffort:
		out = append(out, recipes...)
	case entities.TrustVerifiedFallback:
		for _, r := range recipes {
			if r.Verified {
				out = append(out, r)
			}
		}
		for _, r := range recipes {
			if !r.Verified {
				out = append(out, r)
			}
		}
	default:
		for _, r := range recipes {
			if r.Verified {
				out = append(out, r)
			}
		}
	}
	return out
}
