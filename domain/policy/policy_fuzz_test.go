package policy_test

import (
	"testing"

	"github.com/reglet-dev/execsafety/domain/entities"
	"github.com/reglet-dev/execsafety/domain/policy"
)

func FuzzEvaluate(f *testing.F) {
	e := policy.NewEngine(
		policy.WithWorkingDirectory("/home/dev/project"),
		policy.WithHomeDirectory("/home/dev"),
	)
	f.Add("sudo apt-get install jq")
	f.Add("rm -rf /")
	f.Add(`bash -c "rm -rf /usr/lib"`)
	f.Add(":(){ :|:& };:")
	f.Add(`echo "unterminated && pip install x`)

	f.Fuzz(func(t *testing.T, command string) {
		d := e.Evaluate(command, entities.EvaluateOptions{AllowedRoots: []string{"/tmp"}})
		switch d.Action {
		case entities.PolicyActionAllow, entities.PolicyActionDeny:
			if d.Command != "" {
				t.Fatalf("%s decision carries a command: %q", d.Action, d.Command)
			}
		case entities.PolicyActionRewrite:
			if d.Command == "" || d.Command == command {
				t.Fatalf("rewrite without a changed command for %q", command)
			}
		default:
			t.Fatalf("unknown action %q", d.Action)
		}
	})
}

func FuzzCatastrophicIgnoresAllowedRoots(f *testing.F) {
	e := policy.NewEngine(policy.WithHomeDirectory("/home/dev"))
	f.Add("rm -rf /", "/")
	f.Add("dd if=/dev/zero of=/dev/sda", "/dev")
	f.Add("mkfs.ext4 /dev/sdb1", "/home/dev")

	f.Fuzz(func(t *testing.T, command, root string) {
		base := e.Evaluate(command, entities.EvaluateOptions{})
		if base.Reason != "catastrophic command pattern" {
			return
		}
		d := e.Evaluate(command, entities.EvaluateOptions{Cwd: root, AllowedRoots: []string{root}})
		if d.Action != entities.PolicyActionDeny {
			t.Fatalf("catastrophic %q allowed with root %q", command, root)
		}
	})
}
