// Package deps checks that the external commands asyncref shells out to can
// be found before a drain depends on them.
package deps

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"asyncref/internal/config"
)

// Requirement defines an external command asyncref relies on.
type Requirement struct {
	Name        string
	Command     string
	Dir         string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// RecomputeRequirements lists the recompute commands from cfg. The full
// rebuild is optional because only `update --force` needs it.
func RecomputeRequirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "Recompute",
			Command:     firstArg(cfg.Recompute.Command),
			Dir:         cfg.Recompute.WorkDir,
			Description: "Rebuilds the reference index for one queued record",
		},
		{
			Name:        "Full rebuild",
			Command:     firstArg(cfg.Recompute.FullCommand),
			Dir:         cfg.Recompute.WorkDir,
			Description: "Rebuilds the whole reference index",
			Optional:    true,
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
// Relative commands containing a path separator resolve against Dir.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		lookup := cmd
		if req.Dir != "" && strings.ContainsRune(cmd, filepath.Separator) && !filepath.IsAbs(cmd) {
			lookup = filepath.Join(req.Dir, cmd)
		}
		if _, err := exec.LookPath(lookup); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

func firstArg(argv []string) string {
	if len(argv) == 0 {
		return ""
	}
	return argv[0]
}
