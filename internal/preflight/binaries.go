package preflight

import (
	"fmt"
	"os/exec"
	"strings"

	"sloppy/internal/config"
)

// Requirement defines an external binary a stage relies on.
type Requirement struct {
	Name    string
	Command string
}

// BinaryStatus reports the availability of a required binary.
type BinaryStatus struct {
	Name      string
	Command   string
	Available bool
	Detail    string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []BinaryStatus {
	results := make([]BinaryStatus, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := BinaryStatus{Name: req.Name, Command: cmd}
		if cmd == "" {
			status.Detail = "command not configured"
		} else if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
		} else {
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}

// CheckStageCommands resolves the first argv entry of each stage command.
func CheckStageCommands(cfg *config.Config) []BinaryStatus {
	requirements := make([]Requirement, 0, 3)
	for _, stage := range []string{"draft", "render", "publish"} {
		req := Requirement{Name: stage + " command"}
		if argv := cfg.CommandFor(stage); len(argv) > 0 {
			req.Command = argv[0]
		}
		requirements = append(requirements, req)
	}
	return CheckBinaries(requirements)
}
