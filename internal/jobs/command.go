package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"sloppy/internal/config"
	"sloppy/internal/content"
	"sloppy/internal/services"
)

var commandContext = exec.CommandContext

const stderrTail = 512

// CommandPerformer runs a stage collaborator as a child process. The job is
// written to stdin as JSON and a Result is read back from stdout.
type CommandPerformer struct {
	Kind content.Kind
	Argv []string
}

// PerformersFromConfig builds a performer for every stage with a configured command.
func PerformersFromConfig(cfg *config.Config) map[content.Kind]Performer {
	performers := make(map[content.Kind]Performer)
	for _, kind := range []content.Kind{content.KindDraft, content.KindRender, content.KindPublish} {
		argv := cfg.CommandFor(string(kind))
		if len(argv) == 0 {
			continue
		}
		performers[kind] = &CommandPerformer{Kind: kind, Argv: argv}
	}
	return performers
}

// Perform executes the command for job.
func (c *CommandPerformer) Perform(ctx context.Context, job Job) (Result, error) {
	stage := string(c.Kind)
	if len(c.Argv) == 0 {
		return Result{}, services.Wrap(services.ErrConfiguration, stage, "command", "no command configured", nil)
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, stage, "encode job", "", err)
	}

	cmd := commandContext(ctx, c.Argv[0], c.Argv[1:]...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return Result{}, services.Wrap(services.ErrTimeout, stage, "command", c.Argv[0]+" did not finish", ctxErr)
			}
			return Result{}, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := fmt.Sprintf("%s exited with code %d", c.Argv[0], exitErr.ExitCode())
			if tail := tailString(stderr.String(), stderrTail); tail != "" {
				msg += ": " + tail
			}
			return Result{}, services.Wrap(services.ErrExternalTool, stage, "command", msg, nil)
		}
		return Result{}, services.Wrap(services.ErrExternalTool, stage, "command", "start "+c.Argv[0], err)
	}

	var result Result
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &result); err != nil {
		return Result{}, services.Wrap(services.ErrValidation, stage, "decode result",
			tailString(stdout.String(), stderrTail), err)
	}
	return result, nil
}

func tailString(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return "..." + value[len(value)-limit:]
}
