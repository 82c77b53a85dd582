package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"testing"

	"sloppy/internal/config"
	"sloppy/internal/content"
	"sloppy/internal/services"
)

func setHelperCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("SLOPPY_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestCommandPerformerDecodesResult(t *testing.T) {
	setHelperCommand(t, "echo")
	performer := &CommandPerformer{Kind: content.KindDraft, Argv: []string{"draft-tool"}}

	res, err := performer.Perform(context.Background(), Job{JobID: "j1", ItemID: "a", Kind: content.KindDraft, Prompt: "tides"})
	if err != nil {
		t.Fatalf("Perform returned error: %v", err)
	}
	if res.Draft != "echo: tides" || res.Cost != 0.25 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCommandPerformerFailures(t *testing.T) {
	tests := []struct {
		mode   string
		marker error
	}{
		{"failure", services.ErrExternalTool},
		{"badjson", services.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			setHelperCommand(t, tt.mode)
			performer := &CommandPerformer{Kind: content.KindRender, Argv: []string{"render-tool"}}
			_, err := performer.Perform(context.Background(), Job{JobID: "j2", Kind: content.KindRender})
			if !errors.Is(err, tt.marker) {
				t.Fatalf("expected %v, got %v", tt.marker, err)
			}
		})
	}

	performer := &CommandPerformer{Kind: content.KindPublish}
	if _, err := performer.Perform(context.Background(), Job{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestPerformersFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Jobs.Commands.Draft = []string{"draft.sh"}
	cfg.Jobs.Commands.Publish = []string{"publish.sh", "--live"}
	performers := PerformersFromConfig(&cfg)
	if len(performers) != 2 {
		t.Fatalf("expected 2 performers, got %d", len(performers))
	}
	if _, ok := performers[content.KindRender]; ok {
		t.Fatal("expected no render performer")
	}
	publish := performers[content.KindPublish].(*CommandPerformer)
	if len(publish.Argv) != 2 || publish.Argv[1] != "--live" {
		t.Fatalf("unexpected publish argv: %q", publish.Argv)
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("SLOPPY_HELPER_MODE") {
	case "echo":
		var job Job
		data, _ := io.ReadAll(os.Stdin)
		if err := json.Unmarshal(data, &job); err != nil {
			fmt.Fprintln(os.Stderr, "bad job payload")
			os.Exit(2)
		}
		fmt.Printf(`{"draft":"echo: %s","cost":0.25}`+"\n", job.Prompt)
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "render failed")
		os.Exit(1)
	case "badjson":
		fmt.Println("not-json")
		os.Exit(0)
	default:
		os.Exit(0)
	}
}
