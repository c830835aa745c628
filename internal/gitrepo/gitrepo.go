// Package gitrepo implements scheduler.Git against the local git binary:
// one commit per task attempt, run inside the session's workspace
// directory.
package gitrepo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner shells out to the local git binary.
type Runner struct {
	AuthorName  string
	AuthorEmail string
}

// New returns a Runner with the default commit identity.
func New() *Runner {
	return &Runner{AuthorName: "nugget-orchestrator", AuthorEmail: "orchestrator@nugget.local"}
}

// Commit stages everything under workspacePath and commits it,
// attributing the change to agentName in the commit message. Returns
// the new commit's sha. A no-op diff (nothing to commit) is not an
// error — it returns the current HEAD sha instead.
func (r *Runner) Commit(ctx context.Context, workspacePath, taskID, agentName, message string) (string, error) {
	if err := r.run(ctx, workspacePath, "add", "-A"); err != nil {
		return "", err
	}
	if err := r.run(ctx, workspacePath, "diff", "--cached", "--quiet"); err == nil {
		return r.head(ctx, workspacePath)
	}

	commitMsg := fmt.Sprintf("[%s] %s: %s", taskID, agentName, message)
	if err := r.run(ctx, workspacePath,
		"-c", "user.name="+r.AuthorName,
		"-c", "user.email="+r.AuthorEmail,
		"commit", "--allow-empty-message", "-m", commitMsg,
	); err != nil {
		return "", err
	}

	return r.head(ctx, workspacePath)
}

func (r *Runner) head(ctx context.Context, workspacePath string) (string, error) {
	out, err := r.output(ctx, workspacePath, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (r *Runner) run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return nil
}

func (r *Runner) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}
