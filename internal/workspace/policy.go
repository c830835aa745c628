// Package workspace implements the workspace-path acceptance policy, the
// persisted-artifact writer run at session start, and the ZIP export
// endpoint. No example repo in the pack implements an OS-path
// allow/block-list of this shape, so this file is a fresh,
// stdlib-path/filepath implementation — the policy itself is spec-literal
// (see SPEC_FULL.md §6/§11), which is the justification recorded in
// DESIGN.md for using only the standard library here.
package workspace

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/elisalabs/nugget-orchestrator/internal/common/apperrors"
	"github.com/elisalabs/nugget-orchestrator/internal/common/constants"
)

// blockedRoots are rejected as prefixes, case-insensitively on Windows.
var blockedRoots = []string{
	"/bin", "/sbin", "/usr", "/etc", "/var", "/boot", "/lib", "/lib64",
	"/proc", "/sys", "/dev", "/root",
	`C:\Windows`, `C:\Program Files`, `C:\Program Files (x86)`,
}

// blockedHomeSubdirs are rejected when they appear as a subdirectory of
// the caller's home directory.
var blockedHomeSubdirs = []string{
	".ssh", ".aws", ".gnupg", filepath.Join(".config", "gcloud"),
}

// Policy validates and resolves workspace paths: length/null-byte/UNC
// checks, blocked system roots, blocked home subdirectories, an
// OS-temp always-allow, and an optional strict allow-root from
// ELISA_WORKSPACE_ROOT.
type Policy struct {
	// RootOverride, when non-empty, is the strict allow-root: every
	// accepted path must resolve under it.
	RootOverride string
	MaxPathLen   int
}

// NewPolicy returns a Policy with the given config-sourced values.
func NewPolicy(rootOverride string, maxPathLen int) *Policy {
	if maxPathLen <= 0 {
		maxPathLen = constants.MaxWorkspacePathLen
	}
	return &Policy{RootOverride: rootOverride, MaxPathLen: maxPathLen}
}

// Validate checks path against policy and returns the resolved absolute
// path, or an *apperrors.AppError with code WorkspacePathRejected.
func (p *Policy) Validate(path string) (string, *apperrors.AppError) {
	if path == "" {
		return "", nil // empty is valid: the orchestrator creates a temp workspace
	}
	if len(path) > p.MaxPathLen {
		return "", apperrors.WorkspacePathRejected(path, "workspace path exceeds maximum length")
	}
	if strings.ContainsRune(path, 0) {
		return "", apperrors.WorkspacePathRejected(path, "workspace path contains a null byte")
	}
	if strings.HasPrefix(path, `\\`) {
		return "", apperrors.WorkspacePathRejected(path, "UNC paths are not allowed")
	}

	resolved, err := filepath.Abs(path)
	if err != nil {
		return "", apperrors.WorkspacePathRejected(path, "workspace path could not be resolved")
	}
	resolved = filepath.Clean(resolved)

	if strings.Contains(resolved, "..") {
		return "", apperrors.WorkspacePathRejected(path, "workspace path must not contain parent-directory segments")
	}

	if isTemp(resolved) {
		return resolved, nil
	}

	if p.RootOverride != "" {
		override, err := filepath.Abs(p.RootOverride)
		if err != nil {
			return "", apperrors.WorkspacePathRejected(path, "workspace root override could not be resolved")
		}
		if !withinRoot(resolved, filepath.Clean(override)) {
			return "", apperrors.WorkspacePathRejected(path, "workspace path must be under the configured workspace root")
		}
		return resolved, nil
	}

	cmp := resolved
	if runtime.GOOS == "windows" {
		cmp = strings.ToLower(resolved)
	}
	for _, root := range blockedRoots {
		r := root
		if runtime.GOOS == "windows" {
			r = strings.ToLower(r)
		}
		if withinRoot(cmp, r) {
			return "", apperrors.WorkspacePathRejected(path, "workspace path is within a blocked system directory")
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		home = filepath.Clean(home)
		for _, sub := range blockedHomeSubdirs {
			if withinRoot(resolved, filepath.Join(home, sub)) {
				return "", apperrors.WorkspacePathRejected(path, "workspace path is within a blocked home subdirectory")
			}
		}
	}

	return resolved, nil
}

func isTemp(resolved string) bool {
	tmp := filepath.Clean(os.TempDir())
	return withinRoot(resolved, tmp)
}

func withinRoot(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
