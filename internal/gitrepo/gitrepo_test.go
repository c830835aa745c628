package gitrepo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}
}

func initRepo(t *testing.T, dir string) {
	t.Helper()
	cmd := exec.Command("git", "init")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())
}

func TestCommitProducesNewSHAPerTask(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	initRepo(t, dir)

	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	writeFile(t, dir, "a.txt", "first")
	sha1, err := r.Commit(ctx, dir, "t1", "builder-1", "scaffold")
	require.NoError(t, err)
	assert.NotEmpty(t, sha1)

	writeFile(t, dir, "b.txt", "second")
	sha2, err := r.Commit(ctx, dir, "t2", "builder-1", "add feature")
	require.NoError(t, err)
	assert.NotEmpty(t, sha2)

	assert.NotEqual(t, sha1, sha2)
}

func TestCommitWithNoChangesReturnsCurrentHead(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	initRepo(t, dir)

	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	writeFile(t, dir, "a.txt", "content")
	sha1, err := r.Commit(ctx, dir, "t1", "builder-1", "scaffold")
	require.NoError(t, err)

	sha2, err := r.Commit(ctx, dir, "t2", "builder-1", "no-op")
	require.NoError(t, err)

	assert.Equal(t, sha1, sha2)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
