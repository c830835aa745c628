package workspace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elisalabs/nugget-orchestrator/internal/common/constants"
)

func TestValidateEmptyIsAllowed(t *testing.T) {
	p := NewPolicy("", 0)
	resolved, err := p.Validate("")
	require.Nil(t, err)
	assert.Empty(t, resolved)
}

func TestValidateTooLongRejected(t *testing.T) {
	p := NewPolicy("", 0)
	long := strings.Repeat("a", constants.MaxWorkspacePathLen+1)
	_, err := p.Validate(long)
	assert.Error(t, err)
}

func TestValidateNullByteRejected(t *testing.T) {
	p := NewPolicy("", 0)
	_, err := p.Validate("/tmp/foo\x00bar")
	assert.Error(t, err)
}

func TestValidateUNCRejected(t *testing.T) {
	p := NewPolicy("", 0)
	_, err := p.Validate(`\\server\share\path`)
	assert.Error(t, err)
}

func TestValidateBlockedRootRejected(t *testing.T) {
	p := NewPolicy("", 0)
	_, err := p.Validate("/etc/nugget-orchestrator")
	assert.Error(t, err)
}

func TestValidateTempAlwaysAllowed(t *testing.T) {
	p := NewPolicy("", 0)
	resolved, err := p.Validate("/tmp/nugget-workspace-1")
	require.Nil(t, err)
	assert.NotEmpty(t, resolved)
}

func TestValidateRootOverrideRestricts(t *testing.T) {
	p := NewPolicy("/srv/nuggets", 0)
	_, err := p.Validate("/srv/nuggets/build-1")
	assert.Nil(t, err)

	_, err = p.Validate("/home/someone/build-1")
	assert.Error(t, err)
}
