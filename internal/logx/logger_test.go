package logx

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewText_LevelFollowsVerbose(t *testing.T) {
	t.Parallel()

	var quiet bytes.Buffer
	l := NewText(&quiet, false)
	l.Debug("hidden")
	l.Warn("shown", "class", "Posts")
	assert.NotContains(t, quiet.String(), "hidden")
	assert.Contains(t, quiet.String(), "class=Posts")

	var loud bytes.Buffer
	NewText(&loud, true).With("api", "Blog").Debug("visible")
	assert.Contains(t, loud.String(), "visible")
	assert.Contains(t, loud.String(), "api=Blog")
}

func TestOrNop(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Nop{}, OrNop(nil))
	l := NewSlog(nil)
	assert.Same(t, l, OrNop(l))
}
