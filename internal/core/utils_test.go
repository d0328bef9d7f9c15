package core

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMustFprintf(t *testing.T) {
	var buf bytes.Buffer
	MustFprintf(&buf, "%s=%d", "chatter", 2)
	assert.Equal(t, "chatter=2", buf.String())
}

func TestJoinMapKeys(t *testing.T) {
	keys := map[string]struct{}{"ql": {}, "a": {}, "h": {}}
	assert.Equal(t, "a, h, ql", JoinMapKeys(keys))
	assert.Equal(t, "", JoinMapKeys(map[int]struct{}{}))
}

func TestGetEnv(t *testing.T) {
	t.Setenv("PFILES", "/plain")
	assert.Equal(t, "/plain", GetEnv("PFILES"))

	t.Setenv("HSP_PFILES", "/prefixed")
	assert.Equal(t, "/prefixed", GetEnv("PFILES"))
}

func TestMergeEnv(t *testing.T) {
	base := []string{"PATH=/bin", "PFILES=/old", "HOME=/root"}
	merged := MergeEnv(base, map[string]string{"PFILES": "/new", "HEADAS": "/opt/heasoft"})

	assert.Equal(t, []string{"PATH=/bin", "PFILES=/new", "HOME=/root", "HEADAS=/opt/heasoft"}, merged)
	assert.Equal(t, []string{"PATH=/bin", "PFILES=/old", "HOME=/root"}, base)
}
