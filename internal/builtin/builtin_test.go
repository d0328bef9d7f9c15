package builtin

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorcha-inc/hsp/internal/parfile"
	"github.com/dorcha-inc/hsp/internal/params"
	"github.com/dorcha-inc/hsp/internal/registry"
	"github.com/dorcha-inc/hsp/internal/state"
	"github.com/dorcha-inc/hsp/internal/task"
)

func newRunner(t *testing.T, env *state.Environment) *task.Runner {
	t.Helper()
	reg, err := registry.New(Entries()...)
	require.NoError(t, err)
	r, err := task.NewRunner(task.Config{Env: env, Registry: reg, Echo: io.Discard})
	require.NoError(t, err)
	Register(r)
	return r
}

func TestEntries(t *testing.T) {
	entries := Entries()
	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, registry.KindNative, e.Kind)
		assert.Equal(t, Module, e.Module)
		require.NoError(t, e.Validate())

		f, err := parfile.Parse(e.Name+".par", e.EmbeddedPar)
		require.NoError(t, err, e.Name)
		assert.Equal(t, parfile.DefaultTaskMode, f.TaskMode(), e.Name)
	}
}

func TestTemplate(t *testing.T) {
	r := newRunner(t, nil)

	res, err := r.Run(context.Background(), "template", task.Args{"foo": "x", "bar": 3, "noprompt": true})
	require.NoError(t, err)

	assert.Equal(t, 0, res.ReturnCode())
	assert.Equal(t, "\nResetting the foo parameter from x to 3.\nNow foo = 3. and bar = 4.", res.Stdout())

	p := res.Params()
	v, _ := p.Get("foo")
	assert.Equal(t, parfile.StringValue("3"), v)
	v, _ = p.Get("bar")
	assert.Equal(t, parfile.IntValue(4), v)
}

func TestTemplate_IndefBar(t *testing.T) {
	r := newRunner(t, nil)

	res, err := r.Run(context.Background(), "template", task.Args{"bar": "INDEF", "noprompt": true, "stderr": true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ReturnCode())
	assert.Contains(t, res.Stderr(), "bar must be an integer")
}

func TestPlist(t *testing.T) {
	r := newRunner(t, nil)

	res, err := r.Run(context.Background(), "plist", task.Args{"task": "template", "noprompt": true})
	require.NoError(t, err)

	assert.Contains(t, res.Stdout(), "foo = none")
	assert.Contains(t, res.Stdout(), "Value to reset")
	assert.Contains(t, res.Stdout(), "(mode = ql)")
	assert.Equal(t, map[string]any{
		"task":   "template",
		"params": map[string]any{"foo": "none", "bar": int64(1), "mode": "ql"},
	}, res.Custom())
}

func TestPlist_UnknownTask(t *testing.T) {
	r := newRunner(t, nil)

	_, err := r.Run(context.Background(), "plist", task.Args{"task": "templat", "noprompt": true})
	var unknown *registry.UnknownTaskError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "template", unknown.Suggestion)
}

func TestPget(t *testing.T) {
	r := newRunner(t, nil)

	res, err := r.Run(context.Background(), "pget", task.Args{"task": "template", "pname": "bar", "noprompt": true})
	require.NoError(t, err)
	assert.Equal(t, "1\n", res.Stdout())
	assert.Equal(t, map[string]any{"value": int64(1)}, res.Custom())

	_, err = r.Run(context.Background(), "pget", task.Args{"task": "template", "pname": "ba", "noprompt": true})
	var unknown *params.UnknownParameterError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "bar", unknown.Suggestion)
}

func TestPunlearn(t *testing.T) {
	root := t.TempDir()
	userDir := filepath.Join(root, "pfiles")
	require.NoError(t, os.MkdirAll(userDir, 0o755))
	env, err := state.NewEnvironment(filepath.Join(root, "headas"), userDir+";"+filepath.Join(root, "headas", "syspfiles"))
	require.NoError(t, err)
	r := newRunner(t, env)

	// Running template learns its queried parameters.
	_, err = r.Run(context.Background(), "template", task.Args{"foo": "x", "bar": 7, "noprompt": true})
	require.NoError(t, err)
	learned := filepath.Join(userDir, "template.par")
	require.FileExists(t, learned)

	pget, err := r.Run(context.Background(), "pget", task.Args{"task": "template", "pname": "bar", "noprompt": true})
	require.NoError(t, err)
	assert.Equal(t, "7\n", pget.Stdout())

	res, err := r.Run(context.Background(), "punlearn", task.Args{"task": "template", "noprompt": true})
	require.NoError(t, err)
	assert.Contains(t, res.Stdout(), "Restored the default parameters of template")
	assert.Equal(t, map[string]any{"removed": []string{learned}}, res.Custom())
	assert.NoFileExists(t, learned)

	pget, err = r.Run(context.Background(), "pget", task.Args{"task": "template", "pname": "bar", "noprompt": true})
	require.NoError(t, err)
	assert.Equal(t, "1\n", pget.Stdout())
}

func TestPunlearn_NeedsEnvironment(t *testing.T) {
	r := newRunner(t, nil)

	_, err := r.Run(context.Background(), "punlearn", task.Args{"task": "template", "noprompt": true})
	var cfgErr *state.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
}
