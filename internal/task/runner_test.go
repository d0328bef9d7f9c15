package task

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dorcha-inc/hsp/internal/core"
	"github.com/dorcha-inc/hsp/internal/parfile"
	"github.com/dorcha-inc/hsp/internal/params"
	"github.com/dorcha-inc/hsp/internal/prompt"
	"github.com/dorcha-inc/hsp/internal/registry"
	"github.com/dorcha-inc/hsp/internal/state"
	hspTesting "github.com/dorcha-inc/hsp/internal/testing"
)

const tPar = `infile,s,a,,,,"Input file"
option,s,a,HC,,,"Option"
chatter,i,h,2,0,5,"Chatter"
clobber,b,h,no,,,"Overwrite existing output?"
`

// stubTool prints its command line, writes to stderr, optionally rewrites its
// own parameter file and exits with $T_EXIT.
const stubTool = `#!/bin/sh
echo "T $*"
echo "warning: stub" >&2
if [ -n "$T_REWRITE" ]; then
  printf '%s\n' "$T_REWRITE" > "${PFILES%%;*}/T.par"
fi
exit ${T_EXIT:-0}
`

type toolkit struct {
	env     *state.Environment
	userDir string
	sysDir  string
}

func newToolkit(t *testing.T) *toolkit {
	t.Helper()
	tk := hspTesting.NewToolkit(t)
	tk.AddTask(t, "T", tPar, stubTool)
	return &toolkit{env: tk.Env, userDir: tk.UserDir, sysDir: tk.SysDir}
}

func newTestRunner(t *testing.T, env *state.Environment, cfg Config, entries ...*registry.Entry) *Runner {
	t.Helper()
	if len(entries) == 0 {
		entries = []*registry.Entry{{Name: "T", Kind: registry.KindExternal}}
	}
	reg, err := registry.New(entries...)
	require.NoError(t, err)

	cfg.Env = env
	cfg.Registry = reg
	if cfg.Echo == nil {
		cfg.Echo = io.Discard
	}
	r, err := NewRunner(cfg)
	require.NoError(t, err)
	return r
}

func TestNewRunner_RequiresRegistry(t *testing.T) {
	_, err := NewRunner(Config{})
	require.Error(t, err)
}

func TestRun_ExternalScenario(t *testing.T) {
	tk := newToolkit(t)
	r := newTestRunner(t, tk.env, Config{})

	res, err := r.Run(context.Background(), "T", Args{"infile": "x.fits", "noprompt": true})
	require.NoError(t, err)

	assert.Equal(t, 0, res.ReturnCode())
	assert.Contains(t, res.Stdout(), "T x.fits option=HC chatter=2 clobber=no")
	assert.Contains(t, res.Stdout(), "warning: stub", "stderr is merged by default")
	assert.Empty(t, res.Stderr())

	p := res.Params()
	v, _ := p.Get("infile")
	assert.Equal(t, parfile.StringValue("x.fits"), v)
	v, _ = p.Get("option")
	assert.Equal(t, parfile.StringValue("HC"), v)
}

func TestRun_LearnsQueriedValues(t *testing.T) {
	tk := newToolkit(t)
	r := newTestRunner(t, tk.env, Config{})

	_, err := r.Run(context.Background(), "T", Args{"infile": "x.fits", "chatter": 4, "noprompt": true})
	require.NoError(t, err)

	learned, err := parfile.Load(filepath.Join(tk.userDir, "T.par"))
	require.NoError(t, err)
	infile, _ := learned.Lookup("infile")
	assert.Equal(t, parfile.StringValue("x.fits"), infile.Default)
	chatter, _ := learned.Lookup("chatter")
	assert.Equal(t, parfile.IntValue(2), chatter.Default, "hidden parameters are not learned")

	// The learned default now satisfies the required parameter.
	s, err := r.Resolve(context.Background(), "T", Args{"noprompt": true})
	require.NoError(t, err)
	v, _ := s.Get("infile")
	assert.Equal(t, parfile.StringValue("x.fits"), v)
}

func TestRun_UnstorableTextIsNotLearned(t *testing.T) {
	tk := newToolkit(t)
	r := newTestRunner(t, tk.env, Config{})

	for _, bad := range []string{"a\nb", "a\rb", `a,"b'`} {
		_, err := r.Run(context.Background(), "T", Args{"infile": bad, "noprompt": true})
		var mismatch *parfile.TypeMismatchError
		require.ErrorAs(t, err, &mismatch, "%q", bad)
		assert.Equal(t, "infile", mismatch.Param)
	}
	assert.NoFileExists(t, filepath.Join(tk.userDir, "T.par"))

	_, err := r.Run(context.Background(), "T", Args{"infile": `it's "x".fits`, "noprompt": true})
	require.NoError(t, err)

	s, err := r.Resolve(context.Background(), "T", Args{"option": "y", "noprompt": true})
	require.NoError(t, err)
	v, _ := s.Get("infile")
	assert.Equal(t, parfile.StringValue(`it's "x".fits`), v)
}

func TestRun_DisableLearn(t *testing.T) {
	tk := newToolkit(t)
	r := newTestRunner(t, tk.env, Config{DisableLearn: true})

	_, err := r.Run(context.Background(), "T", Args{"infile": "x.fits", "noprompt": true})
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(tk.userDir, "T.par"))
}

func TestRun_ReturnCodePassesThrough(t *testing.T) {
	tk := newToolkit(t)
	t.Setenv("T_EXIT", "3")
	r := newTestRunner(t, tk.env, Config{})

	res, err := r.Run(context.Background(), "T", Args{"infile": "x.fits", "noprompt": true})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ReturnCode())
}

func TestRun_StderrIsolation(t *testing.T) {
	tk := newToolkit(t)
	r := newTestRunner(t, tk.env, Config{})

	res, err := r.Run(context.Background(), "T", Args{"infile": "x.fits", "noprompt": true, "stderr": true})
	require.NoError(t, err)
	assert.NotContains(t, res.Stdout(), "warning: stub")
	assert.Equal(t, "warning: stub\n", res.Stderr())
}

func TestRun_VerbositySinks(t *testing.T) {
	tk := newToolkit(t)
	var echo bytes.Buffer
	r := newTestRunner(t, tk.env, Config{Echo: &echo})
	logFile := filepath.Join(t.TempDir(), "T.log")

	_, err := r.Run(context.Background(), "T", Args{"infile": "x.fits", "noprompt": true, "verbose": 20, "logfile": logFile})
	require.NoError(t, err)
	assert.Empty(t, echo.String(), "level 20 does not echo")

	_, err = r.Run(context.Background(), "T", Args{"infile": "y.fits", "noprompt": true, "verbose": 2, "logfile": logFile})
	require.NoError(t, err)
	assert.Contains(t, echo.String(), "y.fits")

	// #nosec G304 -- test file
	logged, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "x.fits", "the log file is appended")
	assert.Contains(t, string(logged), "y.fits")

	echo.Reset()
	_, err = r.Run(context.Background(), "T", Args{"infile": "z.fits", "noprompt": true, "verbose": 1})
	require.NoError(t, err)
	assert.Contains(t, echo.String(), "z.fits")
}

func TestRun_RefreshesRewrittenParFile(t *testing.T) {
	tk := newToolkit(t)
	t.Setenv("T_REWRITE", strings.Replace(tPar, "option,s,a,HC", "option,s,a,LC", 1))
	r := newTestRunner(t, tk.env, Config{})

	res, err := r.Run(context.Background(), "T", Args{"infile": "x.fits", "noprompt": true})
	require.NoError(t, err)

	v, _ := res.Params().Get("option")
	assert.Equal(t, parfile.StringValue("LC"), v)
	v, _ = res.Params().Get("infile")
	assert.Equal(t, parfile.StringValue("x.fits"), v, "supplied values win over the rewritten file")
}

func TestResolve_NoPromptMissing(t *testing.T) {
	tk := newToolkit(t)
	r := newTestRunner(t, tk.env, Config{})

	_, err := r.Run(context.Background(), "T", Args{"noprompt": true})
	var missing *params.MissingParameterError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"infile"}, missing.Names)
}

func TestResolve_NoPromptMissingListsAll(t *testing.T) {
	dir := t.TempDir()
	parPath := filepath.Join(dir, "pair.par")
	require.NoError(t, os.WriteFile(parPath, []byte(`infile,f,a,,,,"Input"
outfile,f,a,,,,"Output"
mode,s,h,"ql",,,"Mode"
`), 0o644))

	r := newTestRunner(t, nil, Config{}, &registry.Entry{Name: "pair", Kind: registry.KindExternal, ParFile: parPath})

	_, err := r.Resolve(context.Background(), "pair", Args{"noprompt": true})
	var missing *params.MissingParameterError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"infile", "outfile"}, missing.Names)
}

func TestResolve_NilPrompterActsAsNoPrompt(t *testing.T) {
	tk := newToolkit(t)
	r := newTestRunner(t, tk.env, Config{})

	_, err := r.Resolve(context.Background(), "T")
	var missing *params.MissingParameterError
	require.True(t, errors.As(err, &missing))
}

func TestResolve_Prompts(t *testing.T) {
	tk := newToolkit(t)
	var questions bytes.Buffer
	resolver := prompt.NewResolver(strings.NewReader("prompted.fits\n"), &questions, 3)
	r := newTestRunner(t, tk.env, Config{Prompter: resolver})

	s, err := r.Resolve(context.Background(), "T")
	require.NoError(t, err)
	v, _ := s.Get("infile")
	assert.Equal(t, parfile.StringValue("prompted.fits"), v)
	assert.Contains(t, questions.String(), "Input file")

	learned, err := parfile.Load(filepath.Join(tk.userDir, "T.par"))
	require.NoError(t, err)
	infile, ok := learned.Lookup("infile")
	require.True(t, ok)
	assert.Equal(t, "prompted.fits", infile.Default.String())
}

func TestResolve_Deterministic(t *testing.T) {
	tk := newToolkit(t)
	r := newTestRunner(t, tk.env, Config{})
	args := Args{"infile": "x.fits", "chatter": "3", "noprompt": true}

	first, err := r.Resolve(context.Background(), "T", args)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "T", args)
	require.NoError(t, err)

	assert.Equal(t, first.String(), second.String())
	assert.Equal(t, first.Values(), second.Values())
}

func TestResolve_BooleanNormalization(t *testing.T) {
	tk := newToolkit(t)
	r := newTestRunner(t, tk.env, Config{})

	for _, in := range []any{true, "yes", 1, "Y"} {
		s, err := r.Resolve(context.Background(), "T", Args{"infile": "x.fits", "clobber": in, "noprompt": true})
		require.NoError(t, err)
		v, _ := s.Get("clobber")
		assert.Equal(t, parfile.BoolValue(true), v, "%#v", in)
	}
	for _, in := range []any{false, "no", 0, "F"} {
		s, err := r.Resolve(context.Background(), "T", Args{"infile": "x.fits", "clobber": in, "noprompt": true})
		require.NoError(t, err)
		v, _ := s.Get("clobber")
		assert.Equal(t, parfile.BoolValue(false), v, "%#v", in)
	}
}

func TestResolve_TypeMismatch(t *testing.T) {
	tk := newToolkit(t)
	r := newTestRunner(t, tk.env, Config{})

	_, err := r.Resolve(context.Background(), "T", Args{"infile": "x.fits", "chatter": "lots", "noprompt": true})
	var mismatch *parfile.TypeMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "chatter", mismatch.Param)
	assert.Equal(t, parfile.TypeInt, mismatch.Expected)
	assert.Equal(t, "lots", mismatch.Value)
}

func TestResolve_UnknownParameter(t *testing.T) {
	tk := newToolkit(t)
	r := newTestRunner(t, tk.env, Config{})

	_, err := r.Resolve(context.Background(), "T", Args{"infil": "x.fits", "noprompt": true})
	var unknown *params.UnknownParameterError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "infil", unknown.Name)
	assert.Equal(t, "infile", unknown.Suggestion)
}

func TestResolve_LaterSourcesWin(t *testing.T) {
	tk := newToolkit(t)
	r := newTestRunner(t, tk.env, Config{DisableLearn: true})

	previous, err := r.Resolve(context.Background(), "T", Args{"infile": "a.fits", "option": "LC", "noprompt": true})
	require.NoError(t, err)

	s, err := r.Resolve(context.Background(), "T", previous, Args{"infile": "b.fits", "noprompt": true})
	require.NoError(t, err)
	v, _ := s.Get("infile")
	assert.Equal(t, parfile.StringValue("b.fits"), v)
	v, _ = s.Get("option")
	assert.Equal(t, parfile.StringValue("LC"), v)
}

func TestRun_UnknownTask(t *testing.T) {
	tk := newToolkit(t)
	r := newTestRunner(t, tk.env, Config{})

	_, err := r.Run(context.Background(), "TT")
	var unknown *registry.UnknownTaskError
	require.True(t, errors.As(err, &unknown))
}

func TestRun_MissingToolkit(t *testing.T) {
	r := newTestRunner(t, nil, Config{})

	_, err := r.Run(context.Background(), "T", Args{"noprompt": true})
	var cfgErr *state.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, state.EnvHeadas, cfgErr.Key)
}

func TestInstance(t *testing.T) {
	tk := newToolkit(t)
	r := newTestRunner(t, tk.env, Config{DisableLearn: true})

	inst, err := r.NewInstance("T")
	require.NoError(t, err)
	assert.Equal(t, []string{"infile", "option", "chatter", "clobber"}, inst.Names())

	require.NoError(t, inst.Set("infile", "x.fits"))
	var unknown *params.UnknownParameterError
	require.True(t, errors.As(inst.Set("bogus", 1), &unknown))

	v, ok := inst.Get("option")
	require.True(t, ok)
	assert.Equal(t, "HC", v)
	assert.Equal(t, map[string]any{"infile": parfile.StringValue("x.fits")}, inst.Values())

	res, err := inst.Run(context.Background(), Args{"option": "LC", "noprompt": true})
	require.NoError(t, err)
	assert.Contains(t, res.Stdout(), "T x.fits option=LC")

	v, _ = inst.Get("option")
	assert.Equal(t, "LC", v, "the instance adopts the values of the last run")
}

func TestPrivateScope_ConcurrentRunsLeaveSharedFileAlone(t *testing.T) {
	tk := newToolkit(t)
	shared := filepath.Join(tk.userDir, "T.par")
	original := strings.Replace(tPar, `infile,s,a,,`, `infile,s,a,orig.fits,`, 1)
	require.NoError(t, os.WriteFile(shared, []byte(original), 0o644))

	r := newTestRunner(t, tk.env, Config{})

	g, ctx := errgroup.WithContext(context.Background())
	for _, value := range []string{"a.fits", "b.fits"} {
		g.Go(func() error {
			scope, err := state.AcquirePrivateScope(tk.env, "")
			if err != nil {
				return err
			}
			defer core.LogDeferredError(scope.Release)

			res, err := r.WithEnvironment(scope.Environment()).Run(ctx, "T", Args{"infile": value, "noprompt": true})
			if err != nil {
				return err
			}
			if v, _ := res.Params().Get("infile"); v != parfile.StringValue(value) {
				return fmt.Errorf("run with %s resolved infile to %s", value, v)
			}

			learned, err := parfile.Load(filepath.Join(scope.Dir(), "T.par"))
			if err != nil {
				return err
			}
			if d, _ := learned.Lookup("infile"); d.Default != parfile.StringValue(value) {
				return fmt.Errorf("private file learned %s, want %s", d.Default, value)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// #nosec G304 -- test file
	after, err := os.ReadFile(shared)
	require.NoError(t, err)
	assert.Equal(t, original, string(after))
}

func nativeEntry(name, entryPoint string) *registry.Entry {
	return &registry.Entry{
		Name:        name,
		Kind:        registry.KindNative,
		EntryPoint:  entryPoint,
		EmbeddedPar: []byte("msg,s,a,,,,\"Message\"\nmode,s,h,\"ql\",,,\"Mode\"\n"),
	}
}

func TestRun_Native(t *testing.T) {
	r := newTestRunner(t, nil, Config{}, nativeEntry("say-it", "say"))
	r.RegisterNative("say", func(_ context.Context, call *NativeCall) (*TaskResult, error) {
		v, _ := call.Params.Get("msg")
		core.MustFprintf(call.Stdout, "said %s", v)
		core.MustFprintf(call.Stderr, "!")
		if err := call.Params.Set("msg", "done"); err != nil {
			return nil, err
		}
		return call.Result(0, map[string]any{"length": len(v.Str())}), nil
	})

	res, err := r.Run(context.Background(), "say_it", Args{"msg": "hi", "noprompt": true})
	require.NoError(t, err)
	assert.Equal(t, "said hi!", res.Stdout())
	assert.Equal(t, map[string]any{"length": 2}, res.Custom())
	v, _ := res.Params().Get("msg")
	assert.Equal(t, parfile.StringValue("done"), v)
}

func TestRun_NativeNilResult(t *testing.T) {
	r := newTestRunner(t, nil, Config{}, nativeEntry("quiet", "quiet"))
	r.RegisterNative("quiet", func(context.Context, *NativeCall) (*TaskResult, error) { return nil, nil })

	res, err := r.Run(context.Background(), "quiet", Args{"msg": "x", "noprompt": true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ReturnCode())
}

func TestRun_NativePanic(t *testing.T) {
	r := newTestRunner(t, nil, Config{}, nativeEntry("boom", "boom"))
	r.RegisterNative("boom", func(context.Context, *NativeCall) (*TaskResult, error) { panic("kaboom") })

	_, err := r.Run(context.Background(), "boom", Args{"msg": "x", "noprompt": true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRun_NativeNotRegistered(t *testing.T) {
	r := newTestRunner(t, nil, Config{}, nativeEntry("orphan", "orphan"))

	_, err := r.Run(context.Background(), "orphan", Args{"msg": "x", "noprompt": true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no implementation registered")
}
