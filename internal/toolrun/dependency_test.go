package toolrun

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []Command
	fn    func(Command) (Result, error)
}

func (f *fakeRunner) Run(_ context.Context, c Command) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.fn == nil {
		return Result{}, nil
	}
	return f.fn(c)
}

func stubLookPath(t *testing.T, present func(string) bool) {
	t.Helper()
	orig := lookPath
	lookPath = func(name string) (string, error) {
		if present(name) {
			return "/usr/bin/" + name, nil
		}
		return "", exec.ErrNotFound
	}
	t.Cleanup(func() { lookPath = orig })
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("14")
	require.NoError(t, err)
	assert.Equal(t, Version{14, 0, 0}, v)

	v, err = ParseVersion("0.6.4")
	require.NoError(t, err)
	assert.Equal(t, Version{0, 6, 4}, v)

	_, err = ParseVersion("x.1")
	assert.Error(t, err)
	_, err = ParseVersion("")
	assert.Error(t, err)
}

func TestFindVersion(t *testing.T) {
	v, ok := FindVersion("Ubuntu clang version 14.0.6-2\nTarget: x86_64")
	require.True(t, ok)
	assert.Equal(t, Version{14, 0, 6}, v)

	_, ok = FindVersion("no digits here")
	assert.False(t, ok)
}

func TestVersionCompare(t *testing.T) {
	assert.Equal(t, -1, MustVersion("0.6.3").Compare(MustVersion("0.6.4")))
	assert.Equal(t, 0, MustVersion("14").Compare(Version{14, 0, 0}))
	assert.Equal(t, 1, MustVersion("15.0.1").Compare(MustVersion("14.9.9")))
}

func TestDependencyCheck_Missing(t *testing.T) {
	stubLookPath(t, func(string) bool { return false })
	err := Dependency{Name: "sparse"}.Check(context.Background(), &fakeRunner{})
	var de *DependencyError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "sparse", de.Name)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDependencyCheck_Version(t *testing.T) {
	stubLookPath(t, func(string) bool { return true })
	r := &fakeRunner{fn: func(c Command) (Result, error) {
		return Result{Stdout: "sparse 0.6.3\n"}, nil
	}}

	err := Dependency{Name: "sparse", Min: MustVersion("0.6.4")}.Check(context.Background(), r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "older than 0.6.4")

	err = Dependency{Name: "sparse", Min: MustVersion("0.6.0"), Max: MustVersion("0.6.3")}.Check(context.Background(), r)
	assert.NoError(t, err)

	err = Dependency{Name: "sparse", Max: MustVersion("0.5")}.Check(context.Background(), r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than")

	require.Len(t, r.calls, 3)
	assert.Equal(t, []string{"--version"}, r.calls[0].Args)
}

func TestDependencyCheck_UnboundedSkipsProbe(t *testing.T) {
	stubLookPath(t, func(string) bool { return true })
	r := &fakeRunner{}
	require.NoError(t, Dependency{Name: "make"}.Check(context.Background(), r))
	assert.Empty(t, r.calls)
}

func TestDependencyDescribe(t *testing.T) {
	assert.Equal(t, "clang >= 14.0.0", Dependency{Name: "clang", Min: MustVersion("14")}.Describe())
	assert.Equal(t, "$OPENAI_API_KEY", EnvDependency{Name: "OPENAI_API_KEY"}.Describe())
}

func TestEnvVarCheck(t *testing.T) {
	t.Setenv("PATCHWISE_TEST_KEY", "")
	err := EnvDependency{Name: "PATCHWISE_TEST_KEY"}.Check(context.Background(), nil)
	var de *DependencyError
	require.ErrorAs(t, err, &de)
	assert.True(t, de.Credential)
	t.Setenv("PATCHWISE_TEST_KEY", "secret")
	assert.NoError(t, EnvDependency{Name: "PATCHWISE_TEST_KEY"}.Check(context.Background(), nil))
}

func TestInstall_UsesFirstPackageManager(t *testing.T) {
	installed := false
	stubLookPath(t, func(name string) bool {
		switch name {
		case "apt-get", "dnf":
			return true
		case "codespell":
			return installed
		}
		return false
	})
	r := &fakeRunner{fn: func(c Command) (Result, error) {
		if strings.Contains(c.String(), "apt-get install -y codespell") {
			installed = true
		}
		return Result{}, nil
	}}

	err := Install(context.Background(), r, Dependency{Name: "codespell"}, nil)
	require.NoError(t, err)
	require.Len(t, r.calls, 2)
	assert.Contains(t, r.calls[0].String(), "apt-get update")
	for _, c := range r.calls {
		assert.NotContains(t, c.String(), "dnf")
	}
}

func TestInstall_NoPackageManager(t *testing.T) {
	stubLookPath(t, func(string) bool { return false })
	err := Install(context.Background(), &fakeRunner{}, Dependency{Name: "sparse"}, nil)
	var de *DependencyError
	require.True(t, errors.As(err, &de))
	assert.Contains(t, err.Error(), "install failed")
}

func TestInstall_EnvVarNotInstallable(t *testing.T) {
	t.Setenv("PATCHWISE_TEST_KEY", "")
	err := Install(context.Background(), &fakeRunner{}, EnvDependency{Name: "PATCHWISE_TEST_KEY"}, nil)
	assert.Error(t, err)
}
