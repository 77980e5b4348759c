package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCLI(run func(ctx context.Context, input Input) error) (*CLI, *bytes.Buffer, *bytes.Buffer) {
	c := NewCLI("candbc", "test")
	c.AddCommands(&cobra.Command{Use: "probe", RunE: WithContext(run)})
	var out, errOut bytes.Buffer
	c.Root().SetOut(&out)
	c.Root().SetErr(&errOut)
	return c, &out, &errOut
}

func TestWithContextDefaults(t *testing.T) {
	var got Input
	c, out, errOut := newTestCLI(func(_ context.Context, input Input) error {
		got = input
		input.Logger.Debug("hidden")
		input.Logger.Info("shown", "k", "v")
		_, err := input.Stdout.Write([]byte("result\n"))
		return err
	})
	c.Root().SetArgs([]string{"probe"})
	require.NoError(t, c.Root().Execute())

	require.NotNil(t, got.Config)
	assert.Equal(t, "info", got.Config.Log.Level)
	assert.Equal(t, "result\n", out.String())
	assert.Contains(t, errOut.String(), "msg=shown k=v")
	assert.NotContains(t, errOut.String(), "hidden")
}

func TestWithContextFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n  format: text\ngenerate:\n  default_node: GW\n"), 0o644))

	var node string
	c, _, errOut := newTestCLI(func(_ context.Context, input Input) error {
		node = input.Config.Generate.DefaultNode
		input.Logger.Debug("visible")
		return nil
	})
	c.Root().SetArgs([]string{"probe", "--config", path, "--log-level", "debug", "--log-format", "json"})
	require.NoError(t, c.Root().Execute())

	assert.Equal(t, "GW", node)
	assert.Contains(t, errOut.String(), `"msg":"visible"`)
}

func TestWithContextBadConfig(t *testing.T) {
	c, _, _ := newTestCLI(func(context.Context, Input) error { return nil })
	c.Root().SetArgs([]string{"probe", "--log-format", "xml"})
	assert.Error(t, c.Root().Execute())

	c, _, _ = newTestCLI(func(context.Context, Input) error { return nil })
	c.Root().SetArgs([]string{"probe", "--config", filepath.Join(t.TempDir(), "none.yaml")})
	assert.Error(t, c.Root().Execute())
}

func TestWithContextStandalone(t *testing.T) {
	called := false
	cmd := &cobra.Command{Use: "solo", RunE: WithContext(func(ctx context.Context, input Input) error {
		called = true
		assert.NotNil(t, ctx)
		assert.NotNil(t, input.Logger)
		return nil
	})}
	cmd.SetArgs([]string{})
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, cmd.Execute())
	assert.True(t, called)
}
