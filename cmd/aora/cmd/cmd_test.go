package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/aora/pkg/api"
	"github.com/ssargent/aora/pkg/config"
	"github.com/ssargent/aora/pkg/di"
	"github.com/ssargent/aora/pkg/store"
)

type testEnv struct {
	configPath string
	dataDir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tmpDir := t.TempDir()
	SetContainer(di.NewContainer())
	t.Cleanup(func() { SetContainer(nil) })
	return &testEnv{
		configPath: filepath.Join(tmpDir, "config.yaml"),
		dataDir:    filepath.Join(tmpDir, "data"),
	}
}

func (e *testEnv) logPath() string {
	return filepath.Join(e.dataDir, config.DefaultConfig().LogFile)
}

// run executes the root command with the environment's config and data
// directory flags and returns what was written to stdout
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	defer resetFlags()

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append(args, "--config", e.configPath, "--data-dir", e.dataDir))

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags() {
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	reset(rootCmd.PersistentFlags())
	for _, c := range rootCmd.Commands() {
		reset(c.Flags())
	}
}

func TestInitCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "", "init", "--keys", config.KeysBlake2b, "--print-key")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration created at "+env.configPath)
	assert.Contains(t, out, "API key: ")

	cfg, err := config.LoadConfig(env.configPath)
	require.NoError(t, err)
	assert.Equal(t, env.dataDir, cfg.DataDir)
	assert.Equal(t, config.KeysBlake2b, cfg.Keys)
	assert.Len(t, cfg.Security.APIKey, 64)
	assert.DirExists(t, env.dataDir)

	t.Run("existing config is kept", func(t *testing.T) {
		out, err := env.run(t, "", "init")
		require.NoError(t, err)
		assert.Contains(t, out, "already exists")

		again, err := config.LoadConfig(env.configPath)
		require.NoError(t, err)
		assert.Equal(t, cfg.Security.APIKey, again.Security.APIKey)
	})

	t.Run("force overwrites", func(t *testing.T) {
		_, err := env.run(t, "", "init", "--force")
		require.NoError(t, err)

		again, err := config.LoadConfig(env.configPath)
		require.NoError(t, err)
		assert.NotEqual(t, cfg.Security.APIKey, again.Security.APIKey)
		assert.Equal(t, config.KeysSequence, again.Keys)
	})

	t.Run("invalid key mode", func(t *testing.T) {
		_, err := env.run(t, "", "init", "--force", "--keys", "uuid")
		assert.Error(t, err)
	})
}

func TestAppendGetList(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "", "append", "a")
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)

	out, err = env.run(t, "b", "append")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, err = env.run(t, "", "append", "a")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	out, err = env.run(t, "", "get", "1")
	require.NoError(t, err)
	assert.Equal(t, "b", out)

	out, err = env.run(t, "", "ls")
	require.NoError(t, err)
	assert.Equal(t, "0\n1\n2\n", out)

	out, err = env.run(t, "", "ls", "--offset", "1", "--limit", "1")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	_, err = env.run(t, "", "get", "7")
	assert.ErrorContains(t, err, "key not found")

	_, err = env.run(t, "", "get", "seven")
	assert.ErrorIs(t, err, api.ErrInvalidKey)

	_, err = env.run(t, "", "ls", "--limit", "-1")
	assert.Error(t, err)
}

func TestAppendUsesConfiguredKeyMode(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "", "init", "--keys", config.KeysXXH3)
	require.NoError(t, err)

	first, err := env.run(t, "", "append", "same")
	require.NoError(t, err)
	second, err := env.run(t, "", "append", "same")
	require.NoError(t, err)

	assert.Len(t, strings.TrimSpace(first), 16)
	assert.Equal(t, first, second)

	out, err := env.run(t, "", "ls")
	require.NoError(t, err)
	assert.Equal(t, first, out)
}

func TestVerifyCommand(t *testing.T) {
	t.Run("clean log", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.run(t, "", "append", "record")
		require.NoError(t, err)

		out, err := env.run(t, "", "verify")
		require.NoError(t, err)
		assert.Contains(t, out, "State: ready (scanning -> ready)")
		assert.Contains(t, out, "Records validated: 1")
		assert.NotContains(t, out, "Torn tail")
	})

	t.Run("torn tail is repaired", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.run(t, "", "append", "record")
		require.NoError(t, err)

		info, err := os.Stat(env.logPath())
		require.NoError(t, err)
		clean := info.Size()

		f, err := os.OpenFile(env.logPath(), os.O_APPEND|os.O_WRONLY, 0600)
		require.NoError(t, err)
		_, err = f.Write([]byte{0x10, 0x00, 0x00})
		require.NoError(t, err)
		require.NoError(t, f.Close())

		out, err := env.run(t, "", "verify")
		require.NoError(t, err)
		assert.Contains(t, out, "State: ready (scanning -> repairing -> ready)")
		assert.Contains(t, out, "Torn tail truncated: 3 bytes at offset")

		info, err = os.Stat(env.logPath())
		require.NoError(t, err)
		assert.Equal(t, clean, info.Size())

		out, err = env.run(t, "", "get", "0")
		require.NoError(t, err)
		assert.Equal(t, "record", out)
	})

	t.Run("digest mismatch fails", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.run(t, "", "append", "record")
		require.NoError(t, err)

		data, err := os.ReadFile(env.logPath())
		require.NoError(t, err)
		data[len(data)-1] ^= 0xFF
		require.NoError(t, os.WriteFile(env.logPath(), data, 0600))

		out, err := env.run(t, "", "verify")
		assert.ErrorIs(t, err, store.ErrUnrecoverable)
		assert.Contains(t, out, "is corrupt at offset 0")

		after, err := os.ReadFile(env.logPath())
		require.NoError(t, err)
		assert.Equal(t, data, after)
	})
}

type fakeServerStarter struct {
	cfg     *config.Config
	opts    api.ServerOptions
	records int
}

func (f *fakeServerStarter) StartServer(_ context.Context, service *api.Service, cfg *config.Config, opts api.ServerOptions) error {
	f.cfg = cfg
	f.opts = opts
	_, f.records = service.Keys(0, 0)
	return nil
}

type fakeServerFactory struct {
	starter *fakeServerStarter
}

func (f *fakeServerFactory) CreateServerStarter() api.ServerStarter {
	return f.starter
}

func TestServeCommand(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "", "append", "served")
	require.NoError(t, err)

	starter := &fakeServerStarter{}
	container.SetServerFactory(&fakeServerFactory{starter: starter})

	_, err = env.run(t, "", "serve", "--port", "9400", "--api-key", "secret")
	require.NoError(t, err)

	require.NotNil(t, starter.cfg)
	assert.Equal(t, 9400, starter.cfg.Port)
	assert.Equal(t, "127.0.0.1", starter.cfg.Bind)
	assert.Equal(t, "secret", starter.cfg.Security.APIKey)
	assert.Equal(t, env.dataDir, starter.cfg.DataDir)
	assert.NotNil(t, starter.opts.Metrics)
	assert.NotNil(t, starter.opts.Gatherer)
	assert.NotNil(t, starter.opts.Logger)
	assert.Equal(t, 1, starter.records)

	families, err := starter.opts.Gatherer.Gather()
	require.NoError(t, err)
	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "aora_store_recoveries_total")
}

func TestCommandsWithoutContainer(t *testing.T) {
	env := newTestEnv(t)
	SetContainer(nil)

	_, err := env.run(t, "", "append", "x")
	assert.ErrorContains(t, err, "dependency container not initialized")
}
