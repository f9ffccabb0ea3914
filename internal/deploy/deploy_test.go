package deploy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dyluth/dtioctl/internal/config"
	"github.com/dyluth/dtioctl/internal/envpatch"
	"github.com/dyluth/dtioctl/internal/mechanism"
	"github.com/dyluth/dtioctl/internal/pathpolicy"
	"github.com/dyluth/dtioctl/internal/topology"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const libDir = "/opt/dtio/lib"

func testEnv(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func setup(t *testing.T, libs ...mechanism.Mechanism) (afero.Fs, *Deployer) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, m := range libs {
		path := libDir + "/" + mechanism.Linux.FileName(m)
		require.NoError(t, afero.WriteFile(fs, path, []byte("\x7fELF"), 0755))
	}
	return fs, NewDeployer(fs, mechanism.Linux, testEnv(map[string]string{"HOME": "/home/u"}))
}

func declaration() *config.Deployment {
	d := config.Default()
	d.Name = "demo"
	d.SharedDir = "${HOME}/shared"
	d.LibraryPaths = []string{libDir}
	d.Interceptors.POSIX = true
	return d
}

func TestPrepare_PublishesBothDocuments(t *testing.T) {
	fs, deployer := setup(t, mechanism.POSIX)

	result, err := deployer.Prepare(context.Background(), declaration(), envpatch.Env{})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "demo", result.Deployment)
	assert.Equal(t, "/home/u/shared", result.SharedDir)
	assert.Equal(t, "/home/u/shared/dtio_config.yaml", result.ConfigPath)
	assert.Equal(t, "/home/u/shared/dtio_paths.yaml", result.PolicyPath)

	data, err := afero.ReadFile(fs, result.ConfigPath)
	require.NoError(t, err)
	topo, err := topology.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "/home/u/DTIO/run-test/test", topo.WorkerPath)
	assert.Equal(t, 4, topo.NumWorkers)

	data, err = afero.ReadFile(fs, result.PolicyPath)
	require.NoError(t, err)
	policy, err := pathpolicy.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, pathpolicy.DefaultInclude, policy.Include())

	// Only the two documents remain; staged files are gone
	entries, err := afero.ReadDir(fs, result.SharedDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{ConfigFileName, PolicyFileName}, names)
}

func TestPrepare_Environment(t *testing.T) {
	_, deployer := setup(t, mechanism.POSIX)

	base := envpatch.Env{"LD_PRELOAD": "/usr/lib/libfaketime.so", "PATH": "/usr/bin"}
	result, err := deployer.Prepare(context.Background(), declaration(), base)
	require.NoError(t, err)

	posix := libDir + "/libdtio_posix_interception.so"
	assert.Equal(t, "/usr/lib/libfaketime.so:"+posix, result.Env["LD_PRELOAD"])
	assert.Equal(t, posix, result.Env["DTIO_POSIX"])
	assert.Equal(t, "/opt/dtio", result.Env["DTIO_ROOT"])
	assert.Equal(t, result.ConfigPath, result.Env[topology.ConfigPathVar])
	assert.Equal(t, result.PolicyPath, result.Env[pathpolicy.PathVar])
	assert.Equal(t, "/usr/bin", result.Env["PATH"])

	// The base environment is not modified
	assert.Equal(t, "/usr/lib/libfaketime.so", base["LD_PRELOAD"])
	assert.NotContains(t, base, topology.ConfigPathVar)
}

func TestResult_ContainerEnv(t *testing.T) {
	_, deployer := setup(t, mechanism.POSIX)

	posix := libDir + "/libdtio_posix_interception.so"
	base := envpatch.Env{"LD_PRELOAD": "/usr/lib/libfaketime.so:" + posix, "PATH": "/usr/bin"}
	result, err := deployer.Prepare(context.Background(), declaration(), base)
	require.NoError(t, err)

	env := result.ContainerEnv()
	assert.NotContains(t, env, "PATH")
	assert.Equal(t, posix, env["LD_PRELOAD"])
	assert.Equal(t, posix, env["DTIO_POSIX"])
	assert.Equal(t, result.ConfigPath, env[topology.ConfigPathVar])
	assert.Equal(t, result.PolicyPath, env[pathpolicy.PathVar])
}

func TestPrepare_ScenarioArgs(t *testing.T) {
	_, deployer := setup(t, mechanism.POSIX)

	result, err := deployer.Prepare(context.Background(), declaration(), envpatch.Env{})
	require.NoError(t, err)

	assert.Equal(t, "/home/u/DTIO", result.TestDir)
	assert.Equal(t, []string{"dtio_simple_write_posix", "/home/u/DTIO/test.txt"}, result.Args)
}

func TestPrepare_HDF5(t *testing.T) {
	_, deployer := setup(t, mechanism.HDF5)
	decl := declaration()
	decl.Interceptors = mechanism.Selection{HDF5: true}

	result, err := deployer.Prepare(context.Background(), decl, envpatch.Env{})
	require.NoError(t, err)

	assert.Equal(t, libDir, result.Env[envpatch.PluginPathVar])
	assert.Equal(t, envpatch.ConnectorSpec, result.Env[envpatch.ConnectorVar])
	assert.NotContains(t, result.Env, "LD_PRELOAD")
}

func TestPrepare_ReplacesPreviousDocuments(t *testing.T) {
	fs, deployer := setup(t, mechanism.POSIX)
	require.NoError(t, afero.WriteFile(fs, "/home/u/shared/dtio_config.yaml", []byte("stale"), 0644))

	result, err := deployer.Prepare(context.Background(), declaration(), envpatch.Env{})
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, result.ConfigPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale")
}

// renameFailFs fails the first rename onto target
type renameFailFs struct {
	afero.Fs
	target string
	failed bool
}

func (f *renameFailFs) Rename(oldname, newname string) error {
	if newname == f.target && !f.failed {
		f.failed = true
		return errors.New("disk full")
	}
	return f.Fs.Rename(oldname, newname)
}

func TestPrepare_FailedPublishRestoresPreviousDocuments(t *testing.T) {
	mem, _ := setup(t, mechanism.POSIX)
	require.NoError(t, afero.WriteFile(mem, "/home/u/shared/dtio_config.yaml", []byte("old config"), 0644))
	require.NoError(t, afero.WriteFile(mem, "/home/u/shared/dtio_paths.yaml", []byte("old policy"), 0644))

	fs := &renameFailFs{Fs: mem, target: "/home/u/shared/dtio_paths.yaml"}
	deployer := NewDeployer(fs, mechanism.Linux, testEnv(map[string]string{"HOME": "/home/u"}))

	_, err := deployer.Prepare(context.Background(), declaration(), envpatch.Env{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dtio_paths.yaml")

	data, err := afero.ReadFile(mem, "/home/u/shared/dtio_config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "old config", string(data))
	data, err = afero.ReadFile(mem, "/home/u/shared/dtio_paths.yaml")
	require.NoError(t, err)
	assert.Equal(t, "old policy", string(data))

	entries, err := afero.ReadDir(mem, "/home/u/shared")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{ConfigFileName, PolicyFileName}, names)
}

func TestPrepare_FailedPublishLeavesNoDocuments(t *testing.T) {
	mem, _ := setup(t, mechanism.POSIX)
	fs := &renameFailFs{Fs: mem, target: "/home/u/shared/dtio_paths.yaml"}
	deployer := NewDeployer(fs, mechanism.Linux, testEnv(map[string]string{"HOME": "/home/u"}))

	_, err := deployer.Prepare(context.Background(), declaration(), envpatch.Env{})
	require.Error(t, err)

	entries, err := afero.ReadDir(mem, "/home/u/shared")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPrepare_FailuresWriteNothing(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(d *config.Deployment)
		check  func(t *testing.T, err error)
	}{
		{
			name:   "missing library",
			mutate: func(d *config.Deployment) { d.Interceptors.MPI = true },
			check: func(t *testing.T, err error) {
				var notFound *mechanism.LibraryNotFoundError
				require.True(t, errors.As(err, &notFound))
				assert.Equal(t, mechanism.MPI, notFound.Mechanism)
			},
		},
		{
			name:   "no mechanism",
			mutate: func(d *config.Deployment) { d.Interceptors = mechanism.Selection{} },
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, mechanism.ErrNoMechanismSelected))
			},
		},
		{
			name: "conflicting paths",
			mutate: func(d *config.Deployment) {
				d.Paths.Include = []string{"/data"}
				d.Paths.Exclude = []string{"/data/"}
			},
			check: func(t *testing.T, err error) {
				var conflict *pathpolicy.ConflictingPatternError
				assert.True(t, errors.As(err, &conflict))
			},
		},
		{
			name:   "invalid topology",
			mutate: func(d *config.Deployment) { d.Runtime.NumWorkers = 0 },
			check: func(t *testing.T, err error) {
				var invalid *topology.InvalidTopologyError
				require.True(t, errors.As(err, &invalid))
				assert.Equal(t, "num_workers", invalid.Field)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fs, deployer := setup(t, mechanism.POSIX)
			decl := declaration()
			tc.mutate(decl)

			result, err := deployer.Prepare(context.Background(), decl, envpatch.Env{})
			require.Error(t, err)
			assert.Nil(t, result)
			tc.check(t, err)

			exists, err := afero.DirExists(fs, "/home/u/shared")
			require.NoError(t, err)
			assert.False(t, exists, "shared directory must not be created")
		})
	}
}

func TestPrepare_ReadOnlyFilesystem(t *testing.T) {
	fs, _ := setup(t, mechanism.POSIX)
	deployer := NewDeployer(afero.NewReadOnlyFs(fs), mechanism.Linux, testEnv(map[string]string{"HOME": "/home/u"}))

	_, err := deployer.Prepare(context.Background(), declaration(), envpatch.Env{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "shared directory"))

	exists, err := afero.Exists(fs, "/home/u/shared/dtio_config.yaml")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPrepare_CancelledContext(t *testing.T) {
	fs, deployer := setup(t, mechanism.POSIX)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := deployer.Prepare(ctx, declaration(), envpatch.Env{})
	assert.ErrorIs(t, err, context.Canceled)

	exists, _ := afero.DirExists(fs, "/home/u/shared")
	assert.False(t, exists)
}

func TestPrepare_UniqueRunIDs(t *testing.T) {
	_, deployer := setup(t, mechanism.POSIX)

	first, err := deployer.Prepare(context.Background(), declaration(), envpatch.Env{})
	require.NoError(t, err)
	second, err := deployer.Prepare(context.Background(), declaration(), envpatch.Env{})
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
}
