package launcher

import (
	"strings"
	"testing"

	"github.com/docker/docker/api/types/mount"
	"github.com/dyluth/dtioctl/internal/deploy"
	dockerpkg "github.com/dyluth/dtioctl/internal/docker"
	"github.com/dyluth/dtioctl/internal/envpatch"
	"github.com/dyluth/dtioctl/internal/mechanism"
	"github.com/stretchr/testify/assert"
)

func preparedRun() *deploy.Result {
	return &deploy.Result{
		RunID:      "3f2b9c1e-0000-0000-0000-000000000000",
		Deployment: "demo",
		SharedDir:  "/shared/dtio",
		Resolution: mechanism.NewResolution(
			mechanism.ResolvedLibrary{Mechanism: mechanism.POSIX, Path: "/opt/dtio/lib/libdtio_posix_interception.so", Root: "/opt/dtio"},
			mechanism.ResolvedLibrary{Mechanism: mechanism.HDF5, Path: "/opt/dtio/lib/libdtio_vol_connector.so", Root: "/opt/dtio"},
			mechanism.ResolvedLibrary{Mechanism: mechanism.MPI, Path: "/spack/dtio/lib/libdtio_mpi_interception.so", Root: "/spack/dtio"},
		),
		ConfigPath: "/shared/dtio/dtio_config.yaml",
		PolicyPath: "/shared/dtio/dtio_paths.yaml",
		Env: envpatch.Env{
			"PATH":            "/home/u/.local/bin:/usr/bin",
			"HOME":            "/home/u",
			"LD_PRELOAD":      "/usr/lib/libhost_only.so:/opt/dtio/lib/libdtio_posix_interception.so",
			"LD_LIBRARY_PATH": "/home/u/lib",
			"DTIO_CONF_PATH":  "/shared/dtio/dtio_config.yaml",
		},
		TestDir: "/home/u/DTIO",
		Args:    []string{"dtio_simple_write_posix", "/home/u/DTIO/test.txt"},
		Image:   "dtio/runtime:latest",
	}
}

func TestSpecFromResult(t *testing.T) {
	spec := SpecFromResult(preparedRun())

	assert.Equal(t, "3f2b9c1e-0000-0000-0000-000000000000", spec.RunID)
	assert.Equal(t, "demo", spec.Deployment)
	assert.Equal(t, "/home/u/DTIO", spec.Dir)
	assert.Equal(t, []string{"dtio_simple_write_posix", "/home/u/DTIO/test.txt"}, spec.Args)
	assert.Equal(t, "dtio/runtime:latest", spec.Image)

	// Shared dir first, then distinct library roots in canonical order
	assert.Equal(t, []string{"/shared/dtio", "/opt/dtio", "/spack/dtio"}, spec.Mounts)
}

func TestContainerSpec(t *testing.T) {
	spec := SpecFromResult(preparedRun())

	cfg, host := containerSpec(spec)

	assert.Equal(t, "dtio/runtime:latest", cfg.Image)
	assert.Equal(t, []string(spec.Args), []string(cfg.Cmd))
	assert.Contains(t, cfg.Env, "DTIO_CONF_PATH=/shared/dtio/dtio_config.yaml")
	assert.Equal(t, "/home/u/DTIO", cfg.WorkingDir)
	assert.Equal(t, "demo", cfg.Labels[dockerpkg.LabelDeployment])
	assert.Equal(t, spec.RunID, cfg.Labels[dockerpkg.LabelRunID])
	assert.Equal(t, "/shared/dtio", cfg.Labels[dockerpkg.LabelSharedDir])
	assert.Equal(t, dockerpkg.ComponentScenario, cfg.Labels[dockerpkg.LabelComponent])

	assert.Equal(t, []mount.Mount{
		{Type: mount.TypeBind, Source: "/home/u/DTIO", Target: "/home/u/DTIO"},
		{Type: mount.TypeBind, Source: "/shared/dtio", Target: "/shared/dtio", ReadOnly: true},
		{Type: mount.TypeBind, Source: "/opt/dtio", Target: "/opt/dtio", ReadOnly: true},
		{Type: mount.TypeBind, Source: "/spack/dtio", Target: "/spack/dtio", ReadOnly: true},
	}, host.Mounts)
	assert.False(t, host.AutoRemove)
}

func TestContainerSpec_DoesNotInheritHostEnvironment(t *testing.T) {
	spec := SpecFromResult(preparedRun())
	assert.Equal(t, "/home/u/.local/bin:/usr/bin", spec.Env["PATH"], "exec launches keep the host environment")

	cfg, _ := containerSpec(spec)

	for _, kv := range cfg.Env {
		name, _, _ := strings.Cut(kv, "=")
		assert.NotContains(t, []string{"PATH", "HOME", "LD_LIBRARY_PATH"}, name)
	}
	assert.Contains(t, cfg.Env, "LD_PRELOAD=/opt/dtio/lib/libdtio_posix_interception.so:/spack/dtio/lib/libdtio_mpi_interception.so")
	assert.Contains(t, cfg.Env, "DTIO_PATHS_CONF_PATH=/shared/dtio/dtio_paths.yaml")
	assert.Contains(t, cfg.Env, "DTIO_VOL=/opt/dtio/lib/libdtio_vol_connector.so")
	assert.Contains(t, cfg.Env, "HDF5_PLUGIN_PATH=/opt/dtio/lib")
	assert.Contains(t, cfg.Env, "DTIO_ROOT=/opt/dtio")
}
