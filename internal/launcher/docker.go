package launcher

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	dockerpkg "github.com/dyluth/dtioctl/internal/docker"
	"github.com/spf13/afero"
)

// DockerLauncher runs scenarios in throwaway containers.
// The container is removed after its logs have been collected.
type DockerLauncher struct {
	cli *client.Client
	fs  afero.Fs
}

// NewDockerLauncher creates a launcher using an already-validated Docker client
func NewDockerLauncher(cli *client.Client, fs afero.Fs) *DockerLauncher {
	return &DockerLauncher{cli: cli, fs: fs}
}

// Launch runs spec inside spec.Image
func (l *DockerLauncher) Launch(ctx context.Context, spec Spec) (*Outcome, error) {
	if spec.Image == "" {
		return nil, fmt.Errorf("scenario image is required to run in Docker")
	}
	if len(spec.Args) == 0 {
		return nil, fmt.Errorf("scenario command is empty")
	}

	if spec.Dir != "" {
		if err := l.fs.MkdirAll(spec.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create test directory %s: %w", spec.Dir, err)
		}
	}

	if err := dockerpkg.EnsureImage(ctx, l.cli, spec.Image); err != nil {
		return nil, err
	}

	containerConfig, hostConfig := containerSpec(spec)
	name := dockerpkg.ScenarioContainerName(spec.Deployment, spec.RunID)

	resp, err := l.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario container: %w", err)
	}
	defer l.remove(resp.ID)

	log.Printf("[INFO] Launching scenario container: run_id=%s container=%s image=%s", spec.RunID, name, spec.Image)
	startedAt := time.Now()

	if err := l.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start scenario container: %w", err)
	}

	statusCh, errCh := l.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)

	var exitCode int
	select {
	case err := <-errCh:
		return nil, fmt.Errorf("failed to wait for scenario container: %w", err)
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	}

	outcome := &Outcome{
		ExitCode:  exitCode,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
	}

	if err := l.collectLogs(ctx, resp.ID, outcome); err != nil {
		log.Printf("[WARN] Failed to collect scenario logs: run_id=%s error=%v", spec.RunID, err)
	}

	log.Printf("[INFO] Scenario container finished: run_id=%s exit_code=%d duration=%s",
		spec.RunID, outcome.ExitCode, outcome.Duration)

	return outcome, nil
}

func (l *DockerLauncher) collectLogs(ctx context.Context, containerID string, outcome *Outcome) error {
	reader, err := l.cli.ContainerLogs(ctx, containerID, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return err
	}
	defer reader.Close()

	stdoutBuf := &bytes.Buffer{}
	stderrBuf := &bytes.Buffer{}
	stdout := &limitedWriter{w: stdoutBuf, limit: maxOutputSize}
	stderr := &limitedWriter{w: stderrBuf, limit: maxOutputSize}

	// Without a TTY the log stream is multiplexed
	_, err = stdcopy.StdCopy(stdout, stderr, reader)

	outcome.Stdout = stdoutBuf.String()
	outcome.Stderr = stderrBuf.String()
	outcome.Truncated = stdout.dropped || stderr.dropped
	return err
}

// remove force-removes the container. It uses a fresh context so cleanup
// still happens when the launch context was cancelled.
func (l *DockerLauncher) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.cli.ContainerRemove(ctx, containerID, types.ContainerRemoveOptions{Force: true}); err != nil {
		log.Printf("[WARN] Failed to remove scenario container %s: %v", containerID, err)
	}
}

// containerSpec builds the container and host configuration for spec.
// The test directory is mounted read-write; every other mount is read-only.
// The container sees only the activating variables, never the host environment.
func containerSpec(spec Spec) (*container.Config, *container.HostConfig) {
	containerConfig := &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Args,
		Env:        spec.ImageEnv.Environ(),
		WorkingDir: spec.Dir,
		Labels:     dockerpkg.BuildLabels(spec.Deployment, spec.RunID, firstOrEmpty(spec.Mounts), dockerpkg.ComponentScenario),
	}

	hostConfig := &container.HostConfig{
		AutoRemove: false, // Removed explicitly after logs are read
	}

	if spec.Dir != "" {
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: spec.Dir,
			Target: spec.Dir,
		})
	}
	for _, dir := range spec.Mounts {
		if dir == spec.Dir {
			continue
		}
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   dir,
			Target:   dir,
			ReadOnly: true,
		})
	}

	return containerConfig, hostConfig
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
