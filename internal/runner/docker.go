package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/DotoriPicnic/condition-pick/internal/apperrors"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerConfig configures the container backend.
type DockerConfig struct {
	Image      string        // Screener image, pulled on first use
	KillGrace  time.Duration // Stop timeout before Docker sends SIGKILL
	Encoding   string        // Output encoding, see Decode
	ExtraHosts []string      // Extra /etc/hosts entries (e.g., "broker.local:host-gateway")
}

// DockerRunner runs the screening program as a one-shot container.
type DockerRunner struct {
	client     *client.Client
	image      string
	grace      time.Duration
	encoding   string
	extraHosts []string
	logger     *slog.Logger
}

// NewDockerRunner connects to the Docker daemon described by the environment.
func NewDockerRunner(cfg DockerConfig) (*DockerRunner, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("screener image is required")
	}

	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = EncodingUTF8
	}

	return &DockerRunner{
		client:     dockerClient,
		image:      cfg.Image,
		grace:      max(cfg.KillGrace, 0),
		encoding:   encoding,
		extraHosts: cfg.ExtraHosts,
		logger:     slog.With("component", "runner", "backend", "docker"),
	}, nil
}

// Run creates, starts and waits for a screener container. The container is
// always removed before Run returns.
func (r *DockerRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	if spec.Timeout <= 0 {
		return nil, apperrors.Validation("timeout", "run timeout must be positive")
	}
	logger := r.logger.With("runId", spec.RunID)
	res := &Result{ExitCode: -1, StartedAt: time.Now()}

	// Cleanup must survive cancellation of the run itself.
	cleanupCtx := context.WithoutCancel(ctx)

	if err := r.pullImageIfNeeded(ctx); err != nil {
		res.FinishedAt = time.Now()
		return res, apperrors.Launch(r.image, err)
	}

	containerID, err := r.createContainer(ctx, spec)
	if err != nil {
		res.FinishedAt = time.Now()
		return res, apperrors.Launch(r.image, err)
	}
	defer func() {
		if err := r.client.ContainerRemove(cleanupCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			logger.Warn("Failed to remove screener container", "containerId", containerID, "error", err)
		}
	}()

	if err := r.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		res.FinishedAt = time.Now()
		return res, apperrors.Launch(r.image, err)
	}
	logger.Debug("Screener container started", "containerId", containerID, "image", r.image)

	waitCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	var runErr error
	exitCode, waitErr := r.waitForExit(waitCtx, containerID)
	switch {
	case waitErr == nil:
		res.ExitCode = exitCode
	case ctx.Err() != nil:
		logger.Info("Run cancelled, stopping screener container", "containerId", containerID)
		r.stop(cleanupCtx, logger, containerID)
		runErr = fmt.Errorf("screening run cancelled: %w", ctx.Err())
	case waitCtx.Err() != nil:
		logger.Warn("Screener exceeded timeout, stopping container", "timeout", spec.Timeout, "containerId", containerID)
		r.stop(cleanupCtx, logger, containerID)
		runErr = apperrors.Timeout(spec.Timeout)
	default:
		runErr = apperrors.Internal("docker.wait", waitErr)
	}

	res.FinishedAt = time.Now()
	if err := r.collectLogs(cleanupCtx, containerID, res); err != nil {
		logger.Warn("Failed to collect screener output", "containerId", containerID, "error", err)
	}

	if runErr != nil {
		return res, runErr
	}
	logger.Debug("Screener container exited", "exitCode", res.ExitCode, "duration", res.Duration())
	return res, nil
}

func (r *DockerRunner) createContainer(ctx context.Context, spec Spec) (string, error) {
	var cmd []string
	if spec.Command != "" {
		cmd = append([]string{spec.Command}, spec.Args...)
	}

	containerConfig := &container.Config{
		Image:      r.image,
		Cmd:        cmd,
		Env:        buildEnv(r.encoding, nil, spec.Env),
		WorkingDir: spec.Dir,
		Labels: map[string]string{
			"screening.run": spec.RunID,
			"managed-by":    "screener-service",
		},
	}
	hostConfig := &container.HostConfig{
		ExtraHosts: r.extraHosts,
	}

	resp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (r *DockerRunner) waitForExit(ctx context.Context, containerID string) (int, error) {
	statusCh, errCh := r.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case err := <-errCh:
		return -1, err
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("%s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	}
}

// stop asks Docker to SIGTERM the container and SIGKILL it after the grace period.
func (r *DockerRunner) stop(ctx context.Context, logger *slog.Logger, containerID string) {
	timeout := int(math.Ceil(r.grace.Seconds()))
	if err := r.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		logger.Warn("Failed to stop screener container", "containerId", containerID, "error", err)
	}
}

func (r *DockerRunner) collectLogs(ctx context.Context, containerID string, res *Result) error {
	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return err
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return err
	}
	res.Stdout = Decode(r.encoding, stdout.Bytes())
	res.Stderr = Decode(r.encoding, stderr.Bytes())
	return nil
}

func (r *DockerRunner) pullImageIfNeeded(ctx context.Context) error {
	_, err := r.client.ImageInspect(ctx, r.image)
	if err == nil {
		return nil
	}

	r.logger.Info("Pulling screener image", "image", r.image)
	reader, err := r.client.ImagePull(ctx, r.image, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// Ready checks if the Docker daemon is reachable and responsive.
func (r *DockerRunner) Ready(ctx context.Context) error {
	_, err := r.client.Ping(ctx)
	return err
}

// Close releases the Docker client.
func (r *DockerRunner) Close() error {
	return r.client.Close()
}
