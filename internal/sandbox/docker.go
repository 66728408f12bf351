package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-units"
	"github.com/google/uuid"
)

const containerNamePrefix = "kestrel-"

// DockerProvisioner provisions long-lived workspace containers and runs
// commands inside them. One container per agent; the container stays up
// (sleep infinity) so that filesystem and process state persist across
// commands within a run.
type DockerProvisioner struct {
	client *client.Client
	config Config

	mu         sync.Mutex
	containers map[string]string // workspace ID -> container ID
}

// NewDockerProvisioner creates a Docker-backed provisioner and verifies the
// daemon is reachable.
func NewDockerProvisioner(config Config) (*DockerProvisioner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("Docker daemon not accessible: %w", err)
	}

	return &DockerProvisioner{
		client:     cli,
		config:     config,
		containers: make(map[string]string),
	}, nil
}

// CreateSandbox provisions a workspace container for the given agent. The
// supplied token is injected into the container environment so in-sandbox
// processes can authenticate back to the runtime. Local source directories
// are bundled and uploaded under /workspace.
func (p *DockerProvisioner) CreateSandbox(ctx context.Context, agentID, token string, sources []string) (Info, error) {
	if err := p.ensureImage(ctx, p.config.Image); err != nil {
		return Info{}, fmt.Errorf("failed to ensure image %s: %w", p.config.Image, err)
	}

	workspaceID := uuid.NewString()
	short := agentID
	if len(short) > 8 {
		short = short[:8]
	}
	name := containerNamePrefix + short + "-" + workspaceID[:8]

	containerConfig := &container.Config{
		Image:      p.config.Image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: "/workspace",
		Env: []string{
			EnvSandboxMode + "=true",
			"KESTREL_WORKSPACE_ID=" + workspaceID,
			"KESTREL_AUTH_TOKEN=" + token,
			"KESTREL_AGENT_ID=" + agentID,
		},
		Labels: map[string]string{
			"kestrel.workspace": workspaceID,
			"kestrel.agent":     agentID,
		},
	}

	// Network stays enabled: scan tooling inside the sandbox needs to reach
	// the targets. Raw sockets are required for ping and SYN scans.
	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Memory:   parseMemory(p.config.Memory),
			NanoCPUs: parseCPU(p.config.CPU) * 1e9,
			Ulimits: []*units.Ulimit{
				{Name: "nofile", Soft: 4096, Hard: 4096},
			},
		},
		CapAdd: []string{"NET_RAW", "NET_ADMIN"},
	}

	createResp, err := p.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return Info{}, fmt.Errorf("failed to create container: %w", err)
	}
	containerID := createResp.ID

	if err := p.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		p.removeContainer(containerID)
		return Info{}, fmt.Errorf("failed to start container: %w", err)
	}

	if len(sources) > 0 {
		bundle, err := BundleSources(sources)
		if err != nil {
			p.removeContainer(containerID)
			return Info{}, fmt.Errorf("failed to bundle sources: %w", err)
		}
		err = p.client.CopyToContainer(ctx, containerID, "/workspace", bundle, container.CopyToContainerOptions{})
		if err != nil {
			p.removeContainer(containerID)
			return Info{}, fmt.Errorf("failed to upload sources: %w", err)
		}
	}

	p.mu.Lock()
	p.containers[workspaceID] = containerID
	p.mu.Unlock()

	return Info{
		WorkspaceID: workspaceID,
		AuthToken:   token,
		ContainerID: containerID,
		AgentID:     agentID,
		Image:       p.config.Image,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Exec runs a shell command inside the workspace container and captures its
// output. The command is killed when the timeout elapses.
func (p *DockerProvisioner) Exec(ctx context.Context, workspaceID, command string, timeout time.Duration) (ExecResult, error) {
	containerID, err := p.lookup(workspaceID)
	if err != nil {
		return ExecResult{}, err
	}

	if timeout <= 0 {
		timeout = p.config.ExecTimeout
	}
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execResp, err := p.client.ContainerExecCreate(execCtx, containerID, container.ExecOptions{
		Cmd:          []string{"/bin/sh", "-c", command},
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   "/workspace",
	})
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := p.client.ContainerExecAttach(execCtx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attach.Close()

	type streams struct {
		stdout, stderr string
	}
	done := make(chan streams, 1)
	go func() {
		stdout, stderr := demuxStream(attach.Reader)
		done <- streams{stdout, stderr}
	}()

	var out streams
	select {
	case <-execCtx.Done():
		attach.Close()
		return ExecResult{
			Stderr:   "Command execution timed out",
			Code:     1,
			TimedOut: true,
		}, execCtx.Err()
	case out = <-done:
	}

	inspect, err := p.client.ContainerExecInspect(context.Background(), execResp.ID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to inspect exec: %w", err)
	}

	return ExecResult{
		Stdout: out.stdout,
		Stderr: out.stderr,
		Code:   inspect.ExitCode,
	}, nil
}

// UploadSources re-bundles the given local directories and pushes them into
// the workspace container, overwriting previous copies.
func (p *DockerProvisioner) UploadSources(ctx context.Context, workspaceID string, sources []string) error {
	containerID, err := p.lookup(workspaceID)
	if err != nil {
		return err
	}
	bundle, err := BundleSources(sources)
	if err != nil {
		return fmt.Errorf("failed to bundle sources: %w", err)
	}
	err = p.client.CopyToContainer(ctx, containerID, "/workspace", bundle, container.CopyToContainerOptions{})
	if err != nil {
		return fmt.Errorf("failed to upload sources: %w", err)
	}
	return nil
}

// DestroySandbox stops and removes the workspace container.
func (p *DockerProvisioner) DestroySandbox(ctx context.Context, workspaceID string) error {
	containerID, err := p.lookup(workspaceID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.containers, workspaceID)
	p.mu.Unlock()

	err = p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// Close removes every container this provisioner still tracks.
func (p *DockerProvisioner) Close() error {
	p.mu.Lock()
	ids := make([]string, 0, len(p.containers))
	for _, id := range p.containers {
		ids = append(ids, id)
	}
	p.containers = make(map[string]string)
	p.mu.Unlock()

	for _, id := range ids {
		p.removeContainer(id)
	}
	return p.client.Close()
}

func (p *DockerProvisioner) lookup(workspaceID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	containerID, ok := p.containers[workspaceID]
	if !ok {
		return "", fmt.Errorf("unknown workspace %q", workspaceID)
	}
	return containerID, nil
}

func (p *DockerProvisioner) removeContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

// ensureImage checks if the image exists locally, and pulls it if not.
func (p *DockerProvisioner) ensureImage(ctx context.Context, imageName string) error {
	_, _, err := p.client.ImageInspectWithRaw(ctx, imageName)
	if err == nil {
		return nil
	}

	reader, err := p.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	// Drain the pull output (required for pull to complete)
	_, _ = io.Copy(io.Discard, reader)

	return nil
}

// demuxStream separates stdout from stderr in a multiplexed Docker stream.
// Each frame carries an 8-byte header:
// [STREAM_TYPE (1 byte)][RESERVED (3 bytes)][SIZE (4 bytes, big-endian)]
func demuxStream(reader io.Reader) (stdout, stderr string) {
	var stdoutParts, stderrParts []string
	br := bufio.NewReader(reader)

	for {
		header := make([]byte, 8)
		if _, err := io.ReadFull(br, header); err != nil {
			break
		}

		streamType := header[0]
		size := int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])

		// Limit size to prevent excessive memory allocation
		if size <= 0 || size > 10*1024*1024 {
			continue
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(br, payload); err != nil {
			break
		}

		content := strings.TrimSuffix(string(payload), "\n")
		switch streamType {
		case 1:
			stdoutParts = append(stdoutParts, content)
		case 2:
			stderrParts = append(stderrParts, content)
		}
	}

	return strings.Join(stdoutParts, "\n"), strings.Join(stderrParts, "\n")
}

// parseMemory parses a memory string (e.g. "1g", "512m") to bytes.
func parseMemory(memStr string) int64 {
	memStr = strings.ToLower(strings.TrimSpace(memStr))
	if memStr == "" {
		return 2 * 1024 * 1024 * 1024
	}

	var multiplier int64 = 1
	if strings.HasSuffix(memStr, "g") {
		multiplier = 1024 * 1024 * 1024
		memStr = strings.TrimSuffix(memStr, "g")
	} else if strings.HasSuffix(memStr, "m") {
		multiplier = 1024 * 1024
		memStr = strings.TrimSuffix(memStr, "m")
	} else if strings.HasSuffix(memStr, "k") {
		multiplier = 1024
		memStr = strings.TrimSuffix(memStr, "k")
	}

	var value int64
	fmt.Sscanf(memStr, "%d", &value)
	if value <= 0 {
		return 2 * 1024 * 1024 * 1024
	}
	return value * multiplier
}

// parseCPU parses a CPU count string (e.g. "2", "1.5") to whole CPUs.
func parseCPU(cpuStr string) int64 {
	cpuStr = strings.TrimSpace(cpuStr)
	if cpuStr == "" {
		return 2
	}

	var value float64
	fmt.Sscanf(cpuStr, "%f", &value)
	if value <= 0 {
		return 2
	}
	return int64(value)
}
