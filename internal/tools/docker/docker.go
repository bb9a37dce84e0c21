// Package docker implements an optional container-isolated backend for
// run_command, grounded on the teacher's pkg/sandbox/docker/docker.go
// Docker-client wiring (ContainerCreate/ContainerStart/ContainerInspect,
// the same client.NewClientWithOpts(client.FromEnv, ...) construction,
// the same managed-container labels), narrowed from the teacher's
// long-lived gRPC sandbox (one container per operative, a custom
// protobuf RunStream service, a reconciliation loop keeping containers
// alive across turns) down to a one-shot exec: spec.md's run_command
// has no equivalent to the teacher's interactive PromptModel/PromptSelf
// callbacks, so there is nothing for a persistent sandbox process to
// call back into — each call gets a fresh container, runs one command,
// and the container is removed once output is collected.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

const (
	// LabelManager tags every container this package creates, the same
	// way the teacher's Manager labels containers it reconciles.
	LabelManager      = "manager"
	LabelManagerValue = "agentsmithy-run-command"
)

// Runner executes shell commands inside short-lived containers instead
// of the host process, implementing tools.CommandRunner structurally
// (tools.RunCommandTool declares the interface; this package never
// imports it, avoiding a dependency cycle between the tool registry and
// its optional sandbox backend).
type Runner struct {
	client *client.Client
	image  string
}

// New creates a Docker-backed Runner using image for every container it
// starts. image must already exist locally or be pullable by the local
// daemon; this package never pulls on its own, matching the teacher's
// own "run 'make build-sandbox'" assumption that the image is prepared
// out of band.
func New(image string) (*Runner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Runner{client: cli, image: image}, nil
}

// Close releases the underlying Docker client.
func (r *Runner) Close() error {
	return r.client.Close()
}

// Run creates a container from r.image, binds workdir read-write at
// /workspace, runs command via "sh -c" with workdir as its cwd, and
// returns once the container exits or timeout elapses. The container is
// always removed before Run returns, successful or not.
func (r *Runner) Run(ctx context.Context, workdir, command string, timeout time.Duration) (stdout, stderr string, exitCode int, err error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cfg := &container.Config{
		Image:      r.image,
		Cmd:        []string{"sh", "-c", command},
		WorkingDir: "/workspace",
		Labels:     map[string]string{LabelManager: LabelManagerValue},
	}
	hostCfg := &container.HostConfig{
		Binds: []string{workdir + ":/workspace"},
	}

	resp, err := r.client.ContainerCreate(runCtx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", "", 0, fmt.Errorf("create sandbox container: %w", err)
	}
	defer r.remove(resp.ID)

	if err := r.client.ContainerStart(runCtx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return "", "", 0, fmt.Errorf("start sandbox container: %w", err)
	}

	statusCh, errCh := r.client.ContainerWait(runCtx, resp.ID, container.WaitConditionNotRunning)
	select {
	case werr := <-errCh:
		if werr != nil {
			return "", "", 0, fmt.Errorf("wait for sandbox container: %w", werr)
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	case <-runCtx.Done():
		return "", "", 0, runCtx.Err()
	}

	outStr, errStr, logErr := r.collectLogs(context.Background(), resp.ID)
	if logErr != nil {
		return "", "", exitCode, fmt.Errorf("collect sandbox logs: %w", logErr)
	}
	return outStr, errStr, exitCode, nil
}

func (r *Runner) collectLogs(ctx context.Context, containerID string) (stdout, stderr string, err error) {
	rc, err := r.client.ContainerLogs(ctx, containerID, types.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer rc.Close()

	// Docker multiplexes stdout/stderr into one stream framed by an
	// 8-byte header per chunk when the container was not started with a
	// TTY (the default here); demux splits it the same way the
	// docker CLI itself does.
	var outBuf, errBuf bytes.Buffer
	if err := demux(rc, &outBuf, &errBuf); err != nil && err != io.EOF {
		return "", "", err
	}
	return outBuf.String(), errBuf.String(), nil
}

// demux splits Docker's multiplexed log stream into stdout/stderr,
// following the frame format documented on Client.ContainerLogs:
// an 8-byte header (stream type + big-endian uint32 length) per chunk.
func demux(r io.Reader, stdout, stderr io.Writer) error {
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		size := int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])
		dst := stdout
		if header[0] == 2 {
			dst = stderr
		}
		if _, err := io.CopyN(dst, r, int64(size)); err != nil {
			return err
		}
	}
}

func (r *Runner) remove(containerID string) {
	_ = r.client.ContainerRemove(context.Background(), containerID, types.ContainerRemoveOptions{Force: true})
}
