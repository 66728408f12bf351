//go:build !windows
// +build !windows

package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"
)

// LocalExecutor runs commands directly on the local machine without
// isolation. It is used when the process already runs inside a provisioned
// sandbox (InSandboxMode) or when Docker is explicitly disabled.
type LocalExecutor struct {
	// WorkDir is the working directory for commands. Empty means the
	// process's current directory.
	WorkDir string
	// Timeout overrides the default when the caller passes none.
	Timeout time.Duration
}

// Exec runs a shell command with a timeout. The workspaceID is ignored since
// there is only the local machine. The whole process group is killed on
// timeout so child processes do not linger.
func (r *LocalExecutor) Exec(ctx context.Context, workspaceID, command string, timeout time.Duration) (ExecResult, error) {
	if timeout <= 0 {
		if r.Timeout > 0 {
			timeout = r.Timeout
		} else {
			timeout = defaultExecTimeout
		}
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Dir = r.WorkDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return ExecResult{}, err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-cctx.Done():
			if cmd.Process != nil {
				syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	res := ExecResult{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
		Code:   0,
	}

	if waitErr != nil {
		res.Code = 1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.Code = exitErr.ExitCode()
		}
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			res.TimedOut = true
			return res, nil
		}
		return res, waitErr
	}

	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
	}

	return res, nil
}
