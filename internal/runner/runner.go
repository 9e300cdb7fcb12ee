// Package runner executes the external preprocessing container per file.
package runner

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// Default and max timeout for one preprocessing run.
const (
	DefaultTimeout = 30 * time.Minute
	MaxTimeout     = 4 * time.Hour
)

// Mount binds a host directory into the container.
type Mount struct {
	Host      string
	Container string
}

// Result holds the outcome of one container run.
type Result struct {
	ExitCode int
	Output   string
}

// Runner runs a preprocessing container to completion.
type Runner interface {
	Run(ctx context.Context, image string, args []string, mounts []Mount) (Result, error)
}

// DockerRunner runs containers via the docker (or compatible) CLI.
type DockerRunner struct {
	Binary  string // defaults to "docker"
	Timeout time.Duration
}

// Run executes `docker run --rm` with the given bind mounts and waits for
// exit. A nonzero exit code is reported in the Result, not as an error;
// the caller decides whether that aborts the order.
func (r *DockerRunner) Run(ctx context.Context, image string, args []string, mounts []Mount) (Result, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	binary := r.Binary
	if binary == "" {
		binary = "docker"
	}

	cmdArgs := []string{"run", "--rm"}
	for _, m := range mounts {
		cmdArgs = append(cmdArgs, "-v", m.Host+":"+m.Container)
	}
	cmdArgs = append(cmdArgs, image)
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.CommandContext(runCtx, binary, cmdArgs...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	res := Result{Output: strings.TrimSpace(out.String())}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	return res, nil
}
