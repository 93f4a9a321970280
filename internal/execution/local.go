package execution

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// maxLineSize bounds a single captured output line.
const maxLineSize = 20 * 1024 * 1024

// LocalRuntime executes scripts as local processes.
type LocalRuntime struct {
	Shell string // defaults to /bin/sh
}

type outputLine struct {
	stream Stream
	text   string
}

// Run executes the script locally, streaming stdout and stderr line by line
// to onLine. The exit status is read only after both streams are drained.
func (r *LocalRuntime) Run(ctx context.Context, spec RunSpec, onLine LineFunc) (*RunResult, error) {
	shell := r.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	if err := os.MkdirAll(spec.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}

	cmd := exec.CommandContext(ctx, shell, spec.Script)
	cmd.Dir = spec.WorkDir
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start script: %w", err)
	}

	lines := make(chan outputLine, 64)
	var wg sync.WaitGroup
	scan := func(rd io.Reader, s Stream) {
		defer wg.Done()
		sc := bufio.NewScanner(rd)
		sc.Buffer(make([]byte, 64*1024), maxLineSize)
		for sc.Scan() {
			lines <- outputLine{stream: s, text: sc.Text()}
		}
		// Keep the pipe flowing so the process cannot block on a full buffer.
		io.Copy(io.Discard, rd)
	}
	wg.Add(2)
	go scan(stdout, Stdout)
	go scan(stderr, Stderr)
	go func() {
		wg.Wait()
		close(lines)
	}()

	for l := range lines {
		if onLine != nil {
			onLine(l.stream, l.text)
		}
	}

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run script: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}
	return &RunResult{ExitCode: exitCode}, nil
}
