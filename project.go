package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	platformerrors "github.com/jmgilman/go/errors"
)

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor runs a command in a working directory and captures its output.
// A command that runs and exits non-zero is not an error; callers inspect
// the Result. Errors mean the command could not be run at all.
type Executor interface {
	Run(ctx context.Context, dir string, name string, args ...string) (*Result, error)
}

// osExecutor runs commands with os/exec.
type osExecutor struct{}

func (osExecutor) Run(ctx context.Context, dir string, name string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()

		return result, nil
	}

	if err != nil {
		return nil, fmt.Errorf("run %s: %w", name, err)
	}

	return result, nil
}

// Project runs the Elm compiler and the dependency manager against one
// project folder. Invocations are serialised since both tools write to
// elm.json and elm-stuff/.
type Project struct {
	mu sync.Mutex

	dir     string
	entry   string
	elm     string
	elmJSON string
	exec    Executor
}

func NewProject(dir, entry, elm, elmJSON string, executor Executor) *Project {
	return &Project{
		dir:     dir,
		entry:   entry,
		elm:     elm,
		elmJSON: elmJSON,
		exec:    executor,
	}
}

// Check compiles the entry file without producing output. An empty entry
// uses the project default. On failure the returned error carries the
// compiler report in its "report" context key.
func (p *Project) Check(ctx context.Context, entry string) (string, error) {
	if entry == "" {
		entry = p.entry
	}

	stderr, err := p.run(ctx, p.elm, "make", entry, "--output=/dev/null", "--report=json")
	if err != nil {
		return "", err
	}

	if stderr != "" {
		return "", platformerrors.WithContext(
			platformerrors.Newf(platformerrors.CodeBuildFailed, "compilation of %s failed", entry),
			"report", reportPayload(stderr),
		)
	}

	return fmt.Sprintf("Compilation of %s successful.", entry), nil
}

// Install adds a package to the project's dependencies. An empty version
// lets the dependency manager pick the newest compatible release.
func (p *Project) Install(ctx context.Context, author, pkg, version string) (string, error) {
	target := author + "/" + pkg
	if version != "" {
		target += "@" + version
	}

	stderr, err := p.run(ctx, p.elmJSON, "install", "--yes", target)
	if err != nil {
		return "", err
	}

	if stderr != "" {
		return "", platformerrors.WithContext(
			platformerrors.Newf(platformerrors.CodeExecutionFailed, "install %s failed", target),
			"output", stderr,
		)
	}

	return fmt.Sprintf("Installed %s.", target), nil
}

// Uninstall removes a package from the project's dependencies.
func (p *Project) Uninstall(ctx context.Context, author, pkg string) (string, error) {
	target := author + "/" + pkg

	stderr, err := p.run(ctx, p.elmJSON, "uninstall", "--yes", target)
	if err != nil {
		return "", err
	}

	if stderr != "" {
		return "", platformerrors.WithContext(
			platformerrors.Newf(platformerrors.CodeExecutionFailed, "uninstall %s failed", target),
			"output", stderr,
		)
	}

	return fmt.Sprintf("Uninstalled %s.", target), nil
}

// run invokes name in the project folder and returns the text that signals
// failure: stderr, or stdout when the command exited non-zero silently.
func (p *Project) run(ctx context.Context, name string, args ...string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slog.DebugContext(ctx, "running command", "dir", p.dir, "cmd", name, "args", args)

	result, err := p.exec.Run(ctx, p.dir, name, args...)
	if err != nil {
		return "", platformerrors.Wrapf(err, platformerrors.CodeExecutionFailed, "could not run %s", name)
	}

	stderr := strings.TrimSpace(result.Stderr)
	if stderr == "" && result.ExitCode != 0 {
		stderr = strings.TrimSpace(result.Stdout)
		if stderr == "" {
			stderr = fmt.Sprintf("%s exited with code %d", name, result.ExitCode)
		}
	}

	return stderr, nil
}

// reportPayload keeps a JSON compiler report structured and falls back to
// plain text.
func reportPayload(stderr string) any {
	if json.Valid([]byte(stderr)) {
		return json.RawMessage(stderr)
	}

	return stderr
}
