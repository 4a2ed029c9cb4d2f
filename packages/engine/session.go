package engine

import (
	"bufio"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// ErrWorkerLost reports a worker process that died or closed its pipe while
// work was outstanding.
var ErrWorkerLost = errors.New("worker lost")

// Session is one live worker. Commands are synchronous: one outstanding
// command per session at a time.
type Session interface {
	// Warm readies the worker (interpreter started, driver loaded).
	Warm(ctx context.Context) error
	// Run executes one test item. A non-nil error means the worker is
	// unusable (lost or cancelled), not that the test failed.
	Run(ctx context.Context, req *RunRequest) (*RunResponse, error)
	// Teardown finalizes fixture instances by cache key.
	Teardown(ctx context.Context, keys []string) ([]TeardownFailure, error)
	// Close shuts the worker down, finalizing whatever is still live.
	Close() []TeardownFailure
}

// Launcher creates worker sessions. The Python subprocess launcher is the
// production implementation; tests substitute in-memory fakes.
type Launcher interface {
	Launch(ctx context.Context, workerID int) (Session, error)
}

//go:embed worker.py
var workerScript []byte

// PythonLauncher starts Python worker subprocesses running the embedded
// driver script.
type PythonLauncher struct {
	Python string // interpreter executable, default "python3"
	Root   string // working directory and sys.path root for test modules
	Env    []string

	once       sync.Once
	scriptPath string
	scriptErr  error
}

func (l *PythonLauncher) script() (string, error) {
	l.once.Do(func() {
		dir, err := os.MkdirTemp("", "velocitest-worker-*")
		if err != nil {
			l.scriptErr = err
			return
		}
		path := filepath.Join(dir, "worker.py")
		if err := os.WriteFile(path, workerScript, 0o644); err != nil {
			l.scriptErr = err
			return
		}
		l.scriptPath = path
	})
	return l.scriptPath, l.scriptErr
}

// Launch starts one worker process and waits for its ready event.
func (l *PythonLauncher) Launch(ctx context.Context, workerID int) (Session, error) {
	script, err := l.script()
	if err != nil {
		return nil, fmt.Errorf("writing worker driver: %w", err)
	}

	python := l.Python
	if python == "" {
		python = "python3"
	}

	cmd := exec.CommandContext(ctx, python, "-u", script)
	cmd.Dir = l.Root
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.Env = append(cmd.Env, fmt.Sprintf("VELOCITEST_WORKER_ID=%d", workerID))
	// Grace period between SIGKILL-on-cancel and reaping.
	cmd.WaitDelay = 5 * time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting worker %d: %w", workerID, err)
	}

	s := &pythonSession{
		id:    workerID,
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan string, 64),
	}
	go s.readLoop(stdout)
	return s, nil
}

type pythonSession struct {
	id     int
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	closed bool
}

func (s *pythonSession) readLoop(r io.Reader) {
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scan.Scan() {
		s.lines <- scan.Text()
	}
	close(s.lines)
}

func (s *pythonSession) send(v any) error {
	b, err := encodeCommand(v)
	if err != nil {
		return err
	}
	if _, err := s.stdin.Write(b); err != nil {
		return fmt.Errorf("%w: %v", ErrWorkerLost, err)
	}
	return nil
}

// next returns the next event line, honoring cancellation.
func (s *pythonSession) next(ctx context.Context) (gjson.Result, error) {
	select {
	case <-ctx.Done():
		return gjson.Result{}, ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			return gjson.Result{}, ErrWorkerLost
		}
		return gjson.Parse(line), nil
	}
}

func (s *pythonSession) Warm(ctx context.Context) error {
	if err := s.send(map[string]string{"cmd": "ping"}); err != nil {
		return err
	}
	for {
		ev, err := s.next(ctx)
		if err != nil {
			return err
		}
		if ev.Get("event").String() == "pong" {
			return nil
		}
	}
}

func (s *pythonSession) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	if err := s.send(req); err != nil {
		return nil, err
	}

	resp := &RunResponse{}
	for {
		ev, err := s.next(ctx)
		if err != nil {
			return nil, err
		}
		switch ev.Get("event").String() {
		case "fixture_ready":
			resp.FixturesReady = append(resp.FixturesReady, ev.Get("key").String())
		case "result":
			resp.Status = ev.Get("status").String()
			resp.DurationMs = ev.Get("duration_ms").Float()
			resp.Stdout = ev.Get("stdout").String()
			resp.Stderr = ev.Get("stderr").String()
			resp.Detail = ev.Get("detail").String()
			return resp, nil
		}
	}
}

func (s *pythonSession) Teardown(ctx context.Context, keys []string) ([]TeardownFailure, error) {
	if err := s.send(&TeardownRequest{Cmd: "teardown", Keys: keys}); err != nil {
		return nil, err
	}

	var failures []TeardownFailure
	for {
		ev, err := s.next(ctx)
		if err != nil {
			return failures, err
		}
		switch ev.Get("event").String() {
		case "teardown_error":
			failures = append(failures, TeardownFailure{
				Key:    ev.Get("key").String(),
				Detail: ev.Get("detail").String(),
			})
		case "teardown_done":
			return failures, nil
		}
	}
}

func (s *pythonSession) Close() []TeardownFailure {
	if s.closed {
		return nil
	}
	s.closed = true

	var failures []TeardownFailure
	if err := s.send(map[string]string{"cmd": "shutdown"}); err == nil {
		deadline := time.After(10 * time.Second)
	drain:
		for {
			select {
			case line, ok := <-s.lines:
				if !ok {
					break drain
				}
				ev := gjson.Parse(line)
				if ev.Get("event").String() == "teardown_error" {
					failures = append(failures, TeardownFailure{
						Key:    ev.Get("key").String(),
						Detail: ev.Get("detail").String(),
					})
				}
				if ev.Get("event").String() == "bye" {
					break drain
				}
			case <-deadline:
				break drain
			}
		}
	}
	_ = s.stdin.Close()
	_ = s.cmd.Wait()
	return failures
}
