package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
)

// notificationQueueDepth is the recommended bound from spec.md §4.2.
const notificationQueueDepth = 100

// outboundQueueDepth bounds the writer's pending-frame queue. Write blocks
// (a documented suspension point, spec.md §5) once it fills.
const outboundQueueDepth = 64

// processReapTimeout is how long Close waits for a graceful exit before
// force-terminating the subprocess.
const processReapTimeout = 5 * time.Second

// StdioParameters are the subprocess launch parameters of spec.md §6.
// Constructing a StdioTransport from these performs only parameter
// capture — see NewStdioTransport.
type StdioParameters struct {
	Command string
	Args    []string
	Env     map[string]string
	Cwd     string
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnv expands "${NAME}" references in each value of env against the
// parent process environment. A reference with no match in the parent
// environment is left as the literal text (spec.md §6).
func ResolveEnv(env map[string]string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	parent := os.Environ()
	lookup := make(map[string]string, len(parent))
	for _, kv := range parent {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			lookup[kv[:i]] = kv[i+1:]
		}
	}

	resolved := make(map[string]string, len(env))
	for k, v := range env {
		resolved[k] = envVarPattern.ReplaceAllStringFunc(v, func(ref string) string {
			name := ref[2 : len(ref)-1]
			if val, ok := lookup[name]; ok {
				return val
			}
			return ref
		})
	}
	return resolved
}

// StdioTransport is a subprocess-backed duplex byte stream transport
// (spec.md §4.2). A StdioTransport must be constructed with
// NewStdioTransport and opened with Open before Write/Messages are usable.
//
// The deferred-open invariant is load-bearing: NewStdioTransport performs
// only parameter capture. Every channel, goroutine, and stream is created
// inside Open. Allocating them at construction time has been observed to
// deadlock a host that constructs a transport while another concurrent
// scope on the same runtime is active — constructing a StdioTransport must
// never block on, or race, anything outside itself.
type StdioTransport struct {
	params StdioParameters
	logger *slog.Logger

	mu    sync.Mutex
	state TransportState

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	outbound      chan outboundFrame
	inbound       chan Message
	notifications chan Message

	readerDone  chan struct{}
	writerDone  chan struct{}
	stderrDone  chan struct{}
	closeOnce   sync.Once
	closed      chan struct{}
}

type outboundFrame struct {
	bytes []byte
	errs  chan<- error
}

// NewStdioTransport captures the subprocess launch parameters. It performs
// no I/O and allocates no runtime primitive — see the deferred-open
// invariant documented on StdioTransport.
func NewStdioTransport(params StdioParameters, opts ...StdioOption) *StdioTransport {
	t := &StdioTransport{
		params: params,
		logger: slog.Default(),
		state:  StateUnopened,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StdioOption configures a StdioTransport at construction time. Options
// must not themselves allocate runtime primitives.
type StdioOption func(*StdioTransport)

// WithStdioLogger overrides the default logger used for the diagnostic
// sink (malformed frames, drained stderr, dropped responses).
func WithStdioLogger(logger *slog.Logger) StdioOption {
	return func(t *StdioTransport) { t.logger = logger }
}

// State implements ClientTransport.
func (t *StdioTransport) State() TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Open spawns the subprocess and starts the reader, writer, and
// stderr-drain goroutines. Open is the only place this type allocates a
// channel or goroutine.
func (t *StdioTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateUnopened {
		t.mu.Unlock()
		return newError(KindNonRetryable, "open", fmt.Errorf("transport already opened"))
	}

	cmd := exec.Command(t.params.Command, t.params.Args...)
	if t.params.Cwd != "" {
		cmd.Dir = t.params.Cwd
	}
	cmd.Env = os.Environ()
	for k, v := range ResolveEnv(t.params.Env) {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	detachSubprocess(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.mu.Unlock()
		return newError(KindRetryable, "open", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.mu.Unlock()
		return newError(KindRetryable, "open", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		t.mu.Unlock()
		return newError(KindRetryable, "open", err)
	}

	if err := cmd.Start(); err != nil {
		t.mu.Unlock()
		return newError(KindRetryable, "open", fmt.Errorf("spawn %s: %w", t.params.Command, err))
	}

	t.cmd = cmd
	t.stdin = stdin
	t.stdout = stdout
	t.stderr = stderr
	t.outbound = make(chan outboundFrame, outboundQueueDepth)
	t.inbound = make(chan Message)
	t.notifications = make(chan Message, notificationQueueDepth)
	t.readerDone = make(chan struct{})
	t.writerDone = make(chan struct{})
	t.stderrDone = make(chan struct{})
	t.closed = make(chan struct{})
	t.state = StateOpen
	t.mu.Unlock()

	go t.runWriter()
	go t.runReader()
	go t.drainStderr()

	_ = ctx
	return nil
}

// Write enqueues a frame for the writer goroutine and waits for the write
// to complete or fail.
func (t *StdioTransport) Write(ctx context.Context, msg Message) error {
	if t.State() != StateOpen {
		return newError(KindTransportClosed, "write", nil)
	}

	bs, err := Encode(msg)
	if err != nil {
		return err
	}
	bs = append(bs, '\n')

	errs := make(chan error, 1)
	select {
	case t.outbound <- outboundFrame{bytes: bs, errs: errs}:
	case <-t.closed:
		return newError(KindTransportClosed, "write", nil)
	case <-ctx.Done():
		return newError(KindCancelled, "write", ctx.Err())
	}

	select {
	case err := <-errs:
		if err != nil {
			return newError(KindRetryable, "write", err)
		}
		return nil
	case <-t.closed:
		return newError(KindTransportClosed, "write", nil)
	case <-ctx.Done():
		return newError(KindCancelled, "write", ctx.Err())
	}
}

// Messages implements ClientTransport: it yields every inbound request and
// response frame in arrival order. Notifications are routed separately,
// see Notifications.
func (t *StdioTransport) Messages() iter.Seq[Message] {
	return func(yield func(Message) bool) {
		for {
			select {
			case msg, ok := <-t.inbound:
				if !ok {
					return
				}
				if !yield(msg) {
					return
				}
			case <-t.closed:
				return
			}
		}
	}
}

// Notifications implements ClientTransport.
func (t *StdioTransport) Notifications() <-chan Message {
	return t.notifications
}

// Close signals shutdown, closes stdin (EOF to the child), stops the
// reader/writer/stderr goroutines, and reaps the subprocess, killing it if
// it doesn't exit promptly. Close is idempotent and safe on every exit path.
func (t *StdioTransport) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.state == StateUnopened {
		t.state = StateClosed
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	var closeErr error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.state = StateClosed
		t.mu.Unlock()

		close(t.closed)
		_ = t.stdin.Close()

		<-t.readerDone
		<-t.writerDone
		<-t.stderrDone

		closeErr = t.reapProcess(ctx)
	})
	return closeErr
}

func (t *StdioTransport) reapProcess(ctx context.Context) error {
	if t.cmd == nil || t.cmd.Process == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- t.cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(processReapTimeout):
	case <-ctx.Done():
	}

	if err := t.cmd.Process.Kill(); err != nil {
		t.logger.Warn("failed to kill subprocess", slog.String("err", err.Error()))
	}
	<-done
	return nil
}

func (t *StdioTransport) runWriter() {
	defer close(t.writerDone)

	for {
		select {
		case frame := <-t.outbound:
			_, err := t.stdin.Write(frame.bytes)
			frame.errs <- err
		case <-t.closed:
			return
		}
	}
}

func (t *StdioTransport) runReader() {
	defer close(t.readerDone)
	defer close(t.inbound)

	reader := bufio.NewReaderSize(t.stdout, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			t.processLine(line)
		}
		if err != nil {
			if err != io.EOF {
				t.logger.Error("stdio read failed", slog.String("err", err.Error()))
			}
			return
		}

		select {
		case <-t.closed:
			return
		default:
		}
	}
}

func (t *StdioTransport) processLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	msg, err := Decode([]byte(line))
	if err != nil {
		t.logger.Warn("skipping malformed frame", slog.String("err", err.Error()), slog.String("line", line))
		return
	}

	if msg.IsNotification() {
		select {
		case t.notifications <- msg:
		case <-t.closed:
		}
		return
	}

	select {
	case t.inbound <- msg:
	case <-t.closed:
	}
}

func (t *StdioTransport) drainStderr() {
	defer close(t.stderrDone)

	scanner := bufio.NewScanner(t.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		t.logger.Info("subprocess stderr", slog.String("line", line))
	}
}
