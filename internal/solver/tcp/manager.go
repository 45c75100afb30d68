package tcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/logging"
	"github.com/san-kum/hitchplan/internal/ocp"
	"github.com/san-kum/hitchplan/internal/solver"
)

var errTerminated = errors.New("manager terminated")

const (
	defaultDialTimeout  = time.Second
	defaultStartTimeout = 10 * time.Second
	startPollInterval   = 50 * time.Millisecond
	killGrace           = 2 * time.Second
)

// Manager is the client side of a solver server. It optionally owns the
// server process. Start, Ping and Terminate are safe to call repeatedly.
type Manager struct {
	addr         string
	command      []string
	logger       logging.Logger
	dialTimeout  time.Duration
	startTimeout time.Duration

	mu         sync.Mutex
	started    bool
	terminated bool
	cmd        *exec.Cmd
	exited     chan error
}

var _ solver.Solver = (*Manager)(nil)

type ManagerOption func(*Manager)

// WithCommand makes Start launch the server process.
func WithCommand(name string, args ...string) ManagerOption {
	return func(m *Manager) { m.command = append([]string{name}, args...) }
}

func WithLogger(l logging.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logging.OrNop(l) }
}

func WithStartTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.startTimeout = d }
}

func WithDialTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.dialTimeout = d }
}

func NewManager(addr string, opts ...ManagerOption) *Manager {
	m := &Manager{
		addr:         addr,
		logger:       logging.NewNop(),
		dialTimeout:  defaultDialTimeout,
		startTimeout: defaultStartTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Addr() string { return m.addr }

func (m *Manager) transportErr(op string, err error) *dynamo.TransportFailure {
	return &dynamo.TransportFailure{Op: op, Addr: m.addr, Err: err}
}

// Start launches the server process if one is configured and waits until
// it answers a ping.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated {
		return m.transportErr("start", errTerminated)
	}
	if m.started {
		return nil
	}

	if len(m.command) > 0 {
		cmd := exec.Command(m.command[0], m.command[1:]...)
		cmd.Stdout = os.Stderr
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return m.transportErr("start", err)
		}
		m.cmd = cmd
		m.exited = make(chan error, 1)
		go func() { m.exited <- cmd.Wait() }()
		m.logger.Infow("solver process started", "pid", cmd.Process.Pid, "command", m.command)
	}

	startCtx, cancel := context.WithTimeout(ctx, m.startTimeout)
	defer cancel()
	var last error
	for {
		if last = m.ping(startCtx); last == nil {
			break
		}
		select {
		case <-startCtx.Done():
			err := m.transportErr("start", multierr.Combine(last, startCtx.Err()))
			if m.cmd != nil {
				err2 := m.stopProcess()
				return multierr.Combine(err, err2)
			}
			return err
		case exitErr := <-m.exitedChan():
			m.cmd = nil
			return m.transportErr("start", multierr.Combine(errors.New("solver process exited"), exitErr))
		case <-time.After(startPollInterval):
		}
	}

	m.started = true
	m.logger.Infow("solver server ready", "addr", m.addr)
	return nil
}

// exitedChan is nil, and so never ready, without an owned process.
func (m *Manager) exitedChan() <-chan error {
	if m.cmd == nil {
		return nil
	}
	return m.exited
}

// Ping checks that the server answers.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.Lock()
	terminated := m.terminated
	m.mu.Unlock()
	if terminated {
		return m.transportErr("ping", errTerminated)
	}
	return m.ping(ctx)
}

func (m *Manager) ping(ctx context.Context) error {
	data, err := m.exchange(ctx, PingRequest(), true)
	if err != nil {
		return err
	}
	var p pong
	if err := json.Unmarshal(data, &p); err != nil || p.Pong != 1 {
		return m.transportErr("ping", multierr.Combine(errors.New("unexpected ping reply"), err))
	}
	return nil
}

// Call sends one Run request. A reply carrying an error comes back as an
// *ErrorResponse; anything that goes wrong on the wire is a
// *dynamo.TransportFailure.
func (m *Manager) Call(ctx context.Context, params, guess []float64) (*Response, error) {
	m.mu.Lock()
	terminated := m.terminated
	m.mu.Unlock()
	if terminated {
		return nil, m.transportErr("call", errTerminated)
	}

	data, err := m.exchange(ctx, RunRequestFor(params, guess), true)
	if err != nil {
		return nil, err
	}
	resp, err := decodeReply(data)
	if err != nil {
		var remote *ErrorResponse
		if errors.As(err, &remote) {
			return nil, remote
		}
		return nil, m.transportErr("decode", err)
	}
	return resp, nil
}

// Solve runs prob remotely. The server must be serving the same problem.
func (m *Manager) Solve(ctx context.Context, prob *ocp.Problem, params, guess []float64) (*solver.Solution, error) {
	guess, err := solver.CheckInputs(prob, params, guess)
	if err != nil {
		return nil, err
	}
	resp, err := m.Call(ctx, params, guess)
	if err != nil {
		return nil, err
	}
	sol, err := resp.ToSolution()
	if err != nil {
		return nil, m.transportErr("decode", err)
	}
	if len(sol.U) != prob.NumVars() {
		return nil, dynamo.NewConfigError(dynamo.ErrDimensionMismatch, "solution",
			"remote returned %d values, problem %s has %d", len(sol.U), prob.Name(), prob.NumVars())
	}
	return sol, nil
}

// Terminate asks the server to exit and reaps the owned process.
func (m *Manager) Terminate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated {
		return nil
	}
	m.terminated = true

	var err error
	if m.started || m.cmd != nil {
		if _, kerr := m.exchange(ctx, KillRequest(), false); kerr != nil {
			err = multierr.Append(err, kerr)
		}
	}
	if m.cmd != nil {
		err = multierr.Append(err, m.stopProcess())
	}
	m.started = false
	m.logger.Infow("solver manager terminated", "addr", m.addr, "error", err)
	return err
}

// stopProcess waits for the owned process to exit after a kill request and
// kills it when it does not.
func (m *Manager) stopProcess() error {
	defer func() { m.cmd = nil }()
	select {
	case <-m.exited:
		return nil
	case <-time.After(killGrace):
	}
	if err := m.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return m.transportErr("kill", err)
	}
	<-m.exited
	return nil
}

func (m *Manager) exchange(ctx context.Context, req Request, wantReply bool) ([]byte, error) {
	d := net.Dialer{Timeout: m.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return nil, m.transportErr("dial", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, m.transportErr("write", err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil {
			return nil, m.transportErr("write", err)
		}
	}
	if !wantReply {
		return nil, nil
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return nil, m.transportErr("read", err)
	}
	if len(data) == 0 {
		return nil, m.transportErr("read", io.ErrUnexpectedEOF)
	}
	return data, nil
}

// WithSession starts m, runs fn and terminates m whatever fn returns.
func WithSession(ctx context.Context, m *Manager, fn func(context.Context, *Manager) error) (err error) {
	if err := m.Start(ctx); err != nil {
		return multierr.Combine(err, m.Terminate(ctx))
	}
	defer func() {
		err = multierr.Combine(err, m.Terminate(context.WithoutCancel(ctx)))
	}()
	return fn(ctx, m)
}
