package tcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/san-kum/hitchplan/internal/logging"
	"github.com/san-kum/hitchplan/internal/ocp"
	"github.com/san-kum/hitchplan/internal/solver"
)

const defaultReadTimeout = 5 * time.Second

// Server answers requests for one problem, one connection at a time.
type Server struct {
	prob        *ocp.Problem
	solver      solver.Solver
	logger      logging.Logger
	readTimeout time.Duration

	killOnce sync.Once
	killed   chan struct{}
}

func NewServer(prob *ocp.Problem, s solver.Solver, logger logging.Logger) *Server {
	return &Server{
		prob:        prob,
		solver:      s,
		logger:      logging.OrNop(logger),
		readTimeout: defaultReadTimeout,
		killed:      make(chan struct{}),
	}
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or a Kill request
// arrives. Both end in a nil error.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Infow("solver server listening", "addr", ln.Addr().String(), "problem", s.prob.Name())

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-s.killed:
		case <-done:
		}
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.killed:
				s.logger.Infow("solver server stopped by kill request")
				return nil
			default:
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.handle(ctx, conn)
	}
}

// Killed is closed once a Kill request has been received.
func (s *Server) Killed() <-chan struct{} {
	return s.killed
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		s.logger.Warnw("set read deadline", "error", err)
	}

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.reply(conn, newError(CodeInvalidRequest, "malformed request: %v", err))
		return
	}

	switch {
	case req.Kill != nil:
		s.killOnce.Do(func() { close(s.killed) })
	case req.Ping != nil:
		s.reply(conn, pong{Pong: 1})
	case req.Run != nil:
		s.reply(conn, s.run(ctx, req.Run))
	default:
		s.reply(conn, newError(CodeInvalidRequest, "request names no Run, Ping or Kill"))
	}
}

func (s *Server) run(ctx context.Context, r *RunRequest) any {
	if len(r.Parameter) != s.prob.NumParams() {
		return newError(CodeBadParameterLength, "parameter has %d values, expected %d", len(r.Parameter), s.prob.NumParams())
	}
	if r.InitialGuess != nil && len(r.InitialGuess) != s.prob.NumVars() {
		return newError(CodeBadInitialGuess, "initial guess has %d values, expected %d", len(r.InitialGuess), s.prob.NumVars())
	}

	sol, err := s.solver.Solve(ctx, s.prob, r.Parameter, r.InitialGuess)
	if err != nil {
		s.logger.Warnw("solve failed", "error", err)
		return newError(CodeSolverFailed, "%v", err)
	}
	s.logger.Debugw("solve served", "status", sol.Status, "cost", sol.Cost, "duration", sol.SolveTime)
	return responseFrom(sol)
}

func (s *Server) reply(conn net.Conn, v any) {
	if err := json.NewEncoder(conn).Encode(v); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warnw("write reply", "error", err)
	}
}
