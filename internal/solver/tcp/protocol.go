// Package tcp runs a solver in another process and talks to it over TCP
// with one JSON request per connection.
//
// Requests:
//
//	{"Run": {"parameter": [...], "initial_guess": [...]}}
//	{"Ping": 1}
//	{"Kill": 1}
//
// A Run is answered with a [Response] or an [ErrorResponse], a Ping with
// {"Pong": 1}. Kill gets no answer; the server stops accepting.
package tcp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/san-kum/hitchplan/internal/solver"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeInvalidRequest       = 1000
	CodeBadInitialGuess      = 1600
	CodeSolverFailed         = 2000
	CodeBadParameterLength   = 3003
	CodeUnsupportedOperation = 4000
)

type Request struct {
	Run  *RunRequest `json:"Run,omitempty"`
	Ping *int        `json:"Ping,omitempty"`
	Kill *int        `json:"Kill,omitempty"`
}

type RunRequest struct {
	Parameter    []float64 `json:"parameter"`
	InitialGuess []float64 `json:"initial_guess,omitempty"`
}

func one() *int {
	v := 1
	return &v
}

func PingRequest() Request { return Request{Ping: one()} }
func KillRequest() Request { return Request{Kill: one()} }

func RunRequestFor(params, guess []float64) Request {
	return Request{Run: &RunRequest{Parameter: params, InitialGuess: guess}}
}

// Response is the answer to a successful Run.
type Response struct {
	ExitStatus          string    `json:"exit_status"`
	NumOuterIterations  int       `json:"num_outer_iterations"`
	NumInnerIterations  int       `json:"num_inner_iterations"`
	F1Infeasibility     float64   `json:"f1_infeasibility"`
	SolveTimeMs         float64   `json:"solve_time_ms"`
	Penalty             float64   `json:"penalty"`
	Solution            []float64 `json:"solution"`
	LagrangeMultipliers []float64 `json:"lagrange_multipliers,omitempty"`
	Cost                float64   `json:"cost"`
}

type ErrorResponse struct {
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("remote solver error %d: %s", e.Code, e.Message)
}

func newError(code int, format string, args ...any) *ErrorResponse {
	return &ErrorResponse{Type: "Error", Code: code, Message: fmt.Sprintf(format, args...)}
}

type pong struct {
	Pong int `json:"Pong"`
}

func responseFrom(sol *solver.Solution) Response {
	return Response{
		ExitStatus:          sol.Status.String(),
		NumOuterIterations:  sol.OuterIterations,
		NumInnerIterations:  sol.InnerIterations,
		F1Infeasibility:     sol.Infeasibility,
		SolveTimeMs:         float64(sol.SolveTime.Microseconds()) / 1000,
		Penalty:             sol.Penalty,
		Solution:            sol.U,
		LagrangeMultipliers: sol.Multipliers,
		Cost:                sol.Cost,
	}
}

// ToSolution converts the wire response back into a solver.Solution.
func (r *Response) ToSolution() (*solver.Solution, error) {
	status, err := solver.ParseStatus(r.ExitStatus)
	if err != nil {
		return nil, err
	}
	return &solver.Solution{
		Status:          status,
		U:               r.Solution,
		Multipliers:     r.LagrangeMultipliers,
		Cost:            r.Cost,
		Infeasibility:   r.F1Infeasibility,
		Penalty:         r.Penalty,
		OuterIterations: r.NumOuterIterations,
		InnerIterations: r.NumInnerIterations,
		SolveTime:       durationMs(r.SolveTimeMs),
	}, nil
}

// decodeReply tells an error reply from a solution by its "type" field.
func decodeReply(data []byte) (*Response, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if probe.Type == "Error" {
		var e ErrorResponse
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return nil, &e
	}
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func durationMs(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
