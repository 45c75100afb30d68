package optimizer_test

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zaptest/observer"

	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/logging"
	"github.com/san-kum/hitchplan/internal/models"
	"github.com/san-kum/hitchplan/internal/ocp"
	"github.com/san-kum/hitchplan/internal/optimizer"
	"github.com/san-kum/hitchplan/internal/planner"
	"github.com/san-kum/hitchplan/internal/solver"
)

// spySolver records every call and optionally overrides the outcome.
type spySolver struct {
	inner   solver.Solver
	guesses [][]float64
	status  *solver.Status
	err     error
}

func (s *spySolver) Solve(ctx context.Context, prob *ocp.Problem, params, guess []float64) (*solver.Solution, error) {
	s.guesses = append(s.guesses, append([]float64(nil), guess...))
	if s.err != nil {
		return nil, s.err
	}
	sol, err := s.inner.Solve(ctx, prob, params, guess)
	if err == nil && s.status != nil {
		sol.Status = *s.status
	}
	return sol, err
}

func newSpy() *spySolver {
	alm, err := solver.NewAugmentedLagrangian(solver.DefaultConfig(), nil)
	Expect(err).NotTo(HaveOccurred())
	return &spySolver{inner: alm}
}

func mustHorizon(T, dt float64) ocp.Horizon {
	h, err := ocp.NewHorizon(T, dt)
	Expect(err).NotTo(HaveOccurred())
	return h
}

func fastUnicycle(vmax float64) *models.Unicycle {
	m := models.NewUnicycle()
	m.MaxVelocity = vmax
	return m
}

func withinBox(seq dynamo.Sequence, vmax float64) bool {
	for _, v := range seq.Data {
		if math.Abs(v) > vmax+1e-12 {
			return false
		}
	}
	return true
}

var _ = Describe("TrajectoryOptimizer", func() {
	var (
		ctx  context.Context
		spy  *spySolver
		logs *observer.ObservedLogs
		log  logging.Logger
	)

	BeforeEach(func() {
		ctx = context.Background()
		spy = newSpy()
		log, logs = logging.NewObservedTestLogger(GinkgoT())
	})

	newOptimizer := func(mode planner.Mode, model dynamo.Model, h ocp.Horizon) *optimizer.TrajectoryOptimizer {
		opt, err := optimizer.New(optimizer.Options{Mode: mode, Model: model, Horizon: h, Solver: spy, Logger: log})
		Expect(err).NotTo(HaveOccurred())
		return opt
	}

	Describe("point-to-point", func() {
		var (
			opt   *optimizer.TrajectoryOptimizer
			model *models.Unicycle
		)

		BeforeEach(func() {
			mode, err := planner.NewPointToPoint(nil)
			Expect(err).NotTo(HaveOccurred())
			model = fastUnicycle(2)
			opt = newOptimizer(mode, model, mustHorizon(4, 0.1))
		})

		It("drives to the goal over a 40-step horizon", func() {
			traj, err := opt.GenerateTrajectory(ctx, dynamo.State{0, 0, 0}, optimizer.Goal(dynamo.State{5, 0, 0}), nil)
			Expect(err).NotTo(HaveOccurred())

			nu, n := traj.Controls.Shape()
			Expect(nu).To(Equal(2))
			Expect(n).To(Equal(40))
			Expect(traj.States).To(HaveLen(41))
			Expect(traj.Status).To(Equal(solver.Converged))

			final := traj.Final()
			Expect(math.Hypot(final[0]-5, final[1])).To(BeNumerically("<", 0.1))
		})

		It("keeps every control inside the velocity box", func() {
			traj, err := opt.GenerateTrajectory(ctx, dynamo.State{0, 0, 0}, optimizer.Goal(dynamo.State{4, 3, 1}), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(withinBox(traj.Controls, model.VelocityMax())).To(BeTrue())
		})

		It("rejects an initial state of the wrong size before solving", func() {
			_, err := opt.GenerateTrajectory(ctx, dynamo.State{0, 0}, optimizer.Goal(dynamo.State{5, 0, 0}), nil)
			Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())
			Expect(errors.Is(err, dynamo.ErrConfiguration)).To(BeTrue())
			Expect(spy.guesses).To(BeEmpty())
		})

		It("builds the problem once per reference shape", func() {
			p1, err := opt.Problem(1)
			Expect(err).NotTo(HaveOccurred())
			p2, err := opt.Problem(1)
			Expect(err).NotTo(HaveOccurred())
			Expect(p1).To(BeIdenticalTo(p2))
			Expect(logs.FilterMessage("problem built").Len()).To(Equal(1))
		})

		Context("warm start", func() {
			goal := optimizer.Goal(dynamo.State{5, 0, 0})

			It("starts from zeros on the first call", func() {
				_, err := opt.GenerateTrajectory(ctx, dynamo.State{0, 0, 0}, goal, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(spy.guesses[0]).To(BeEmpty())
			})

			It("primes the next call with the shifted last solution", func() {
				first, err := opt.GenerateTrajectory(ctx, dynamo.State{0, 0, 0}, goal, nil)
				Expect(err).NotTo(HaveOccurred())

				_, err = opt.GenerateTrajectory(ctx, first.States[1], goal, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(spy.guesses[1]).To(Equal(first.Controls.Shift().Data))
			})

			It("prefers an explicit warm start", func() {
				_, err := opt.GenerateTrajectory(ctx, dynamo.State{0, 0, 0}, goal, nil)
				Expect(err).NotTo(HaveOccurred())

				explicit := dynamo.NewSequence(2, 40)
				for t := 0; t < 40; t++ {
					explicit.Data[2*t] = 1
				}
				_, err = opt.GenerateTrajectory(ctx, dynamo.State{0, 0, 0}, goal, &explicit)
				Expect(err).NotTo(HaveOccurred())
				Expect(spy.guesses[1]).To(Equal(explicit.Data))
			})

			It("rejects a warm start of the wrong shape", func() {
				bad := dynamo.NewSequence(2, 10)
				_, err := opt.GenerateTrajectory(ctx, dynamo.State{0, 0, 0}, goal, &bad)
				Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())
				Expect(spy.guesses).To(BeEmpty())
			})

			It("forgets the last solution on Reset", func() {
				_, err := opt.GenerateTrajectory(ctx, dynamo.State{0, 0, 0}, goal, nil)
				Expect(err).NotTo(HaveOccurred())
				_, ok := opt.LastSolution()
				Expect(ok).To(BeTrue())

				opt.Reset()
				_, ok = opt.LastSolution()
				Expect(ok).To(BeFalse())

				_, err = opt.GenerateTrajectory(ctx, dynamo.State{0, 0, 0}, goal, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(spy.guesses[1]).To(BeEmpty())
			})
		})

		Context("when the solver does not converge", func() {
			It("returns a SolveFailure with the last iterate and keeps the stored plan", func() {
				status := solver.NotConvergedIterations
				spy.status = &status

				_, err := opt.GenerateTrajectory(ctx, dynamo.State{0, 0, 0}, optimizer.Goal(dynamo.State{5, 0, 0}), nil)
				var failure *dynamo.SolveFailure
				Expect(errors.As(err, &failure)).To(BeTrue())
				Expect(failure.Status).To(Equal("NotConvergedIterations"))
				Expect(failure.LastIterate).To(HaveLen(80))

				_, ok := opt.LastSolution()
				Expect(ok).To(BeFalse())
				Expect(spy.guesses).To(HaveLen(1))
			})
		})

		Context("when the solver is unreachable", func() {
			It("propagates a TransportFailure distinct from SolveFailure", func() {
				spy.err = &dynamo.TransportFailure{Op: "dial", Addr: "127.0.0.1:1", Err: errors.New("connection refused")}

				_, err := opt.GenerateTrajectory(ctx, dynamo.State{0, 0, 0}, optimizer.Goal(dynamo.State{5, 0, 0}), nil)
				Expect(errors.Is(err, dynamo.ErrTransport)).To(BeTrue())
				Expect(errors.Is(err, dynamo.ErrSolveFailed)).To(BeFalse())
			})
		})
	})

	Describe("terminal cost only", func() {
		It("ends at the reference position", func() {
			mode, err := planner.NewPointToPoint([]float64{0, 0, 0, 200, 0})
			Expect(err).NotTo(HaveOccurred())
			opt := newOptimizer(mode, models.NewUnicycle(), mustHorizon(4, 0.1))

			traj, err := opt.GenerateTrajectory(ctx, dynamo.State{0, 0, 0}, optimizer.Goal(dynamo.State{2, 1, 0}), nil)
			Expect(err).NotTo(HaveOccurred())
			final := traj.Final()
			Expect(math.Hypot(final[0]-2, final[1]-1)).To(BeNumerically("<", 0.05))
		})
	})

	Describe("coverage", func() {
		var opt *optimizer.TrajectoryOptimizer

		BeforeEach(func() {
			mode, err := planner.NewCoverage(nil, 0)
			Expect(err).NotTo(HaveOccurred())
			opt = newOptimizer(mode, fastUnicycle(2), mustHorizon(3, 0.1))
		})

		It("fails with a configuration error before any solve for a single waypoint", func() {
			_, err := opt.GenerateTrajectory(ctx, dynamo.State{0, 0, 0}, []dynamo.State{{3, 0, 0}}, nil)
			Expect(errors.Is(err, dynamo.ErrMalformedReference)).To(BeTrue())
			Expect(errors.Is(err, dynamo.ErrConfiguration)).To(BeTrue())
			Expect(spy.guesses).To(BeEmpty())
		})

		It("follows a straight path", func() {
			path := []dynamo.State{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}, {3, 0, 0}}
			traj, err := opt.GenerateTrajectory(ctx, dynamo.State{0, 0, 0}, path, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(traj.Warnings).To(BeEmpty())

			final := traj.Final()
			Expect(math.Hypot(final[0]-3, final[1])).To(BeNumerically("<", 0.2))
			Expect(withinBox(traj.Controls, 2)).To(BeTrue())
		})

		It("reports duplicate waypoints without failing", func() {
			path := []dynamo.State{{1, 1, 0}, {1, 1, 0}, {4, 1, 0}}
			traj, err := opt.GenerateTrajectory(ctx, dynamo.State{1, 1, 0}, path, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(traj.Warnings).To(HaveLen(1))
			Expect(traj.Warnings[0].Segments).To(Equal([]int{0}))
			Expect(logs.FilterMessage("reference has degenerate segments").Len()).To(Equal(1))
		})
	})

	Describe("backward recovery", func() {
		It("backs the trailer up within its limits", func() {
			mode, err := planner.NewBackwardRecovery(nil, nil)
			Expect(err).NotTo(HaveOccurred())
			opt := newOptimizer(mode, models.NewTractorTrailer(), mustHorizon(2, 0.1))

			traj, err := opt.GenerateTrajectory(ctx, dynamo.State{0, 0, 0, 0}, optimizer.Goal(dynamo.State{-1, 0, 0, 0}), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(traj.Status).To(Equal(solver.Converged))
			for t := 0; t < traj.Controls.Steps(); t++ {
				u := traj.Controls.At(t)
				Expect(math.Abs(u[0])).To(BeNumerically("<=", 1.5))
				Expect(math.Abs(u[1])).To(BeNumerically("<=", 0.5))
			}
			for _, x := range traj.States {
				Expect(math.Abs(x[3])).To(BeNumerically("<", 0.785+0.05))
			}
			Expect(traj.Final()[0]).To(BeNumerically("<", -0.5))
		})

		It("converges over a four second horizon", func() {
			mode, err := planner.NewBackwardRecovery(nil, nil)
			Expect(err).NotTo(HaveOccurred())
			opt := newOptimizer(mode, models.NewTractorTrailer(), mustHorizon(4, 0.1))

			traj, err := opt.GenerateTrajectory(ctx, dynamo.State{0, 0, 0, 0}, optimizer.Goal(dynamo.State{-1, 0, 0, 0}), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(traj.Status).To(Equal(solver.Converged))
			Expect(traj.Controls.Steps()).To(Equal(40))
			Expect(traj.Final()[0]).To(BeNumerically("<", -0.5))
		})
	})
})
