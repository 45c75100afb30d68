package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/hitchplan/internal/automation"
	"github.com/san-kum/hitchplan/internal/config"
	"github.com/san-kum/hitchplan/internal/dynamo"
	"github.com/san-kum/hitchplan/internal/experiment"
	"github.com/san-kum/hitchplan/internal/export"
	"github.com/san-kum/hitchplan/internal/logging"
	"github.com/san-kum/hitchplan/internal/optim"
	"github.com/san-kum/hitchplan/internal/solver/tcp"
	"github.com/san-kum/hitchplan/internal/storage"
	"github.com/san-kum/hitchplan/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string
	debug      bool

	horizon     float64
	dt          float64
	backend     string
	serverAddr  string
	velocityMax float64
	integrator  string
	weights     []float64
	pathWindow  int

	loopDuration float64
	replanEvery  int

	outPath    string
	svgPath    string
	metricName string
	workers    int
	gridParams []string

	trials  int
	perturb []float64
	seed    int64
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "hitchplan",
		Short:         "trajectory planning for tractor-trailer vehicles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".hitchplan", "data directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")

	planCmd := &cobra.Command{
		Use:   "plan [mode]",
		Short: "solve one trajectory and store it",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPlan,
	}
	addProblemFlags(planCmd)

	trackCmd := &cobra.Command{
		Use:   "track [mode]",
		Short: "run a closed-loop receding-horizon simulation",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTrack,
	}
	addProblemFlags(trackCmd)
	addLoopFlags(trackCmd)

	serveCmd := &cobra.Command{
		Use:   "serve [mode]",
		Short: "serve the mode's problem over TCP",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runServe,
	}
	addProblemFlags(serveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&svgPath, "svg", "", "also draw the path to this SVG file")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a scripted scenario (yaml)",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [mode]",
		Short: "closed-loop runs from perturbed initial states",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	addProblemFlags(monteCarloCmd)
	addLoopFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&trials, "trials", 10, "number of trials")
	monteCarloCmd.Flags().Float64SliceVar(&perturb, "perturb", nil, "per-component initial state perturbation")
	monteCarloCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 = time based)")
	monteCarloCmd.Flags().IntVar(&workers, "workers", 2, "concurrent closed loops")

	presetsCmd := &cobra.Command{
		Use:   "presets [mode]",
		Short: "list available presets for a mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for mode: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	tuneCmd := &cobra.Command{
		Use:   "tune [mode]",
		Short: "grid-search cost weights against a closed-loop metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTune,
	}
	addProblemFlags(tuneCmd)
	addLoopFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&gridParams, "grid", nil, "weight grid, e.g. r_u=0.1,1,10 (repeatable)")
	tuneCmd.Flags().StringVar(&metricName, "metric", "goal_distance", "metric to minimize")
	tuneCmd.Flags().IntVar(&workers, "workers", 2, "concurrent closed loops")

	rootCmd.AddCommand(planCmd, trackCmd, serveCmd, listCmd, plotCmd, exportCmd, presetsCmd, tuneCmd, scenarioCmd, monteCarloCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, viz.StatusFail.Render("error:"), err)
		os.Exit(1)
	}
}

func addProblemFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Float64Var(&horizon, "horizon", config.DefaultHorizon, "planning horizon T in seconds")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	cmd.Flags().StringVar(&backend, "backend", "alm", "solver backend (alm, nlopt, tcp)")
	cmd.Flags().StringVar(&serverAddr, "addr", config.DefaultServerAddr, "optimizer server address")
	cmd.Flags().Float64Var(&velocityMax, "vmax", 1.0, "velocity limit")
	cmd.Flags().StringVar(&integrator, "integrator", "euler", "integrator (euler, rk4)")
	cmd.Flags().Float64SliceVar(&weights, "weights", nil, "positional cost weights")
	cmd.Flags().IntVar(&pathWindow, "path-window", 0, "cross-track segment window (0 = whole path)")
}

func addLoopFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&loopDuration, "time", config.DefaultLoopDuration, "closed-loop duration")
	cmd.Flags().IntVar(&replanEvery, "replan-every", 1, "steps between re-plans")
}

func newLogger() logging.Logger {
	if debug {
		return logging.NewDebugLogger("hitchplan")
	}
	return logging.NewLogger("hitchplan")
}

// loadConfig layers defaults, preset, config file and explicit flags, in
// that order.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	mode := config.DefaultConfig().Mode
	if len(args) > 0 {
		mode = args[0]
	}

	name := preset
	if name == "" && configFile == "" {
		name = config.DefaultPresets[mode]
	}
	cfg := config.DefaultConfig()
	if name != "" {
		cfg = config.GetPreset(mode, name)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", name, config.ListPresets(mode))
		}
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		if len(args) > 0 {
			cfg.Mode = mode
		}
	}

	flags := cmd.Flags()
	if flags.Changed("horizon") {
		cfg.Horizon = horizon
	}
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("backend") {
		cfg.Solver.Backend = backend
	}
	if flags.Changed("addr") {
		cfg.Solver.ServerAddr = serverAddr
	}
	if flags.Changed("vmax") {
		cfg.Model.VelocityMax = velocityMax
	}
	if flags.Changed("integrator") {
		cfg.Model.Integrator = integrator
	}
	if flags.Changed("weights") {
		cfg.Weights = weights
	}
	if flags.Changed("path-window") {
		cfg.PathWindow = pathWindow
	}
	if flags.Lookup("time") != nil && flags.Changed("time") {
		cfg.Loop.Duration = loopDuration
	}
	if flags.Lookup("replan-every") != nil && flags.Changed("replan-every") {
		cfg.Loop.ReplanEvery = replanEvery
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openStore() (*storage.Store, error) {
	st := storage.New(dataDir)
	return st, st.Init()
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	logger := newLogger()
	defer logger.Sync()

	exp, err := experiment.New(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer exp.Close(ctx)

	fmt.Println(viz.Title.Render(fmt.Sprintf("planning %s (%s backend)", cfg.Mode, cfg.Solver.Backend)))
	traj, err := exp.Plan(ctx)
	if err != nil {
		var failure *dynamo.SolveFailure
		if errors.As(err, &failure) {
			fmt.Printf("status: %s\n", viz.Status(failure.Status))
		}
		return err
	}

	runID, err := st.Save(storage.FromTrajectory(cfg, traj))
	if err != nil {
		return err
	}

	final := traj.Final()
	fmt.Printf("status: %s\n", viz.Status(traj.Status.String()))
	fmt.Printf("run id: %s\n", runID)
	fmt.Println(viz.Metric("cost", traj.Cost))
	fmt.Println(viz.Metric("outer iterations", float64(traj.OuterIterations)))
	fmt.Println(viz.Metric("inner iterations", float64(traj.InnerIterations)))
	fmt.Println(viz.Metric("solve time (ms)", float64(traj.SolveTime.Microseconds())/1000))
	fmt.Printf("%s (%.3f, %.3f)\n", viz.MetricLabel.Render("final position:"), final[0], final[1])
	for _, w := range traj.Warnings {
		fmt.Println(viz.StatusWarn.Render("warning:"), w)
	}

	replay, err := exp.Replay(ctx, traj)
	if err != nil {
		return err
	}
	fmt.Println(viz.Metric("replay drift", replay.Final().Sub(final).Norm()))
	return nil
}

func runTrack(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	logger := newLogger()
	defer logger.Sync()

	exp, err := experiment.New(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer exp.Close(ctx)

	fmt.Println(viz.Title.Render(fmt.Sprintf("tracking %s for %.1fs", cfg.Mode, cfg.Loop.Duration)))
	res, stats, err := exp.Track(ctx)
	if err != nil {
		return err
	}

	run := storage.FromResult(cfg, res)
	runID, err := st.Save(run)
	if err != nil {
		return err
	}

	fmt.Printf("status: %s\n", viz.Status(run.Status))
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d\n", res.StepsTaken)
	fmt.Printf("re-plans: %d (failed %d, held %d, safe stops %d)\n",
		stats.Replans, stats.Failures, stats.Holds, stats.SafeStops)

	speeds := make([]float64, len(res.Controls))
	for i, u := range res.Controls {
		speeds[i] = u[0]
	}
	fmt.Printf("%s %s\n", viz.MetricLabel.Render("v:"), viz.Sparkline(speeds, 60))

	fmt.Println("\nmetrics:")
	names := make([]string, 0, len(res.Metrics))
	for name := range res.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Println("  " + viz.Metric(name, res.Metrics[name]))
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	addr := cfg.Solver.ServerAddr
	// the server always solves in-process
	cfg.Solver.Backend = "alm"

	ctx, cancel := signalContext()
	defer cancel()

	logger := newLogger()
	defer logger.Sync()

	exp, err := experiment.New(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	prob, err := exp.Problem()
	if err != nil {
		return err
	}

	fmt.Println(viz.Title.Render(fmt.Sprintf("serving %s on %s", prob.Name(), addr)))
	server := tcp.NewServer(prob, exp.Solver(), logger.Named("server"))
	return server.ListenAndServe(ctx, addr)
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tMODE\tMODEL\tTIME\tSTEPS\tDT\tBACKEND\tSTATUS")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%.3fs\t%s\t%s\n",
			run.ID,
			run.Kind,
			run.Mode,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Steps,
			run.Dt,
			run.Backend,
			run.Status,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	states, _, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	controls, _, err := st.LoadControls(runID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Println(viz.Title.Render(fmt.Sprintf("run %s", meta.ID)))
	fmt.Printf("mode: %s  model: %s  status: %s\n", meta.Mode, meta.Model, viz.Status(meta.Status))
	fmt.Printf("samples: %d\n\n", len(states))

	fmt.Println(viz.Subtle.Render("path (reference and driven)"))
	fmt.Println(viz.PathPlot([][]viz.Point{viz.Positions(meta.Reference), viz.Positions(states)}, 60, 15))

	fmt.Println(viz.ControlSeries(controls, "controls v (green), w (yellow)"))
	fmt.Println()

	captions := []string{"x", "y", "heading θ", "articulation γ"}
	for i := 0; i < len(states[0]) && i < len(captions); i++ {
		fmt.Println(viz.Series(states, i, captions[i]))
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if svgPath != "" {
		if err := exportSVG(st, args[0], svgPath); err != nil {
			return err
		}
	}
	if outPath == "" {
		return st.Export(args[0], os.Stdout)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := st.Export(args[0], f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("exported %s to %s\n", args[0], outPath)
	return nil
}

func exportSVG(st *storage.Store, runID, path string) error {
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	states, _, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	svg := export.PathSVG([]export.Layer{
		{Points: viz.Positions(meta.Reference), Stroke: "#888899", Dashed: true},
		{Points: viz.Positions(states), Stroke: "#00ff88"},
	}, 800, 600)
	if svg == "" {
		return fmt.Errorf("run %s has no path to draw", runID)
	}
	return os.WriteFile(path, []byte(svg), 0644)
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	logger := newLogger()
	defer logger.Sync()

	fmt.Println(viz.Title.Render(fmt.Sprintf("scenario %s: %d steps", sc.Name, len(sc.Steps))))
	results, err := automation.RunScenario(ctx, sc, nil, st, logger)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tRUN\tSTATUS")
	for _, r := range results {
		status := r.Status
		if r.Err != nil {
			status = r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Step, r.RunID, status)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	return err
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	p := perturb
	if p == nil {
		p = make([]float64, len(cfg.InitialState))
		p[0], p[1] = 0.1, 0.1
	}
	mc := &automation.MonteCarloConfig{
		Base:         cfg,
		Perturbation: p,
		NumTrials:    trials,
		Workers:      workers,
		Seed:         seed,
	}

	fmt.Println(viz.Title.Render(fmt.Sprintf("monte carlo %s: %d trials", cfg.Mode, trials)))
	results, err := automation.RunMonteCarlo(ctx, mc, nil)
	if err != nil && results == nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRIAL\tINITIAL\tFINAL\tGOAL DIST\tREACHED")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%d\t%.3f\t-\t-\t%s\n", r.TrialID, r.InitState, r.Err)
			continue
		}
		fmt.Fprintf(w, "%d\t%.3f\t%.3f\t%.4f\t%v\n", r.TrialID, r.InitState, r.FinalState, r.GoalDistance, r.ReachedGoal)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}

	reached, missed := automation.MonteCarloStats(results)
	fmt.Printf("\nreached: %s  missed: %s\n",
		viz.StatusOK.Render(strconv.Itoa(reached)), viz.StatusFail.Render(strconv.Itoa(missed)))
	return err
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if len(gridParams) == 0 {
		return fmt.Errorf("no --grid given (weights: %s)", strings.Join(optim.WeightNames, ", "))
	}

	names := make([]string, 0, len(gridParams))
	ranges := make([][]float64, 0, len(gridParams))
	for _, spec := range gridParams {
		name, values, err := parseGrid(spec)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}

	ctx, cancel := signalContext()
	defer cancel()

	logger := newLogger()
	defer logger.Sync()

	g, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}
	fmt.Println(viz.Title.Render(fmt.Sprintf("tuning %s on %s", cfg.Mode, metricName)))
	best, all, err := g.WithWorkers(workers).WithLogger(logger).Search(ctx, cfg, nil, metricName)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WEIGHTS\tVALUE\tERROR")
	for _, c := range all {
		errText := ""
		if c.Err != nil {
			errText = c.Err.Error()
		}
		fmt.Fprintf(w, "%v\t%.6g\t%s\n", c.Weights, c.Value, errText)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}

	fmt.Printf("\nbest: %s  %s\n", viz.StatusOK.Render(fmt.Sprintf("%v", best.Weights)), viz.Metric(metricName, best.Value))
	return nil
}

// parseGrid reads "name=v1,v2,...".
func parseGrid(spec string) (string, []float64, error) {
	name, list, ok := strings.Cut(spec, "=")
	if !ok || name == "" || list == "" {
		return "", nil, fmt.Errorf("bad grid %q, want name=v1,v2", spec)
	}
	var values []float64
	for _, s := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return "", nil, fmt.Errorf("bad grid %q: %w", spec, err)
		}
		values = append(values, v)
	}
	return name, values, nil
}
