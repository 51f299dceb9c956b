// Command sdograph loads a model configuration, builds a small expression
// graph, analyzes it, and steps it forward with a forward-Euler loop,
// printing the resulting trajectory. The configured Butcher tableau is
// looked up and logged but not used for stepping. If analysis fails, the
// diagnostics report is printed instead.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"sdograph/internal/analyzer"
	"sdograph/internal/butcher"
	"sdograph/internal/eval"
	"sdograph/internal/graph"
	"sdograph/internal/sdoconfig"
	"sdograph/internal/symbol"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML configuration file (optional)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg := sdoconfig.Default()
	if *configPath != "" {
		loaded, err := sdoconfig.Load(*configPath)
		if err != nil {
			log.WithError(err).Fatal("failed to load configuration")
		}
		cfg = loaded
	}
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(lvl)
	}

	reg := prometheus.NewRegistry()

	b := graph.NewBuilder(log, reg)
	b.UseUniqueConstants(cfg.Graph.UniqueConstants)

	buildExampleModel(b)

	a := analyzer.New(analyzer.WithLogger(log), analyzer.WithMetrics(reg))
	if err := a.Analyze(b); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	tableau, err := butcher.Get(cfg.Graph.DefaultTableau)
	if err != nil {
		log.WithError(err).Fatal("unknown tableau")
	}
	log.WithField("tableau", tableau.Name).Info("simulation configured")

	runTrajectory(b, reg, log)
}

// buildExampleModel constructs a minimal one-state growth model:
//
//	x = INTEG(growth_rate * x, initial_x)
//
// rate and initial value are both constants, so the resulting trajectory is
// exponential growth, a deliberately small stand-in for whatever model a
// real ModelSource implementation would load.
func buildExampleModel(b *graph.Builder) {
	b.AddSymbol(symbol.Intern("INITIAL TIME"), b.Const(0))
	b.AddSymbol(symbol.Intern("FINAL TIME"), b.Const(10))
	b.AddSymbol(symbol.Intern("TIME STEP"), b.Const(0.5))

	x := symbol.Intern("x")
	xStub := b.NodeFor(x)

	rate := b.Const(0.1)
	rateTimesX := b.Node(graph.OpMult, rate, xStub)

	initVal := b.Const(1)
	integNode := b.Node(graph.OpInteg, rateTimesX, initVal)
	b.AddSymbol(x, integNode)
}

func runTrajectory(b *graph.Builder, reg *prometheus.Registry, log *logrus.Logger) {
	x, ok := b.LookupSymbolByName("x")
	if !ok {
		log.Fatal("model has no symbol named x")
	}
	initTime, _ := b.LookupSymbolByName("INITIAL TIME")
	finalTime, _ := b.LookupSymbolByName("FINAL TIME")
	timeStep, _ := b.LookupSymbolByName("TIME STEP")

	ev := eval.New(eval.WithMetrics(reg))

	t0 := initTime.Value
	tEnd := finalTime.Value
	dt := timeStep.Value

	integValues := map[*graph.Node]float64{}
	st := &eval.State{Time: t0, TimeStep: dt, InitialTime: t0, Initial: true, IntegValues: integValues}

	v0, err := ev.Evaluate(x, st)
	if err != nil {
		log.WithError(err).Fatal("initial evaluation failed")
	}
	integValues[x] = v0
	fmt.Printf("t=%.2f x=%.6f\n", t0, v0)

	st.Initial = false
	rate := x.Child1

	for t := t0 + dt; t <= tEnd+dt/2; t += dt {
		st.Time = t - dt
		k, err := ev.Evaluate(rate, st)
		if err != nil {
			log.WithError(err).Fatal("rate evaluation failed")
		}
		integValues[x] = integValues[x] + dt*k
		st.Time = t
		fmt.Printf("t=%.2f x=%.6f\n", t, integValues[x])
	}
}
