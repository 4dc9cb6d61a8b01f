// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command trajopt solves legged trajectory scenarios and prints collocation
// bases.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/curioloop/trajopt/legged"
	"github.com/curioloop/trajopt/poly"
	"github.com/curioloop/trajopt/trajectory"
)

const (
	flagScenario = "scenario"
	flagSolver   = "solver"
	flagDegree   = "degree"
	flagScheme   = "scheme"
	flagDebug    = "debug"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "trajopt",
		Usage: "pseudospectral trajectory optimization",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "solve",
				Usage:     "optimize the trajectory of a legged scenario",
				UsageText: fmt.Sprintf("trajopt solve --%s <FILE> [--%s slsqp|nlopt]", flagScenario, flagSolver),
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     flagScenario,
						Aliases:  []string{"s"},
						Required: true,
						Usage:    "load the scenario from `FILE`",
					},
					&cli.StringFlag{
						Name:  flagSolver,
						Usage: "override the solver of the scenario",
					},
				},
				Action: SolveAction,
			},
			{
				Name:  "basis",
				Usage: "print the Lagrange collocation basis",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagDegree,
						Value: 3,
						Usage: "number of collocation points",
					},
					&cli.StringFlag{
						Name:  flagScheme,
						Value: poly.Radau.String(),
						Usage: "radau or legendre",
					},
				},
				Action: BasisAction,
			},
		},
	}
}

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// SolveAction loads a scenario, solves it and prints the knot states.
func SolveAction(c *cli.Context) error {
	logger, err := newLogger(c.Bool(flagDebug))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sc, err := LoadScenario(c.Path(flagScenario))
	if err != nil {
		return err
	}
	if name := c.String(flagSolver); name != "" {
		sc.Solver.Name = name
	}
	opt, err := sc.Build(logger)
	if err != nil {
		return errors.Wrap(err, "build scenario")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()
	sol, err := opt.Optimize(ctx)
	if sol != nil {
		printSolution(c.App.Writer, sol)
	}
	return err
}

func printSolution(w io.Writer, sol *trajectory.Solution) {
	fmt.Fprintf(w, "status: %s (success=%t, iterations=%d, cost=%.6g)\n",
		sol.NLP.Status, sol.NLP.Success, sol.NLP.Iterations, sol.NLP.F)
	fmt.Fprintf(w, "%8s %10s %10s %10s\n", "t", "x", "y", "z")
	for k, x := range sol.States {
		com := legged.CoM(x)
		fmt.Fprintf(w, "%8.4f %10.5f %10.5f %10.5f\n", sol.Times[k], com[0], com[1], com[2])
	}
}

// BasisAction prints the integral, derivative and continuity coefficients of
// a collocation basis.
func BasisAction(c *cli.Context) error {
	scheme, err := poly.ParseScheme(c.String(flagScheme))
	if err != nil {
		return err
	}
	bs, err := poly.Build(c.Int(flagDegree), scheme)
	if err != nil {
		return err
	}
	printBasis(c.App.Writer, bs)
	return nil
}

func printBasis(w io.Writer, bs *poly.Basis) {
	row := func(vals []float64) string {
		s := make([]string, len(vals))
		for i, v := range vals {
			s[i] = fmt.Sprintf("%12.8f", v)
		}
		return strings.Join(s, " ")
	}
	n := bs.Len()
	b, d := make([]float64, n), make([]float64, n)
	for j := range n {
		b[j], d[j] = bs.BAt(j), bs.DAt(j)
	}
	fmt.Fprintf(w, "scheme %s, degree %d\n", bs.Scheme(), bs.Degree())
	fmt.Fprintf(w, "tau: %s\n", row(bs.Roots()))
	fmt.Fprintf(w, "B:   %s\n", row(b))
	fmt.Fprintf(w, "D:   %s\n", row(d))
	fmt.Fprintln(w, "C:")
	for j := range n {
		c := make([]float64, n)
		for r := range n {
			c[r] = bs.CAt(j, r)
		}
		fmt.Fprintf(w, "     %s\n", row(c))
	}
}
