// Go port of Coda Hale's Metrics library
//
// <https://github.com/rcrowley/go-metrics>
//
// Coda Hale's original work: <https://github.com/codahale/metrics>

// Package metrics provides general system and logic metrics for taskhive.
package metrics

import (
	"os"
	"strconv"
	"strings"

	"github.com/taskhive/go-taskhive/log"
)

// Enabled is checked by the constructor functions for all of the
// standard metrics. If it is false, the metric returned is a stub.
//
// This global kill-switch helps quantify the observer effect and makes
// for less cluttered pprof profiles.
var Enabled = false

// enablerFlags is the CLI flag names to use to enable metrics collections.
var enablerFlags = []string{"metrics"}

// enablerEnvVars is the env var names to use to enable metrics collections.
var enablerEnvVars = []string{"TASKHIVE_METRICS"}

// init enables or disables the metrics system. Since we need this to run before
// any other code gets to create meters and timers, we'll actually do an ugly hack
// and peek into the command line args for the metrics flag.
func init() {
	for _, arg := range os.Args {
		flag := strings.TrimLeft(arg, "-")

		for _, enabler := range enablerFlags {
			if !Enabled && flag == enabler {
				log.Info("Enabling metrics collection")
				Enabled = true
			}
		}
	}
	for _, enabler := range enablerEnvVars {
		if val := os.Getenv(enabler); val != "" {
			if enable, _ := strconv.ParseBool(val); enable && !Enabled {
				log.Info("Enabling metrics collection")
				Enabled = true
			}
		}
	}
}

// emptySnapshot is a no-op metric snapshot handed out by the nil metric
// variants so that callers never need to nil-check.
type emptySnapshot struct{}

func (*emptySnapshot) Count() int64                       { return 0 }
func (*emptySnapshot) Max() int64                         { return 0 }
func (*emptySnapshot) Mean() float64                      { return 0.0 }
func (*emptySnapshot) Min() int64                         { return 0 }
func (*emptySnapshot) Percentile(p float64) float64       { return 0.0 }
func (*emptySnapshot) Percentiles(ps []float64) []float64 { return make([]float64, len(ps)) }
func (*emptySnapshot) Rate() float64                      { return 0.0 }
func (*emptySnapshot) Rate1() float64                     { return 0.0 }
func (*emptySnapshot) Rate5() float64                     { return 0.0 }
func (*emptySnapshot) Rate15() float64                    { return 0.0 }
func (*emptySnapshot) RateMean() float64                  { return 0.0 }
func (*emptySnapshot) Size() int                          { return 0 }
func (*emptySnapshot) StdDev() float64                    { return 0.0 }
func (*emptySnapshot) Sum() int64                         { return 0 }
func (*emptySnapshot) Value() int64                       { return 0 }
func (*emptySnapshot) Variance() float64                  { return 0.0 }
