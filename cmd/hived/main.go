// Copyright 2025 The go-taskhive Authors
// This file is part of go-taskhive.
//
// go-taskhive is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-taskhive is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-taskhive. If not, see <http://www.gnu.org/licenses/>.

// hived is the task queue daemon: it hosts the lifecycle engine, its
// persistent store and the HTTP API workers talk to.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/taskhive/go-taskhive/cmd/utils"
	"github.com/taskhive/go-taskhive/internal/debug"
	"github.com/taskhive/go-taskhive/internal/flags"
)

const clientIdentifier = "hived" // Client identifier used in logs and version strings

var (
	// flags that configure the engine and its store
	nodeFlags = []cli.Flag{
		configFileFlag,
		utils.DataDirFlag,
		utils.DBEngineFlag,
		utils.DatabaseCacheFlag,
		utils.ReaperIntervalFlag,
		utils.ReaperLimitFlag,
		utils.ReaperConcurrencyFlag,
		utils.EventBacklogFlag,
		utils.UnsafeFlag,
	}
	// flags that configure the HTTP interface
	apiFlags = []cli.Flag{
		utils.HTTPListenAddrFlag,
		utils.HTTPPortFlag,
		utils.HTTPCORSDomainFlag,
		utils.HTTPVirtualHostsFlag,
		utils.WSAllowedOriginsFlag,
	}
)

var app = flags.NewApp("the go-taskhive command line interface")

func init() {
	app.Action = hived
	app.Commands = []*cli.Command{
		versionCommand,
		licenseCommand,
		dumpConfigCommand,
	}
	sort.Sort(cli.CommandsByName(app.Commands))

	app.Flags = flags.Merge(
		nodeFlags,
		apiFlags,
		utils.MetricsFlags,
		debug.Flags,
	)
	flags.AutoEnvVars(app.Flags, "TASKHIVE")

	app.Before = func(ctx *cli.Context) error {
		flags.MigrateGlobalFlags(ctx)
		if err := debug.Setup(ctx); err != nil {
			return err
		}
		flags.CheckEnvVars(ctx, app.Flags, "TASKHIVE")
		return nil
	}
	app.After = func(ctx *cli.Context) error {
		debug.Exit()
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// hived is the main entry point into the system if no special subcommand is
// run. It boots the task service and blocks until it is shut down.
func hived(ctx *cli.Context) error {
	if args := ctx.Args().Slice(); len(args) > 0 {
		return fmt.Errorf("invalid command: %q", args[0])
	}

	stack := makeFullNode(ctx)
	defer stack.Close()

	utils.SetupMetrics(ctx)
	utils.StartNode(stack)
	stack.Wait()
	return nil
}
