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

// Package utils contains internal helper functions for go-taskhive commands.
package utils

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/taskhive/go-taskhive/core"
	"github.com/taskhive/go-taskhive/internal/flags"
	"github.com/taskhive/go-taskhive/log"
	"github.com/taskhive/go-taskhive/node"
)

var (
	// General settings
	DataDirFlag = &flags.DirectoryFlag{
		Name:  "datadir",
		Usage: "Data directory for the task store",
		Value: flags.DirectoryString(node.DefaultDataDir()),
	}
	DBEngineFlag = &cli.StringFlag{
		Name:  "db.engine",
		Usage: "Backing database implementation to use ('leveldb' or 'pebble')",
	}
	DatabaseCacheFlag = &cli.IntFlag{
		Name:  "db.cache",
		Usage: "Megabytes of memory allocated to database caching",
		Value: node.DefaultConfig.DatabaseCache,
	}

	// API settings
	HTTPListenAddrFlag = &cli.StringFlag{
		Name:    "api.addr",
		Usage:   "HTTP API server listening interface",
		Value:   node.DefaultHTTPHost,
		EnvVars: []string{"API_HOST"},
	}
	HTTPPortFlag = &cli.IntFlag{
		Name:    "api.port",
		Usage:   "HTTP API server listening port",
		Value:   node.DefaultHTTPPort,
		EnvVars: []string{"API_PORT"},
	}
	HTTPCORSDomainFlag = &cli.StringFlag{
		Name:  "api.corsdomain",
		Usage: "Comma separated list of domains from which to accept cross origin requests (browser enforced)",
		Value: "",
	}
	HTTPVirtualHostsFlag = &cli.StringFlag{
		Name:  "api.vhosts",
		Usage: "Comma separated list of virtual hostnames from which to accept requests (server enforced). Accepts '*' wildcard.",
		Value: strings.Join(node.DefaultConfig.HTTPVirtualHosts, ","),
	}
	WSAllowedOriginsFlag = &cli.StringFlag{
		Name:  "ws.origins",
		Usage: "Origins from which to accept websocket event stream requests",
		Value: "",
	}

	// Engine settings
	ReaperIntervalFlag = &cli.DurationFlag{
		Name:    "reaper.interval",
		Usage:   "Cadence of the task timeout sweep",
		Value:   core.DefaultConfig.PeriodicTaskInterval,
		EnvVars: []string{"PERIODIC_TASK_INTERVAL"},
	}
	ReaperLimitFlag = &cli.IntFlag{
		Name:  "reaper.limit",
		Usage: "Maximum running tasks examined per queue per sweep",
		Value: core.DefaultConfig.ReaperLimit,
	}
	ReaperConcurrencyFlag = &cli.IntFlag{
		Name:  "reaper.concurrency",
		Usage: "Number of queues swept in parallel",
		Value: core.DefaultConfig.ReaperConcurrency,
	}
	EventBacklogFlag = &cli.IntFlag{
		Name:  "events.backlog",
		Usage: "Per-subscriber buffer of journal events before the subscriber is dropped",
		Value: core.DefaultConfig.EventBacklog,
	}
	UnsafeFlag = &cli.BoolFlag{
		Name:    "unsafe",
		Usage:   "Enable the raw collection query and update endpoints (dangerous on exposed deployments)",
		EnvVars: []string{"ALLOW_UNSAFE_BEHAVIOR"},
	}
)

// SetNodeConfig applies node-related command line flags to the config.
func SetNodeConfig(ctx *cli.Context, cfg *node.Config) {
	setHTTP(ctx, cfg)
	setDataDir(ctx, cfg)
}

// setHTTP configures the API server interface from the command line flags.
func setHTTP(ctx *cli.Context, cfg *node.Config) {
	if ctx.IsSet(HTTPListenAddrFlag.Name) {
		cfg.HTTPHost = ctx.String(HTTPListenAddrFlag.Name)
	}
	if ctx.IsSet(HTTPPortFlag.Name) {
		cfg.HTTPPort = ctx.Int(HTTPPortFlag.Name)
	}
	if ctx.IsSet(HTTPCORSDomainFlag.Name) {
		cfg.HTTPCors = SplitAndTrim(ctx.String(HTTPCORSDomainFlag.Name))
	}
	if ctx.IsSet(HTTPVirtualHostsFlag.Name) {
		cfg.HTTPVirtualHosts = SplitAndTrim(ctx.String(HTTPVirtualHostsFlag.Name))
	}
	if ctx.IsSet(WSAllowedOriginsFlag.Name) {
		cfg.WSOrigins = SplitAndTrim(ctx.String(WSAllowedOriginsFlag.Name))
	}
}

// setDataDir configures the store location and backend from the command
// line flags.
func setDataDir(ctx *cli.Context, cfg *node.Config) {
	if ctx.IsSet(DataDirFlag.Name) {
		cfg.DataDir = ctx.String(DataDirFlag.Name)
	}
	if ctx.IsSet(DBEngineFlag.Name) {
		dbEngine := ctx.String(DBEngineFlag.Name)
		if dbEngine != "leveldb" && dbEngine != "pebble" {
			Fatalf("Invalid choice for db.engine '%s', allowed 'leveldb' or 'pebble'", dbEngine)
		}
		log.Info(fmt.Sprintf("Using %s as db engine", dbEngine))
		cfg.DBEngine = dbEngine
	}
	if ctx.IsSet(DatabaseCacheFlag.Name) {
		cfg.DatabaseCache = ctx.Int(DatabaseCacheFlag.Name)
	}
}

// SetEngineConfig applies engine-related command line flags to the config.
func SetEngineConfig(ctx *cli.Context, cfg *core.Config) {
	if ctx.IsSet(ReaperIntervalFlag.Name) {
		cfg.PeriodicTaskInterval = ctx.Duration(ReaperIntervalFlag.Name)
	}
	if ctx.IsSet(ReaperLimitFlag.Name) {
		cfg.ReaperLimit = ctx.Int(ReaperLimitFlag.Name)
	}
	if ctx.IsSet(ReaperConcurrencyFlag.Name) {
		cfg.ReaperConcurrency = ctx.Int(ReaperConcurrencyFlag.Name)
	}
	if ctx.IsSet(EventBacklogFlag.Name) {
		cfg.EventBacklog = ctx.Int(EventBacklogFlag.Name)
	}
	if ctx.IsSet(UnsafeFlag.Name) {
		cfg.AllowUnsafe = ctx.Bool(UnsafeFlag.Name)
		if cfg.AllowUnsafe {
			log.Warn("Unsafe collection access enabled, do not expose this instance to untrusted clients")
		}
	}
}

// SplitAndTrim splits input separated by a comma
// and trims excessive white space from the substrings.
func SplitAndTrim(input string) (ret []string) {
	l := strings.Split(input, ",")
	for _, r := range l {
		if r = strings.TrimSpace(r); r != "" {
			ret = append(ret, r)
		}
	}
	return ret
}

// SplitTagsFlag parses a comma separated list of k=v metrics tags.
func SplitTagsFlag(tagsFlag string) map[string]string {
	tags := strings.Split(tagsFlag, ",")
	tagsMap := map[string]string{}

	for _, t := range tags {
		if t != "" {
			kv := strings.Split(t, "=")

			if len(kv) == 2 {
				tagsMap[kv[0]] = kv[1]
			}
		}
	}
	return tagsMap
}
