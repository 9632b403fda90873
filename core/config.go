// Copyright 2025 The go-taskhive Authors
// This file is part of the go-taskhive library.
//
// The go-taskhive library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-taskhive library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-taskhive library. If not, see <http://www.gnu.org/licenses/>.

package core

import (
	"time"

	"github.com/taskhive/go-taskhive/log"
)

// Config are the configuration parameters of the lifecycle engine.
type Config struct {
	// PeriodicTaskInterval is the cadence of the timeout reaper. Every tick
	// scans the running tasks of all queues for missed heartbeats and
	// exceeded execution caps.
	PeriodicTaskInterval time.Duration

	// ReaperLimit bounds the number of running tasks examined per queue per
	// sweep, so a backlog cannot starve the tick cadence.
	ReaperLimit int

	// ReaperConcurrency bounds the number of queues swept in parallel.
	ReaperConcurrency int

	// EventBacklog is the per-subscriber buffer of committed journal events.
	// A subscriber whose backlog overflows is dropped and must resubscribe
	// with a replay to recover.
	EventBacklog int

	// AllowUnsafe enables the raw collection query and update operations.
	// Never enable it on deployments exposed to untrusted clients.
	AllowUnsafe bool

	// Logger is a custom logger for engine output. Defaults to the global
	// root logger.
	Logger log.Logger `toml:",omitempty"`
}

// DefaultConfig contains the default configurations of the lifecycle engine.
var DefaultConfig = Config{
	PeriodicTaskInterval: 30 * time.Second,
	ReaperLimit:          256,
	ReaperConcurrency:    4,
	EventBacklog:         512,
}

// sanitize checks the provided user configurations and changes anything that
// is unreasonable or unworkable.
func (config Config) sanitize() Config {
	conf := config
	if conf.Logger == nil {
		conf.Logger = log.Root()
	}
	if conf.PeriodicTaskInterval <= 0 {
		conf.Logger.Warn("Sanitizing invalid reaper interval", "provided", conf.PeriodicTaskInterval, "updated", DefaultConfig.PeriodicTaskInterval)
		conf.PeriodicTaskInterval = DefaultConfig.PeriodicTaskInterval
	}
	if conf.ReaperLimit <= 0 {
		conf.Logger.Warn("Sanitizing invalid reaper limit", "provided", conf.ReaperLimit, "updated", DefaultConfig.ReaperLimit)
		conf.ReaperLimit = DefaultConfig.ReaperLimit
	}
	if conf.ReaperConcurrency <= 0 {
		conf.Logger.Warn("Sanitizing invalid reaper concurrency", "provided", conf.ReaperConcurrency, "updated", DefaultConfig.ReaperConcurrency)
		conf.ReaperConcurrency = DefaultConfig.ReaperConcurrency
	}
	if conf.EventBacklog <= 0 {
		conf.Logger.Warn("Sanitizing invalid event backlog", "provided", conf.EventBacklog, "updated", DefaultConfig.EventBacklog)
		conf.EventBacklog = DefaultConfig.EventBacklog
	}
	return conf
}
