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

package node

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"

	"github.com/taskhive/go-taskhive/log"
)

const (
	// DefaultHTTPHost matches the original service's bind-everywhere
	// default; workers usually live on other machines.
	DefaultHTTPHost = "0.0.0.0"

	// DefaultHTTPPort is the default API port.
	DefaultHTTPPort = 8080

	// storeDirName is the directory under the datadir holding the task
	// store.
	storeDirName = "hive"
)

// Config covers the container around the lifecycle engine: where the store
// lives and how the HTTP interface is exposed.
type Config struct {
	// Name is the instance name, used in logs and the version string.
	Name string `toml:"-"`

	// DataDir is the root directory of the store. An empty value keeps
	// everything in memory, which is handy for tests and throwaway runs.
	DataDir string

	// DBEngine selects the key-value store backend ("leveldb" or
	// "pebble"). Empty means leveldb when a datadir is set.
	DBEngine string `toml:",omitempty"`

	// DatabaseCache is the memory budget of the store cache, in MiB.
	DatabaseCache int `toml:",omitempty"`

	// DatabaseHandles caps the file descriptors the store may hold open.
	DatabaseHandles int `toml:"-"`

	// HTTPHost is the interface the API server binds.
	HTTPHost string

	// HTTPPort is the TCP port of the API server.
	HTTPPort int

	// HTTPCors lists the origins granted cross-origin access, empty
	// disables CORS handling entirely.
	HTTPCors []string `toml:",omitempty"`

	// HTTPVirtualHosts lists the hostnames the server answers for, a
	// guard against DNS rebinding. "*" accepts everything.
	HTTPVirtualHosts []string `toml:",omitempty"`

	// WSOrigins lists browser origins allowed to upgrade the event
	// stream to a websocket.
	WSOrigins []string `toml:",omitempty"`

	// HTTPTimeouts configures the server-side request deadlines.
	HTTPTimeouts HTTPTimeouts

	// Logger is a custom logger for the container. Defaults to the root
	// logger.
	Logger log.Logger `toml:"-"`
}

// DefaultConfig carries the settings of a locally reachable instance.
var DefaultConfig = Config{
	Name:             "hived",
	DataDir:          DefaultDataDir(),
	DatabaseCache:    128,
	DatabaseHandles:  512,
	HTTPHost:         DefaultHTTPHost,
	HTTPPort:         DefaultHTTPPort,
	HTTPVirtualHosts: []string{"localhost"},
	HTTPTimeouts:     DefaultHTTPTimeouts,
}

// DefaultDataDir is the default data directory to use for the store and
// other persistence requirements.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := homeDir()
	if home != "" {
		switch runtime.GOOS {
		case "darwin":
			return filepath.Join(home, "Library", "Taskhive")
		case "windows":
			return filepath.Join(home, "AppData", "Roaming", "Taskhive")
		default:
			return filepath.Join(home, ".taskhive")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// storeDir returns the directory holding the key-value store, empty when
// running memory-only.
func (c *Config) storeDir() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, storeDirName)
}

func (c *Config) logger() log.Logger {
	if c.Logger == nil {
		return log.Root()
	}
	return c.Logger
}
