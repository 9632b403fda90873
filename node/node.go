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

// Package node assembles a runnable hive instance: the key-value store, the
// lifecycle engine on top of it and the HTTP interface in front, with one
// lifecycle tying the three together.
package node

import (
	"fmt"
	"sync"

	"github.com/taskhive/go-taskhive/api"
	"github.com/taskhive/go-taskhive/core"
	"github.com/taskhive/go-taskhive/core/rawdb"
	"github.com/taskhive/go-taskhive/log"
	"github.com/taskhive/go-taskhive/taskdb"
)

// Node is a container for a task hive instance.
type Node struct {
	config *Config
	log    log.Logger

	startStop sync.Mutex
	state     int
	stop      chan struct{}

	db     taskdb.Database
	engine *core.Engine
	api    *api.Server
	http   *httpServer
}

const (
	initializedState = iota
	runningState
	closedState
)

// New assembles an instance from its configuration. The store is opened and
// the engine constructed immediately; serving begins with Start.
func New(conf *Config, engineConf core.Config) (*Node, error) {
	confCopy := *conf
	conf = &confCopy
	if conf.Name == "" {
		conf.Name = DefaultConfig.Name
	}
	logger := conf.logger()

	db, err := rawdb.Open(rawdb.OpenOptions{
		Type:      conf.DBEngine,
		Directory: conf.storeDir(),
		Namespace: "hive/db/",
		Cache:     conf.DatabaseCache,
		Handles:   conf.DatabaseHandles,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}
	if conf.DataDir == "" {
		logger.Warn("Running with an in-memory store, state is lost on shutdown")
	}

	if engineConf.Logger == nil {
		engineConf.Logger = logger
	}
	engine := core.New(db, engineConf)

	apiSrv := api.NewServer(engine, api.Config{
		WSOrigins: conf.WSOrigins,
		Logger:    logger,
	})

	httpSrv := newHTTPServer(logger, conf.HTTPTimeouts)
	if err := httpSrv.setListenAddr(conf.HTTPHost, conf.HTTPPort); err != nil {
		apiSrv.Close()
		db.Close()
		return nil, err
	}
	httpSrv.enable(apiSrv.Handler(), conf.HTTPCors, conf.HTTPVirtualHosts)

	return &Node{
		config: conf,
		log:    logger,
		stop:   make(chan struct{}),
		db:     db,
		engine: engine,
		api:    apiSrv,
		http:   httpSrv,
	}, nil
}

// Start brings the engine up and opens the HTTP endpoint.
func (n *Node) Start() error {
	n.startStop.Lock()
	defer n.startStop.Unlock()

	switch n.state {
	case runningState:
		return ErrNodeRunning
	case closedState:
		return ErrNodeStopped
	}
	if err := n.engine.Start(); err != nil {
		return err
	}
	if err := n.http.start(); err != nil {
		n.engine.Stop()
		return err
	}
	n.state = runningState
	n.log.Info("Hive instance started", "name", n.config.Name, "datadir", n.config.DataDir)
	return nil
}

// Close tears the instance down: the engine stops first so event streams
// end cleanly, then the HTTP server drains, then the store closes.
func (n *Node) Close() error {
	n.startStop.Lock()
	defer n.startStop.Unlock()

	switch n.state {
	case closedState:
		return ErrNodeStopped
	case runningState:
		n.engine.Stop()
		n.http.stop()
	case initializedState:
		// Never started: no goroutines to stop, but the store is open.
	}
	n.api.Close()
	err := n.db.Close()
	n.state = closedState
	close(n.stop)
	n.log.Info("Hive instance stopped")
	return err
}

// Wait blocks until the instance is closed.
func (n *Node) Wait() {
	<-n.stop
}

// Engine returns the lifecycle engine of the instance.
func (n *Node) Engine() *core.Engine {
	return n.engine
}

// Database returns the backing store, mainly for inspection tooling.
func (n *Node) Database() taskdb.Database {
	return n.db
}

// HTTPEndpoint returns the address the API server is reachable on, empty
// before Start.
func (n *Node) HTTPEndpoint() string {
	if addr := n.http.listenAddr(); addr != "" {
		return "http://" + addr
	}
	return ""
}

// Config returns the configuration of the instance.
func (n *Node) Config() *Config {
	return n.config
}
