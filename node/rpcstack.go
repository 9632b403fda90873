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
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/cors"
	"github.com/taskhive/go-taskhive/log"
)

// HTTPTimeouts represents the server-side deadlines of the API transport.
type HTTPTimeouts struct {
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration

	// WriteTimeout must stay zero while event streams are served; a
	// fixed write deadline would sever every stream at that age.
	WriteTimeout time.Duration

	IdleTimeout time.Duration
}

// DefaultHTTPTimeouts is used when the operator configures none.
var DefaultHTTPTimeouts = HTTPTimeouts{
	ReadTimeout:       30 * time.Second,
	ReadHeaderTimeout: 30 * time.Second,
	IdleTimeout:       120 * time.Second,
}

// CheckTimeouts sanitizes user-provided timeout values, warning about and
// replacing ones too small to be meant seriously.
func CheckTimeouts(logger log.Logger, timeouts *HTTPTimeouts) {
	if timeouts.ReadTimeout < time.Second {
		logger.Warn("Sanitizing invalid HTTP read timeout", "provided", timeouts.ReadTimeout, "updated", DefaultHTTPTimeouts.ReadTimeout)
		timeouts.ReadTimeout = DefaultHTTPTimeouts.ReadTimeout
	}
	if timeouts.ReadHeaderTimeout < time.Second {
		logger.Warn("Sanitizing invalid HTTP read header timeout", "provided", timeouts.ReadHeaderTimeout, "updated", DefaultHTTPTimeouts.ReadHeaderTimeout)
		timeouts.ReadHeaderTimeout = DefaultHTTPTimeouts.ReadHeaderTimeout
	}
	if timeouts.IdleTimeout < time.Second {
		logger.Warn("Sanitizing invalid HTTP idle timeout", "provided", timeouts.IdleTimeout, "updated", DefaultHTTPTimeouts.IdleTimeout)
		timeouts.IdleTimeout = DefaultHTTPTimeouts.IdleTimeout
	}
}

// httpServer owns the listener and the middleware chain in front of the API
// handler.
type httpServer struct {
	log      log.Logger
	timeouts HTTPTimeouts

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	handler  http.Handler

	host string
	port int
}

func newHTTPServer(logger log.Logger, timeouts HTTPTimeouts) *httpServer {
	h := &httpServer{log: logger, timeouts: timeouts}
	CheckTimeouts(logger, &h.timeouts)
	return h
}

// setListenAddr configures the listening address of the server. It can only
// be called before start.
func (h *httpServer) setListenAddr(host string, port int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listener != nil {
		return fmt.Errorf("HTTP server already running on %s", h.listener.Addr())
	}
	h.host, h.port = host, port
	return nil
}

// enable installs the API handler wrapped with the transport middleware.
func (h *httpServer) enable(apiHandler http.Handler, cors, vhosts []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = NewHTTPHandlerStack(apiHandler, cors, vhosts)
}

// start opens the listener and begins serving.
func (h *httpServer) start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.handler == nil {
		return fmt.Errorf("HTTP server has no handler installed")
	}
	if h.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", net.JoinHostPort(h.host, fmt.Sprintf("%d", h.port)))
	if err != nil {
		return err
	}
	h.listener = listener
	h.server = &http.Server{
		Handler:           h.handler,
		ReadTimeout:       h.timeouts.ReadTimeout,
		ReadHeaderTimeout: h.timeouts.ReadHeaderTimeout,
		WriteTimeout:      h.timeouts.WriteTimeout,
		IdleTimeout:       h.timeouts.IdleTimeout,
	}
	go h.server.Serve(listener)

	h.log.Info("HTTP endpoint opened", "url", fmt.Sprintf("http://%v/", listener.Addr()))
	return nil
}

// stop drains in-flight requests and closes the listener. Event streams are
// expected to have ended already, shutting the engine down first takes care
// of that.
func (h *httpServer) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.server == nil {
		return
	}
	url := fmt.Sprintf("http://%v/", h.listener.Addr())
	h.server.Shutdown(context.Background())
	h.listener = nil
	h.server = nil
	h.log.Info("HTTP endpoint closed", "url", url)
}

// listenAddr returns the actual bound address, useful when port 0 asked the
// kernel to pick one.
func (h *httpServer) listenAddr() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// NewHTTPHandlerStack wraps a handler with CORS, virtual-host checking and
// response compression, in that order from the outside in.
func NewHTTPHandlerStack(srv http.Handler, cors, vhosts []string) http.Handler {
	handler := newCorsHandler(srv, cors)
	handler = newVHostHandler(vhosts, handler)
	return newGzipHandler(handler)
}

func newCorsHandler(srv http.Handler, allowedOrigins []string) http.Handler {
	// Disable CORS support if the operator did not configure any origin.
	if len(allowedOrigins) == 0 {
		return srv
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		MaxAge:         600,
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(srv)
}

// virtualHostHandler validates the Host header of incoming requests.
// Virtual hosts guard against DNS rebinding attacks, where a random domain
// name points at the service address without tripping CORS: by verifying
// the targeted host the server only answers destinations the operator has
// defined.
type virtualHostHandler struct {
	vhosts map[string]struct{}
	next   http.Handler
}

func newVHostHandler(vhosts []string, next http.Handler) http.Handler {
	vhostMap := make(map[string]struct{})
	for _, allowedHost := range vhosts {
		vhostMap[strings.ToLower(allowedHost)] = struct{}{}
	}
	return &virtualHostHandler{vhostMap, next}
}

func (h *virtualHostHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// If r.Host is not set, we can continue serving since a browser
	// would set the Host header.
	if r.Host == "" {
		h.next.ServeHTTP(w, r)
		return
	}
	host, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		// Either invalid (too many colons) or no port specified.
		host = r.Host
	}
	if ipAddr := net.ParseIP(host); ipAddr != nil {
		// It's an IP address, we can serve that.
		h.next.ServeHTTP(w, r)
		return
	}
	// Not an IP address, but a hostname. Need to validate.
	if _, exist := h.vhosts["*"]; exist {
		h.next.ServeHTTP(w, r)
		return
	}
	if _, exist := h.vhosts[host]; exist {
		h.next.ServeHTTP(w, r)
		return
	}
	http.Error(w, "invalid host specified", http.StatusForbidden)
}

var gzPool = sync.Pool{
	New: func() interface{} {
		return gzip.NewWriter(io.Discard)
	},
}

type gzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w *gzipResponseWriter) WriteHeader(status int) {
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(status)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

// Flush pushes buffered compressed data out; event streams rely on frames
// leaving the server as they are written.
func (w *gzipResponseWriter) Flush() {
	if gz, ok := w.Writer.(*gzip.Writer); ok {
		gz.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func newGzipHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Protocol upgrades need the raw connection; anything hijacked
		// must bypass compression.
		if isWebsocket(r) || !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Encoding", "gzip")

		gz := gzPool.Get().(*gzip.Writer)
		defer gzPool.Put(gz)

		gz.Reset(w)
		defer gz.Close()

		next.ServeHTTP(&gzipResponseWriter{ResponseWriter: w, Writer: gz}, r)
	})
}

// isWebsocket checks the header of an http request for a websocket upgrade
// request.
func isWebsocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}
