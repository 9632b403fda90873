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
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskhive/go-taskhive/internal/testlog"
	"github.com/taskhive/go-taskhive/log"
)

func echoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hello from the hive")
	})
}

func TestVirtualHostHandler(t *testing.T) {
	t.Parallel()

	handler := newVHostHandler([]string{"hive.example"}, echoHandler())
	ts := httptest.NewServer(handler)
	defer ts.Close()

	tests := []struct {
		host   string
		status int
	}{
		{"", http.StatusOK},                  // no Host header, non-browser client
		{"127.0.0.1:8545", http.StatusOK},    // IP addresses always pass
		{"hive.example", http.StatusOK},      // allowed hostname
		{"hive.example:8080", http.StatusOK}, // port is stripped before matching
		{"evil.example", http.StatusForbidden},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
		require.NoError(t, err)
		if tt.host != "" {
			req.Host = tt.host
		}
		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tt.status, resp.StatusCode, "host %q", tt.host)
	}

	// Wildcard accepts any hostname.
	wild := httptest.NewServer(newVHostHandler([]string{"*"}, echoHandler()))
	defer wild.Close()
	req, err := http.NewRequest(http.MethodGet, wild.URL, nil)
	require.NoError(t, err)
	req.Host = "anything.example"
	resp, err := wild.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGzipHandler(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(newGzipHandler(echoHandler()))
	defer ts.Close()

	// Compressed when the client accepts it.
	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := ts.Client().Transport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	gz, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "hello from the hive", string(body))

	// Plain when the client does not.
	req, err = http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	resp2, err := ts.Client().Transport.RoundTrip(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Content-Encoding"))

	// Upgrade requests bypass compression, the raw connection is needed.
	upgrade := httptest.NewRequest(http.MethodGet, "/", nil)
	upgrade.Header.Set("Accept-Encoding", "gzip")
	upgrade.Header.Set("Upgrade", "websocket")
	upgrade.Header.Set("Connection", "upgrade")
	rec := httptest.NewRecorder()
	newGzipHandler(echoHandler()).ServeHTTP(rec, upgrade)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "hello from the hive", rec.Body.String())
}

func TestCorsHandler(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(NewHTTPHandlerStack(echoHandler(), []string{"https://lab.example"}, nil))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodOptions, ts.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://lab.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://lab.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodOptions, ts.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://other.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCheckTimeouts(t *testing.T) {
	t.Parallel()

	timeouts := HTTPTimeouts{
		ReadTimeout:       time.Millisecond,
		ReadHeaderTimeout: time.Millisecond,
		IdleTimeout:       time.Millisecond,
	}
	CheckTimeouts(testlog.Logger(t, log.LvlInfo), &timeouts)
	assert.Equal(t, DefaultHTTPTimeouts.ReadTimeout, timeouts.ReadTimeout)
	assert.Equal(t, DefaultHTTPTimeouts.ReadHeaderTimeout, timeouts.ReadHeaderTimeout)
	assert.Equal(t, DefaultHTTPTimeouts.IdleTimeout, timeouts.IdleTimeout)
	// A zero write timeout is intentional and preserved.
	assert.Zero(t, timeouts.WriteTimeout)
}

func TestHTTPServerStartStop(t *testing.T) {
	t.Parallel()

	srv := newHTTPServer(testlog.Logger(t, log.LvlInfo), DefaultHTTPTimeouts)
	require.NoError(t, srv.setListenAddr("127.0.0.1", 0))
	srv.enable(echoHandler(), nil, []string{"*"})
	require.NoError(t, srv.start())

	addr := srv.listenAddr()
	require.NotEmpty(t, addr)
	require.True(t, strings.HasPrefix(addr, "127.0.0.1:"))

	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello from the hive", string(body))

	// The listen address is taken while running.
	require.Error(t, srv.setListenAddr("127.0.0.1", 0))

	srv.stop()
	assert.Empty(t, srv.listenAddr())
	_, err = http.Get("http://" + addr + "/")
	assert.Error(t, err)
}
