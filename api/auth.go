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

package api

import (
	"context"
	"crypto/sha256"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/taskhive/go-taskhive/core"
	"github.com/taskhive/go-taskhive/core/types"
	"github.com/taskhive/go-taskhive/event"
	"github.com/taskhive/go-taskhive/log"
	"github.com/taskhive/go-taskhive/metrics"
)

// authCacheEntries bounds the verified-credential cache. Every entry saves
// one scrypt derivation per request, which dominates request latency for
// small operations.
const authCacheEntries = 1024

var (
	authHitMeter  = metrics.NewRegisteredMeter("hive/api/auth/hits", nil)
	authMissMeter = metrics.NewRegisteredMeter("hive/api/auth/misses", nil)
)

// queueKey is the context key carrying the authenticated queue record.
type queueKey struct{}

// authQueue returns the queue record the request authenticated as. Only
// handlers mounted behind the auth middleware may call it.
func authQueue(ctx context.Context) *types.Queue {
	return ctx.Value(queueKey{}).(*types.Queue)
}

// authenticator verifies HTTP Basic credentials against the queue store,
// memoizing successful verifications so repeated requests skip the key
// derivation. Entries are evicted when their queue is updated or deleted.
type authenticator struct {
	engine *core.Engine
	cache  *lru.Cache // H(name|password) -> queue ID
	log    log.Logger

	changes chan core.QueueChange
	sub     event.Subscription
	quit    chan struct{}
	wg      sync.WaitGroup
}

func newAuthenticator(engine *core.Engine, logger log.Logger) *authenticator {
	cache, _ := lru.New(authCacheEntries)
	a := &authenticator{
		engine:  engine,
		cache:   cache,
		log:     logger,
		changes: make(chan core.QueueChange, 16),
		quit:    make(chan struct{}),
	}
	a.sub = engine.SubscribeQueueChanges(a.changes)

	a.wg.Add(1)
	go a.invalidationLoop()
	return a
}

func (a *authenticator) close() {
	a.sub.Unsubscribe()
	close(a.quit)
	a.wg.Wait()
}

// invalidationLoop evicts cached credentials of queues that changed. A
// rename or password change kills the stale entries; deletion as well.
func (a *authenticator) invalidationLoop() {
	defer a.wg.Done()
	for {
		select {
		case change := <-a.changes:
			if change.Kind == core.QueueCreated {
				continue
			}
			a.evictQueue(change.QueueID)
		case <-a.sub.Err():
			return
		case <-a.quit:
			return
		}
	}
}

// evictQueue removes every cached credential resolving to the given queue.
// The cache is small, a full key sweep is fine.
func (a *authenticator) evictQueue(queueID string) {
	for _, key := range a.cache.Keys() {
		if id, ok := a.cache.Peek(key); ok && id.(string) == queueID {
			a.cache.Remove(key)
		}
	}
}

func credentialKey(name, password string) [32]byte {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(password))
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

// authenticate resolves Basic credentials to a queue record. Cache hits
// reread the record from the store, so a racing update is reflected in the
// request even when the eviction has not landed yet.
func (a *authenticator) authenticate(name, password string) (*types.Queue, error) {
	key := credentialKey(name, password)
	if id, ok := a.cache.Get(key); ok {
		queue, err := a.engine.Queue(id.(string))
		if err == nil {
			authHitMeter.Mark(1)
			return queue, nil
		}
		a.cache.Remove(key)
	}
	authMissMeter.Mark(1)

	queue, err := a.engine.AuthenticateQueue(name, password)
	if err != nil {
		return nil, err
	}
	a.cache.Add(key, queue.ID)
	return queue, nil
}

// middleware guards a subtree with HTTP Basic authentication and injects
// the resolved queue into the request context.
func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, password, ok := r.BasicAuth()
		if !ok {
			writeAuthRequired(w)
			return
		}
		queue, err := a.authenticate(name, password)
		if err != nil {
			// Not-found and bad-password collapse into one answer, a
			// probe must not learn which queue names exist.
			if core.IsNotFound(err) {
				err = core.ErrInvalidCredentials
			}
			a.writeAuthError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), queueKey{}, queue)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeAuthRequired(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Basic")
	writeJSON(w, http.StatusUnauthorized, &errorResponse{Detail: "Invalid credentials"})
}

func (a *authenticator) writeAuthError(w http.ResponseWriter, err error) {
	if statusFor(err) == http.StatusUnauthorized {
		writeAuthRequired(w)
		return
	}
	// Store trouble during verification is still a 500.
	a.log.Error("Credential verification failed", "err", err)
	writeJSON(w, statusFor(err), &errorResponse{Detail: "authentication failed"})
}
