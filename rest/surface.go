// Copyright 2026 The Warden Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rest

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/warden"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/net/netutil"
)

// DefaultAddr is where the control surface listens by default.
const DefaultAddr = "127.0.0.1:17165"

const shutdownGrace = 5 * time.Second

// Server is the HTTP control surface.  It implements
// warden.ControlSurface, so the registry brings it up when the engine
// starts.  An address of the form unix:/path listens on a socket.
type Server struct {
	addr     string
	maxConns int
	user     string
	hash     []byte
	handler  *Handler
	srv      *http.Server
	ln       net.Listener
	logger   *log.Logger
	lock     sync.Mutex
}

// NewServer returns a server for reg.  It does not listen until Start.
func NewServer(reg *warden.Registry, addr string) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{
		addr:    addr,
		handler: NewHandler(reg),
		logger:  reg.Logger(),
	}
}

// SetAuth requires HTTP basic authentication.  hash is a bcrypt hash of
// the password.
func (s *Server) SetAuth(user string, hash []byte) {
	s.lock.Lock()
	s.user = user
	s.hash = append([]byte{}, hash...)
	s.lock.Unlock()
}

// SetHistory makes the history endpoint read from src.
func (s *Server) SetHistory(src HistorySource) {
	s.handler.SetHistory(src)
}

// SetMaxConns limits simultaneous connections.  Long polls hold a
// connection, so the limit should leave room for them.
func (s *Server) SetMaxConns(n int) {
	s.lock.Lock()
	s.maxConns = n
	s.lock.Unlock()
}

func (s *Server) authorized(r *http.Request) bool {
	s.lock.Lock()
	user, hash := s.user, s.hash
	s.lock.Unlock()
	if len(hash) == 0 {
		return true
	}
	u, p, ok := r.BasicAuth()
	if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(p)) == nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="warden"`)
		(&Error{Code: http.StatusUnauthorized, Message: "Unauthorized"}).write(w)
		return
	}
	s.handler.ServeHTTP(w, r)
}

func listen(addr string) (net.Listener, error) {
	if path, ok := strings.CutPrefix(addr, "unix:"); ok {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return net.Listen("unix", path)
	}
	return net.Listen("tcp", addr)
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.srv != nil {
		return warden.ErrRunning
	}
	ln, err := listen(s.addr)
	if err != nil {
		return err
	}
	if s.maxConns > 0 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          s.logger,
	}
	srv := s.srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Control surface failed: %v", err)
		}
	}()
	s.logger.Printf("Control surface listening on %s", ln.Addr())
	return nil
}

// Addr returns the address being served, which differs from the
// configured one when that asked for port 0.
func (s *Server) Addr() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.ln == nil {
		return s.addr
	}
	a := s.ln.Addr()
	if a.Network() == "unix" {
		return "unix:" + a.String()
	}
	return a.String()
}

// Close stops serving, giving requests in flight a short grace period.
func (s *Server) Close() error {
	s.lock.Lock()
	srv := s.srv
	s.srv = nil
	s.lock.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return srv.Close()
	}
	return nil
}
