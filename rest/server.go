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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/warden"
	"github.com/gorilla/mux"
)

const maxLoadBody = 1 << 20

// Handler wraps a Registry, adding http.Handler functionality.
type Handler struct {
	reg  *warden.Registry
	r    *mux.Router
	hist HistorySource
}

// HistorySource supplies transitions beyond those a watch keeps in
// memory.
type HistorySource interface {
	Recent(ctx context.Context, watch string, n int) ([]warden.Transition, error)
}

// SetHistory makes the history endpoint read from src.
func (h *Handler) SetHistory(src HistorySource) {
	h.hist = src
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeText(w http.ResponseWriter, s string) {
	w.Header().Set("Content-Type", mimeText)
	io.WriteString(w, s)
}

func etag(n int64) string {
	return "\"" + strconv.FormatInt(n, 16) + "\""
}

// pollWait extracts the etag the client holds and how long it is
// willing to wait for a change.
func pollWait(r *http.Request) (string, time.Duration) {
	tag := r.Header.Get(PollEtagHeader)
	if tag == "" {
		tag = r.Header.Get("If-None-Match")
	}
	secs := 0
	if s := r.Header.Get(PollTimeHeader); s != "" {
		secs, _ = strconv.Atoi(s)
	} else if s := r.URL.Query().Get("wait"); s != "" {
		secs, _ = strconv.Atoi(s)
	}
	if secs > MaxPoll {
		secs = MaxPoll
	}
	if secs < 0 || tag == "" {
		secs = 0
	}
	return tag, time.Duration(secs) * time.Second
}

// conditional implements If-None-Match and long polling against a serial
// number.  It returns the serial to report, or false if a 304 was sent.
func (h *Handler) conditional(w http.ResponseWriter, r *http.Request,
	current func() int64, wait func(int64, time.Duration) int64) (int64, bool) {

	sn := current()
	tag, d := pollWait(r)
	if tag == etag(sn) && d > 0 {
		ch := make(chan int64, 1)
		go func() { ch <- wait(sn, d) }()
		select {
		case sn = <-ch:
		case <-r.Context().Done():
			return sn, false
		}
	}
	if tag != "" && tag == etag(sn) {
		w.Header().Set("Etag", etag(sn))
		w.WriteHeader(http.StatusNotModified)
		return sn, false
	}
	w.Header().Set("Etag", etag(sn))
	return sn, true
}

func (h *Handler) findWatch(r *http.Request) (*warden.Watch, *Error) {
	name := mux.Vars(r)["watch"]
	if w, e := h.reg.Find(name); e == nil {
		return w, nil
	}
	return nil, &Error{Code: http.StatusNotFound, Message: "Watch not found"}
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if h.reg.Ping() {
		h.writeText(w, "pong\n")
	}
}

func (h *Handler) getInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJson(w, h.reg.Info())
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	lines := h.reg.Status()
	if len(lines) == 0 {
		h.writeText(w, "")
		return
	}
	h.writeText(w, strings.Join(lines, "\n")+"\n")
}

func (h *Handler) listWatches(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.conditional(w, r, h.reg.Serial, h.reg.WatchSerial); !ok {
		return
	}
	ws, _ := h.reg.Watches()
	infos := make([]*warden.WatchInfo, 0, len(ws))
	for _, x := range ws {
		infos = append(infos, x.Info())
	}
	h.writeJson(w, infos)
}

func (h *Handler) getWatch(w http.ResponseWriter, r *http.Request) {
	x, e := h.findWatch(r)
	if e != nil {
		e.write(w)
		return
	}
	if _, ok := h.conditional(w, r, h.reg.Serial, h.reg.WatchSerial); !ok {
		return
	}
	h.writeJson(w, x.Info())
}

func (h *Handler) writeLog(w http.ResponseWriter, r *http.Request, l *warden.Log) {
	if _, ok := h.conditional(w, r, l.Id, l.Watch); !ok {
		return
	}
	recs, _ := l.GetRecords(0)
	if recs == nil {
		recs = []warden.LogRecord{}
	}
	h.writeJson(w, recs)
}

func (h *Handler) getWatchLog(w http.ResponseWriter, r *http.Request) {
	x, e := h.findWatch(r)
	if e != nil {
		e.write(w)
		return
	}
	h.writeLog(w, r, x.Log())
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	h.writeLog(w, r, h.reg.Log())
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	x, e := h.findWatch(r)
	if h.hist == nil {
		if e != nil {
			e.write(w)
			return
		}
		h.writeJson(w, x.Transitions())
		return
	}

	// The store outlives watches, so removed ones still have history.
	n := warden.MaxTransitions
	if s := r.URL.Query().Get("n"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			n = v
		}
	}
	ts, err := h.hist.Recent(r.Context(), mux.Vars(r)["watch"], n)
	if err != nil {
		h.internalError(w, err)
		return
	}
	if len(ts) == 0 && e != nil {
		e.write(w)
		return
	}
	if ts == nil {
		ts = []warden.Transition{}
	}
	h.writeJson(w, ts)
}

func controlError(err error) *Error {
	var uw *warden.UnknownWatchError
	var ic *warden.InvalidCommandError
	var ce *warden.ConfigError
	switch {
	case errors.As(err, &uw):
		return &Error{Code: http.StatusNotFound, Message: err.Error()}
	case errors.As(err, &ic), errors.As(err, &ce):
		return &Error{Code: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, warden.ErrNoLoader):
		return &Error{Code: http.StatusNotImplemented, Message: err.Error()}
	}
	return &Error{Code: http.StatusInternalServerError, Message: err.Error()}
}

func (h *Handler) control(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	names, err := h.reg.Control(vars["target"], vars["verb"])
	if err != nil {
		e := controlError(err)
		e.Watches = names
		e.write(w)
		return
	}
	h.writeJson(w, &Names{Watches: names})
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLoadBody))
	if err != nil {
		(&Error{Code: http.StatusBadRequest, Message: err.Error()}).write(w)
		return
	}
	ws, err := h.reg.RunningLoad(string(body))
	if err != nil {
		controlError(err).write(w)
		return
	}
	names := make([]string, 0, len(ws))
	for _, x := range ws {
		names = append(names, x.Name())
	}
	h.writeJson(w, &Names{Watches: names})
}

func (h *Handler) quit(w http.ResponseWriter, r *http.Request) {
	h.writeJson(w, ok)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	h.reg.Terminate()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

func NewHandler(reg *warden.Registry) *Handler {
	r := mux.NewRouter()
	h := &Handler{reg: reg, r: r}
	r.HandleFunc("/", h.getInfo).Methods("GET")
	r.HandleFunc("/ping", h.ping).Methods("GET")
	r.HandleFunc("/status", h.status).Methods("GET")
	r.HandleFunc("/log", h.getLog).Methods("GET")
	r.HandleFunc("/watches", h.listWatches).Methods("GET")
	r.HandleFunc("/watches/{watch}", h.getWatch).Methods("GET")
	r.HandleFunc("/watches/{watch}/log", h.getWatchLog).Methods("GET")
	r.HandleFunc("/watches/{watch}/history", h.getHistory).Methods("GET")
	r.HandleFunc("/control/{target}/{verb}", h.control).Methods("POST")
	r.HandleFunc("/load", h.load).Methods("POST")
	r.HandleFunc("/quit", h.quit).Methods("POST")
	return h
}
