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
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/warden"
)

// LogInfo is a fetched log, along with the etag needed to wait for
// the next change.
type LogInfo struct {
	etag    string
	Records []warden.LogRecord
}

// WatchList is a fetched list of watches.
type WatchList struct {
	etag    string
	Watches []*warden.WatchInfo
}

type Client struct {
	user   string // HTTP Basic-Auth
	pass   string
	base   string // URI to root of tree on server
	auth   bool
	client *http.Client

	// Cached data
	list *WatchList
	logs map[string]*LogInfo
	lock sync.Mutex
}

func (c *Client) SetAuth(user string, pass string) {
	c.user = user
	c.pass = pass
	c.auth = true
}

func (c *Client) url(name string) string {
	if name == "" {
		return c.base + "/watches"
	}
	return c.base + "/watches/" + url.PathEscape(name)
}

func (c *Client) request(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, e := http.NewRequestWithContext(ctx, method, url, body)
	if e != nil {
		return nil, e
	}
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	return req, nil
}

func replyError(res *http.Response) error {
	e := &Error{}
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	if json.Unmarshal(b, e) != nil || e.Message == "" {
		e.Message = res.Status
	}
	e.Code = res.StatusCode
	return e
}

// poll issues an HTTP GET against the URL, optionally checking for a cache,
// including optionally issuing a long poll that tries to wait until the
// value changes.  The return values are the new Etag and any error.  If the
// value did not change, then the returned etag will be "", but the error will
// be nil.
func (c *Client) poll(ctx context.Context, url string, etag string, wait int, v interface{}) (string, error) {
	req, e := c.request(ctx, "GET", url, nil)
	if e != nil {
		return "", e
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
		if wait > 0 {
			req.Header.Set(PollEtagHeader, etag)
			req.Header.Set(PollTimeHeader, strconv.Itoa(wait))
		}
	}
	res, e := c.client.Do(req)
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return "", nil
	}
	if res.StatusCode != http.StatusOK {
		return "", replyError(res)
	}
	if e := json.NewDecoder(res.Body).Decode(v); e != nil {
		return "", e
	}
	return res.Header.Get("Etag"), nil
}

func (c *Client) post(ctx context.Context, url string, body string, v interface{}) error {
	req, e := c.request(ctx, "POST", url, strings.NewReader(body))
	if e != nil {
		return e
	}
	req.Header.Set("Content-Type", mimeText)
	res, e := c.client.Do(req)
	if e != nil {
		return e
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return replyError(res)
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(v)
}

// Ping returns nil if the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	req, e := c.request(ctx, "GET", c.base+"/ping", nil)
	if e != nil {
		return e
	}
	res, e := c.client.Do(req)
	if e != nil {
		return e
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return replyError(res)
	}
	return nil
}

// Status returns one "name: state" line per watch.
func (c *Client) Status(ctx context.Context) ([]string, error) {
	req, e := c.request(ctx, "GET", c.base+"/status", nil)
	if e != nil {
		return nil, e
	}
	res, e := c.client.Do(req)
	if e != nil {
		return nil, e
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, replyError(res)
	}
	b, e := io.ReadAll(res.Body)
	if e != nil {
		return nil, e
	}
	s := strings.TrimRight(string(b), "\n")
	if s == "" {
		return []string{}, nil
	}
	return strings.Split(s, "\n"), nil
}

func (c *Client) Info(ctx context.Context) (*warden.RegistryInfo, error) {
	info := &warden.RegistryInfo{}
	if _, e := c.poll(ctx, c.base+"/", "", 0, info); e != nil {
		return nil, e
	}
	return info, nil
}

func (c *Client) pollWatches(ctx context.Context, secs int, last *WatchList) (*WatchList, error) {
	c.lock.Lock()
	cached := c.list
	c.lock.Unlock()

	otag := ""
	if last == nil {
		secs = 0
	} else if cached != nil && last.etag != cached.etag {
		// The cache moved on since the caller last looked.
		return cached, nil
	} else {
		otag = last.etag
	}

	v := &WatchList{}
	etag, e := c.poll(ctx, c.url(""), otag, secs, &v.Watches)
	if e != nil {
		return nil, e
	}
	if etag == "" {
		if cached == nil {
			return last, nil
		}
		return cached, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.list = v
	c.lock.Unlock()
	return v, nil
}

// Watches returns the current watches without waiting.
func (c *Client) Watches(ctx context.Context) (*WatchList, error) {
	return c.pollWatches(ctx, 0, nil)
}

// WaitWatches blocks until the watches differ from last, or the server's
// poll time passes.
func (c *Client) WaitWatches(ctx context.Context, last *WatchList) (*WatchList, error) {
	return c.pollWatches(ctx, MaxPoll, last)
}

func (c *Client) GetWatch(ctx context.Context, name string) (*warden.WatchInfo, error) {
	v := &warden.WatchInfo{}
	if _, e := c.poll(ctx, c.url(name), "", 0, v); e != nil {
		return nil, e
	}
	return v, nil
}

// History returns the recent transitions of the named watch.
func (c *Client) History(ctx context.Context, name string) ([]warden.Transition, error) {
	v := []warden.Transition{}
	if _, e := c.poll(ctx, c.url(name)+"/history", "", 0, &v); e != nil {
		return nil, e
	}
	return v, nil
}

func (c *Client) pollLog(ctx context.Context, name string, secs int, last *LogInfo) (*LogInfo, error) {
	c.lock.Lock()
	cached, ok := c.logs[name]
	c.lock.Unlock()

	otag := ""
	if last == nil {
		secs = 0
	} else if ok && last.etag != cached.etag {
		return cached, nil
	} else {
		otag = last.etag
	}

	url := c.url(name) + "/log"
	if name == "" {
		url = c.base + "/log"
	}

	v := &LogInfo{}
	etag, e := c.poll(ctx, url, otag, secs, &v.Records)
	if e != nil {
		c.lock.Lock()
		delete(c.logs, name)
		c.lock.Unlock()
		return nil, e
	}
	if etag == "" {
		if !ok {
			return last, nil
		}
		return cached, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.logs[name] = v
	c.lock.Unlock()

	return v, nil
}

// GetLog returns the log of the named watch, or the daemon log if the
// name is empty.  It does not wait for changes.
func (c *Client) GetLog(ctx context.Context, name string) (*LogInfo, error) {
	return c.pollLog(ctx, name, 0, nil)
}

// WatchLog waits for the log to differ from last.
func (c *Client) WatchLog(ctx context.Context, name string, last *LogInfo) (*LogInfo, error) {
	return c.pollLog(ctx, name, MaxPoll, last)
}

// Control applies a verb to a watch or group, returning the names of the
// watches it touched.  If the verb failed for some of them, those names
// come back with the error.
func (c *Client) Control(ctx context.Context, target string, verb string) ([]string, error) {
	v := &Names{}
	u := c.base + "/control/" + url.PathEscape(target) + "/" + url.PathEscape(verb)
	if e := c.post(ctx, u, "", v); e != nil {
		var re *Error
		if errors.As(e, &re) {
			return re.Watches, e
		}
		return nil, e
	}
	return v.Watches, nil
}

// Load sends configuration source to the daemon, returning the names of
// the watches it declared.
func (c *Client) Load(ctx context.Context, src string) ([]string, error) {
	v := &Names{}
	if e := c.post(ctx, c.base+"/load", src, v); e != nil {
		return nil, e
	}
	return v.Watches, nil
}

// Quit asks the daemon to exit.
func (c *Client) Quit(ctx context.Context) error {
	return c.post(ctx, c.base+"/quit", "", nil)
}

// NewClient returns a Client handle.  The transport maybe nil to use
// a default transport, but it may also be adjusted to support additional
// options such as TLS.  addr is either a base URL, or unix:/path for a
// daemon listening on a socket.
func NewClient(t *http.Transport, addr string) *Client {
	if t == nil {
		t = &http.Transport{}
	}
	base := addr
	if path, ok := strings.CutPrefix(addr, "unix:"); ok {
		t.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		}
		base = "http://unix"
	} else if !strings.Contains(addr, "://") {
		base = "http://" + addr
	}
	c := &Client{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Transport: t},
		logs:   make(map[string]*LogInfo),
	}
	return c
}

// Timeout is the deadline the command line client applies to requests
// that do not long poll.
const Timeout = 10 * time.Second
