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
	"encoding/json"
	"net/http"
)

const (
	mimeJson = "application/json; charset=UTF-8"
	mimeText = "text/plain; charset=UTF-8"

	// PollEtagHeader and PollTimeHeader ask the server to hold a GET
	// until the resource no longer matches the etag, or the number of
	// seconds passes.  The wait query parameter does the same, using
	// If-None-Match for the etag.
	PollEtagHeader = "X-Warden-Poll-Etag"
	PollTimeHeader = "X-Warden-Poll-Time"

	// MaxPoll bounds how long a request may be held.
	MaxPoll = 300
)

var ok struct{}

// Names is the reply to control and load requests.
type Names struct {
	Watches []string `json:"watches"`
}

// Error is the body of a failed request.  A control request that failed
// for only some watches lists all the watches it was applied to.
type Error struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Watches []string `json:"watches,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) write(w http.ResponseWriter) {
	b, _ := json.Marshal(e)
	w.Header().Set("Content-Type", mimeJson)
	w.WriteHeader(e.Code)
	w.Write(b)
}
