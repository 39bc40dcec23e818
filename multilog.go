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

package warden

import (
	"io"
	"log"
	"strings"
	"sync"
)

// MultiLogger fans a single log.Logger out to several destinations.  It is
// an io.Writer that splits what it receives into lines and hands each line
// to every registered logger, which apply their own prefix and flags.
//
// Watches use one of these with a "[name] " prefix, feeding both the
// watch's private ring and the registry's log.
type MultiLogger struct {
	log     *log.Logger
	loggers []*log.Logger
	lock    sync.Mutex
}

// Write implements io.Writer.  Input is expected to be whole lines, which
// is what log.Logger produces.
func (l *MultiLogger) Write(b []byte) (int, error) {
	lines := strings.Split(strings.Trim(string(b), "\n"), "\n")
	l.lock.Lock()
	for _, line := range lines {
		for _, logger := range l.loggers {
			logger.Println(line)
		}
	}
	l.lock.Unlock()
	return len(b), nil
}

// AddLogger registers a destination.  Adding the same logger twice is
// harmless.
func (l *MultiLogger) AddLogger(logger *log.Logger) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for _, x := range l.loggers {
		if x == logger {
			return
		}
	}
	l.loggers = append(l.loggers, logger)
}

// AddWriter is a convenience that wraps w in an unadorned logger.
func (l *MultiLogger) AddWriter(w io.Writer, flags int) *log.Logger {
	logger := log.New(w, "", flags)
	l.AddLogger(logger)
	return logger
}

// DelLogger removes a destination.
func (l *MultiLogger) DelLogger(logger *log.Logger) {
	l.lock.Lock()
	defer l.lock.Unlock()

	for i, x := range l.loggers {
		if x == logger {
			l.loggers = append(l.loggers[:i], l.loggers[i+1:]...)
			break
		}
	}
}

// Logger returns the logger that writes into this fan-out.
func (l *MultiLogger) Logger() *log.Logger {
	return l.log
}

// Printf logs through the fan-out.
func (l *MultiLogger) Printf(format string, v ...interface{}) {
	l.log.Printf(format, v...)
}

// NewMultiLogger returns a MultiLogger whose lines carry prefix.
func NewMultiLogger(prefix string) *MultiLogger {
	m := &MultiLogger{}
	m.log = log.New(m, prefix, 0)
	return m
}
