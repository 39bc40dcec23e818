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
	"bytes"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// clockTicks is USER_HZ, which is 100 on every Linux ABI we run on.
const clockTicks = 100

func procFile(pid int, name string) ([]byte, error) {
	if pid <= 0 {
		return nil, ErrNoPid
	}
	return os.ReadFile(fmt.Sprintf("/proc/%d/%s", pid, name))
}

// residentBytes returns the resident set size of pid.
func residentBytes(pid int) (uint64, error) {
	b, err := procFile(pid, "statm")
	if err != nil {
		return 0, err
	}
	f := bytes.Fields(b)
	if len(f) < 2 {
		return 0, fmt.Errorf("short statm for %d", pid)
	}
	pages, err := strconv.ParseUint(string(f[1]), 10, 64)
	if err != nil {
		return 0, err
	}
	return pages * uint64(unix.Getpagesize()), nil
}

// cpuTicks returns utime+stime of pid, in clock ticks.
func cpuTicks(pid int) (uint64, error) {
	b, err := procFile(pid, "stat")
	if err != nil {
		return 0, err
	}
	// The command name may contain spaces; fields resume after ')'.
	i := bytes.LastIndexByte(b, ')')
	if i < 0 {
		return 0, fmt.Errorf("malformed stat for %d", pid)
	}
	f := bytes.Fields(b[i+1:])
	// f[0] is the state (field 3); utime and stime are fields 14 and 15.
	if len(f) < 13 {
		return 0, fmt.Errorf("short stat for %d", pid)
	}
	utime, err := strconv.ParseUint(string(f[11]), 10, 64)
	if err != nil {
		return 0, err
	}
	stime, err := strconv.ParseUint(string(f[12]), 10, 64)
	if err != nil {
		return 0, err
	}
	return utime + stime, nil
}

// zombie reports whether pid has exited but not been reaped.  Without
// /proc this is always false.
func zombie(pid int) bool {
	b, err := procFile(pid, "stat")
	if err != nil {
		return false
	}
	i := bytes.LastIndexByte(b, ')')
	if i < 0 || i+2 >= len(b) {
		return false
	}
	return b[i+2] == 'Z'
}
