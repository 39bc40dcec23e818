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

// Command warden is the operator client for wardend.
//
// The global flags are
//
//	-a <address>	- daemon address, default 127.0.0.1:17165, or
//			  unix:/path for a socket ($WARDEN_ADDR)
//	-u <user:pass>	- user name & password for basic auth
//
// Without a subcommand it runs the full screen "top" view.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gdamore/warden"
	"github.com/gdamore/warden/rest"
	"github.com/gdamore/warden/warden/ui"
	"github.com/gdamore/warden/warden/util"
)

type cli struct {
	addr   string
	auth   string
	client *rest.Client
}

func main() {
	if err := newRoot().Execute(); err != nil {
		os.Exit(1)
	}
}

func (c *cli) connect() error {
	c.client = rest.NewClient(nil, c.addr)
	if c.auth != "" {
		a := strings.SplitN(c.auth, ":", 2)
		if len(a) != 2 {
			return errors.New("Bad user:pass supplied")
		}
		c.client.SetAuth(a[0], a[1])
	}
	return nil
}

func timeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), rest.Timeout)
}

func newRoot() *cobra.Command {
	c := &cli{addr: rest.DefaultAddr}
	if a := os.Getenv("WARDEN_ADDR"); a != "" {
		c.addr = a
	}
	root := &cobra.Command{
		Use:           "warden",
		Short:         "Control a running wardend",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return c.connect()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.top()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&c.addr, "address", "a", c.addr, "daemon address, or unix:/path")
	pf.StringVarP(&c.auth, "user", "u", "", "user:pass authentication")

	root.AddCommand(
		c.pingCmd(),
		c.statusCmd(),
		c.infoCmd(),
		c.logCmd(),
		c.historyCmd(),
		c.loadCmd(),
		c.quitCmd(),
		c.topCmd(),
	)
	for _, verb := range warden.Verbs() {
		root.AddCommand(c.controlCmd(verb))
	}
	return root
}

func (c *cli) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the daemon answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := timeout()
			defer cancel()
			if err := c.client.Ping(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "pong")
			return nil
		},
	}
}

func printWatch(w io.Writer, info *warden.WatchInfo) {
	pid := "-"
	if info.Pid > 0 {
		pid = fmt.Sprint(info.Pid)
	}
	fmt.Fprintf(w, "%-20s %-10s %-12s %7s %10s   %s\n", info.Name,
		info.Group, util.Status(info), pid,
		util.FormatDuration(util.Since(info)), info.Reason)
}

func (c *cli) statusCmd() *cobra.Command {
	long := false
	cmd := &cobra.Command{
		Use:   "status [target...]",
		Short: "Show the state of watches",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := timeout()
			defer cancel()
			out := cmd.OutOrStdout()
			if !long && len(args) == 0 {
				lines, err := c.client.Status(ctx)
				if err != nil {
					return err
				}
				for _, l := range lines {
					fmt.Fprintln(out, l)
				}
				return nil
			}
			list, err := c.client.Watches(ctx)
			if err != nil {
				return err
			}
			want := map[string]bool{}
			for _, a := range args {
				want[a] = true
			}
			items := list.Watches
			util.SortWatches(items)
			for _, info := range items {
				if len(want) == 0 || want[info.Name] || want[info.Group] {
					printWatch(out, info)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show pid, time in state and reason")
	return cmd
}

func (c *cli) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <watch>",
		Short: "Show details of a watch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := timeout()
			defer cancel()
			s, err := c.client.GetWatch(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:      %s\n", s.Name)
			fmt.Fprintf(out, "Group:     %s\n", s.Group)
			fmt.Fprintf(out, "State:     %s\n", util.Status(s))
			fmt.Fprintf(out, "PID:       %d\n", s.Pid)
			fmt.Fprintf(out, "Autostart: %v\n", s.Autostart)
			fmt.Fprintf(out, "Since:     %v\n", util.FormatDuration(util.Since(s)))
			fmt.Fprintf(out, "Reason:    %s\n", s.Reason)
			return nil
		},
	}
}

func (c *cli) controlCmd(verb string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <target>",
		Short: "Apply " + verb + " to a watch or group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := timeout()
			defer cancel()
			names, err := c.client.Control(ctx, args[0], verb)
			if len(names) != 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Sent '%s' to: %s\n", verb, strings.Join(names, " "))
			}
			return err
		},
	}
}

func printLog(w io.Writer, recs []warden.LogRecord, after int64) int64 {
	for _, r := range recs {
		if r.Id <= after {
			continue
		}
		fmt.Fprintf(w, "%s %s\n", r.Time.Format(time.StampMilli), r.Text)
		after = r.Id
	}
	return after
}

func (c *cli) logCmd() *cobra.Command {
	follow := false
	cmd := &cobra.Command{
		Use:   "log [watch]",
		Short: "Show the log of a watch, or of the daemon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			ctx, cancel := timeout()
			info, err := c.client.GetLog(ctx, name)
			cancel()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			last := printLog(out, info.Records, 0)
			if !follow {
				return nil
			}
			ctx = cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			for {
				if info, err = c.client.WatchLog(ctx, name, info); err != nil {
					return err
				}
				last = printLog(out, info.Records, last)
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "wait for new lines")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <watch>",
		Short: "Show the recent transitions of a watch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := timeout()
			defer cancel()
			ts, err := c.client.History(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range ts {
				mark := " "
				if t.Fatal {
					mark = "!"
				}
				fmt.Fprintf(out, "%s %s %-12s -> %-12s %s\n", mark,
					t.Time.Format(time.StampMilli), t.From, t.To, t.Reason)
			}
			return nil
		},
	}
}

func (c *cli) loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <script>...",
		Short: "Send watch scripts to the running daemon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				src, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				ctx, cancel := timeout()
				names, err := c.client.Load(ctx, string(src))
				cancel()
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Loaded %s: %s\n", path, strings.Join(names, " "))
			}
			return nil
		},
	}
}

func (c *cli) quitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quit",
		Short: "Make the daemon exit, leaving processes running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := timeout()
			defer cancel()
			return c.client.Quit(ctx)
		},
	}
}

func (c *cli) topCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "top",
		Short: "Full screen view of the watches",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return c.top()
		},
	}
}

func (c *cli) top() error {
	app := ui.NewApp(c.client, c.addr)
	return app.Run()
}
