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

// Command wardend is the supervision daemon.  It loads watch scripts,
// serves the HTTP control surface, and keeps the watched processes in
// their desired states until told to quit.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gdamore/warden"
	"github.com/gdamore/warden/history"
	"github.com/gdamore/warden/rest"
	"github.com/gdamore/warden/script"
	"github.com/gdamore/warden/settings"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
)

type options struct {
	settings string
	listen   string
	pidDir   string
	name     string
	config   []string
	graceful bool
	validate bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:          "wardend [flags] [script-glob...]",
		Short:        "Supervise processes declared in Lua scripts",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.config = append(o.config, args...)
			return run(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.settings, "settings", "s", "", "settings file (.yaml, .yml or .toml)")
	f.StringVarP(&o.listen, "listen", "a", "", "control surface address, or unix:/path")
	f.StringVarP(&o.pidDir, "pid-dir", "d", "", "PID file directory")
	f.StringVarP(&o.name, "name", "n", "", "daemon name")
	f.BoolVarP(&o.graceful, "graceful", "g", false, "stop every watch on SIGINT or SIGTERM")
	f.BoolVar(&o.validate, "check", false, "load the scripts, report problems, and exit")
	return cmd
}

func loadSettings(cmd *cobra.Command, o *options) (*settings.Settings, error) {
	s, err := settings.Load(o.settings)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("listen") {
		s.Listen = o.listen
	}
	if cmd.Flags().Changed("pid-dir") {
		s.PidDir = o.pidDir
	}
	if cmd.Flags().Changed("name") {
		s.Name = o.name
	}
	if len(o.config) > 0 {
		s.Config = o.config
	}
	return s, s.Validate()
}

// sinks attaches the history store and MQTT publisher, when configured.
// The returned function closes them.
func sinks(r *warden.Registry, srv *rest.Server, s *settings.Settings) (func(), error) {
	var closers []func() error
	if s.History.Path != "" {
		st, err := history.Open(s.History.Path, s.History.Keep)
		if err != nil {
			return nil, err
		}
		r.AddSink(st)
		srv.SetHistory(st)
		closers = append(closers, st.Close)
	}
	if s.MQTT.Broker != "" {
		p, err := history.Connect(history.MQTTConfig{
			Broker:   s.MQTT.Broker,
			ClientID: s.MQTT.ClientID,
			Username: s.MQTT.Username,
			Password: s.MQTT.Password,
			Topic:    s.MQTT.Topic,
			QoS:      byte(s.MQTT.QoS),
		})
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, err
		}
		r.AddSink(p)
		closers = append(closers, p.Close)
	}
	return func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

func run(cmd *cobra.Command, o *options) error {
	s, err := loadSettings(cmd, o)
	if err != nil {
		return err
	}
	if len(s.Config) == 0 {
		return errors.New("no watch scripts given")
	}

	r := warden.NewRegistry(s.Name)
	logger := r.Logger()

	l := script.NewLoader()
	l.Timeout = time.Duration(s.ScriptTimeout)
	r.SetLoader(l)
	if err := r.SetPidDir(s.PidDir); err != nil {
		return err
	}
	if err := r.SetTick(time.Duration(s.Tick)); err != nil {
		return err
	}

	// Scripts may set the PID directory, so load before locking.
	for _, pattern := range s.Config {
		if _, err := r.Load(pattern); err != nil {
			logger.Printf("Failed to load %s: %v", pattern, err)
			return err
		}
	}
	if o.validate {
		for _, line := range r.Status() {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	}

	if err := r.Setup(); err != nil {
		return err
	}
	lockPath := s.LockFile
	if lockPath == "" {
		lockPath = filepath.Join(r.PidDir(), "wardend.lock")
	}
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%s is already running (lock %s is held)", s.Name, lockPath)
	}
	defer lock.Unlock()

	srv := rest.NewServer(r, s.Listen)
	srv.SetMaxConns(s.MaxConns)
	if s.Auth.PasswordHash != "" {
		srv.SetAuth(s.Auth.User, []byte(s.Auth.PasswordHash))
	}
	r.SetControlSurface(srv)

	closeSinks, err := sinks(r, srv, s)
	if err != nil {
		return err
	}
	defer closeSinks()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case sig := <-sigs:
			logger.Printf("Received %v", sig)
			if o.graceful {
				r.Shutdown()
			} else {
				r.Close()
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	err = r.Start(ctx)
	// The sinks must be drained before they are closed.
	r.Close()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		log.Printf("%s: %v", s.Name, err)
	}
	return err
}
