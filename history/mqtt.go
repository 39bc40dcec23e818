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

package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gdamore/warden"
)

const (
	connectTimeout    = 10 * time.Second
	keepAlive         = 60 * time.Second
	disconnectQuiesce = 1000 // milliseconds
)

var ErrPublishTimeout = errors.New("Timed out publishing transition")

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// Publisher sends each transition, as JSON, to <topic>/<watch>.  Fatal
// transitions are also published, retained, to <topic>/alerts/<watch>.
type Publisher struct {
	topic   string
	qos     byte
	publish func(topic string, qos byte, retained bool, payload []byte) pahomqtt.Token
	close   func()
}

// Connect dials the broker and returns a Publisher using it.
func Connect(cfg MQTTConfig) (*Publisher, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connecting to %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Broker, err)
	}
	return NewPublisher(client, cfg.Topic, cfg.QoS), nil
}

// NewPublisher wraps an existing client.
func NewPublisher(client pahomqtt.Client, topic string, qos byte) *Publisher {
	return &Publisher{
		topic:   strings.TrimRight(topic, "/"),
		qos:     qos,
		publish: func(topic string, qos byte, retained bool, payload []byte) pahomqtt.Token {
			return client.Publish(topic, qos, retained, payload)
		},
		close:   func() { client.Disconnect(disconnectQuiesce) },
	}
}

func (p *Publisher) send(ctx context.Context, topic string, retained bool, b []byte) error {
	token := p.publish(topic, p.qos, retained, b)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ErrPublishTimeout
	}
}

// Send implements warden.Sink.
func (p *Publisher) Send(ctx context.Context, t warden.Transition) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := p.send(ctx, p.topic+"/"+t.Watch, false, b); err != nil {
		return err
	}
	if t.Fatal {
		return p.send(ctx, p.topic+"/alerts/"+t.Watch, true, b)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.close != nil {
		p.close()
	}
	return nil
}
