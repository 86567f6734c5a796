// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry mirrors status events and captured samples to an MQTT
// broker and accepts remote command characters from it.
package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/mpu_datalogger/internal/imu"
	"github.com/relabs-tech/mpu_datalogger/internal/status"
)

const publishTimeout = 500 * time.Millisecond

// Options selects the broker and topics.
type Options struct {
	Broker        string
	ClientID      string
	TopicStatus   string
	TopicSamples  string
	TopicCommands string
}

// client is the subset of mqtt.Client used here.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher is a status.Sink backed by MQTT.
type Publisher struct {
	c    client
	opts Options
}

// Connect dials the broker.
func Connect(o Options) (*Publisher, error) {
	mo := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true)

	c := mqtt.NewClient(mo)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", o.Broker, token.Error())
	}
	log.Printf("mqtt: connected to broker at %s", o.Broker)
	return &Publisher{c: c, opts: o}, nil
}

// PublishStatus sends ev as JSON on the status topic. Status topic messages
// are retained so late subscribers see the current screen.
func (p *Publisher) PublishStatus(ev status.Event) {
	p.publish(p.opts.TopicStatus, true, ev)
}

// PublishSample sends one captured sample on the samples topic.
func (p *Publisher) PublishSample(s imu.Sample) {
	p.publish(p.opts.TopicSamples, false, s)
}

func (p *Publisher) publish(topic string, retained bool, v interface{}) {
	if topic == "" {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("mqtt: marshal for %s: %v", topic, err)
		return
	}
	token := p.c.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Debugf("mqtt: publish to %s still pending", topic)
		return
	}
	if token.Error() != nil {
		log.Printf("mqtt: publish error on %s: %v", topic, token.Error())
	}
}

// SubscribeCommands forwards single-character payloads on the commands
// topic to feed.
func (p *Publisher) SubscribeCommands(feed func(byte) bool) error {
	if p.opts.TopicCommands == "" {
		return nil
	}
	token := p.c.Subscribe(p.opts.TopicCommands, 0, func(_ mqtt.Client, msg mqtt.Message) {
		ch, ok := CommandChar(msg.Payload())
		if !ok {
			log.Printf("mqtt: ignoring command payload %q", msg.Payload())
			return
		}
		if !feed(ch) {
			log.Warnf("mqtt: command %q dropped, stream full", ch)
		}
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", p.opts.TopicCommands, token.Error())
	}
	log.Printf("mqtt: subscribed to %s", p.opts.TopicCommands)
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.c.Disconnect(250)
}

// CommandChar extracts the command character from a remote payload. Either a
// bare character or a {"cmd":"x"} object is accepted.
func CommandChar(payload []byte) (byte, bool) {
	s := strings.TrimSpace(string(payload))
	if strings.HasPrefix(s, "{") {
		var m struct {
			Cmd string `json:"cmd"`
		}
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return 0, false
		}
		s = m.Cmd
	}
	if len(s) != 1 {
		return 0, false
	}
	return s[0], true
}
