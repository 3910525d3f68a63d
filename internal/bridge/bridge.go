// Package bridge exposes the assistant to a remote operator over MQTT. It
// subscribes to a commands topic, dispatches each command by type, and
// publishes correlated events back on an events topic.
package bridge

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carebot-ai/voice-edge/internal/agent"
	appconfig "github.com/carebot-ai/voice-edge/internal/config"
	"github.com/carebot-ai/voice-edge/internal/journal"
)

const connectTimeout = 10 * time.Second

// Runner executes one agent turn for a text command.
type Runner interface {
	RunTurn(ctx context.Context, input string) (agent.Result, error)
}

// Speaker voices a line of text on the local speaker.
type Speaker interface {
	Say(ctx context.Context, text string) error
}

// Bridge is the MQTT control surface. Each command carrying a req_id gets
// exactly one terminal event with the same req_id.
type Bridge struct {
	cfg     appconfig.BridgeConfig
	logger  *zap.Logger
	runner  Runner
	speaker Speaker
	store   *journal.Journal

	clientID string
	client   mqtt.Client
	publish  func(payload []byte) error
	handlers map[string]func(context.Context, Command)
}

// New creates a bridge; Start connects it.
func New(cfg appconfig.BridgeConfig, logger *zap.Logger, runner Runner, speaker Speaker, store *journal.Journal) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bridge{
		cfg:     cfg,
		logger:  logger,
		runner:  runner,
		speaker: speaker,
		store:   store,
	}
	b.handlers = map[string]func(context.Context, Command){
		CommandRunAgent: b.handleRunAgent,
		CommandSay:      b.handleSay,
		CommandPing:     b.handlePing,
	}
	return b
}

// Start connects to the broker, registers the offline will, subscribes to the
// commands topic, and announces the online status.
func (b *Bridge) Start(ctx context.Context) error {
	// Brokers drop both parties of a client-id collision, so a shared config
	// must still yield a unique id per process.
	clientID := fmt.Sprintf("%s-%s", b.cfg.ClientID, uuid.NewString()[:8])
	b.clientID = clientID

	offline, err := json.Marshal(statusEvent("offline", map[string]any{"client_id": clientID}))
	if err != nil {
		return err
	}

	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.Endpoint).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetBinaryWill(b.cfg.EventsTopic, offline, 1, true)

	if b.cfg.CertPath != "" {
		tlsConfig, err := b.tlsConfig()
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		token := client.Subscribe(b.cfg.CommandsTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			b.dispatch(ctx, msg.Payload())
		})
		if !token.WaitTimeout(connectTimeout) || token.Error() != nil {
			b.logger.Error("subscribe failed",
				zap.String("topic", b.cfg.CommandsTopic),
				zap.Error(token.Error()),
			)
			return
		}
		b.publishEvent(statusEvent("online", map[string]any{"client_id": clientID}))
		b.logger.Info("bridge connected",
			zap.String("endpoint", b.cfg.Endpoint),
			zap.String("commands_topic", b.cfg.CommandsTopic),
		)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.logger.Warn("bridge connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connect to %s: timeout", b.cfg.Endpoint)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", b.cfg.Endpoint, err)
	}

	b.client = client
	b.publish = func(payload []byte) error {
		t := client.Publish(b.cfg.EventsTopic, 1, false, payload)
		if !t.WaitTimeout(connectTimeout) {
			return fmt.Errorf("publish to %s: timeout", b.cfg.EventsTopic)
		}
		return t.Error()
	}
	return nil
}

// Stop announces the offline status and disconnects.
func (b *Bridge) Stop() {
	if b.client == nil {
		return
	}
	b.publishEvent(statusEvent("offline", map[string]any{"client_id": b.clientID}))
	b.client.Disconnect(250)
	b.client = nil
}

// PublishTurn mirrors one locally completed voice turn onto the events topic.
func (b *Bridge) PublishTurn(entry journal.Entry) {
	b.publishEvent(transcriptEvent("", entry.UserText))
	b.publishEvent(resultFromEntry("", entry))
}

// PublishError surfaces a non-fatal session failure on the events topic.
func (b *Bridge) PublishError(message string) {
	b.publishEvent(errorEvent("", message, nil))
}

func (b *Bridge) tlsConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(b.cfg.CertPath, b.cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if b.cfg.RootCAPath != "" {
		ca, err := os.ReadFile(b.cfg.RootCAPath)
		if err != nil {
			return nil, fmt.Errorf("read root ca: %w", err)
		}
		if !pool.AppendCertsFromPEM(ca) {
			return nil, fmt.Errorf("parse root ca %s", b.cfg.RootCAPath)
		}
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool}, nil
}

func (b *Bridge) dispatch(ctx context.Context, payload []byte) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.publishEvent(errorEvent("", "malformed command: "+err.Error(), nil))
		return
	}

	handler, ok := b.handlers[cmd.Type]
	if !ok {
		b.publishEvent(errorEvent(cmd.ReqID,
			fmt.Sprintf("unknown command type %q", cmd.Type),
			map[string]any{"payload": cmd}))
		return
	}
	handler(ctx, cmd)
}

func (b *Bridge) handleRunAgent(ctx context.Context, cmd Command) {
	if cmd.Text == "" {
		b.publishEvent(errorEvent(cmd.ReqID, "run_agent requires text", nil))
		return
	}

	result, err := b.runner.RunTurn(ctx, cmd.Text)
	if err != nil {
		b.logger.Warn("agent turn failed", zap.String("req_id", cmd.ReqID), zap.Error(err))
		b.publishEvent(errorEvent(cmd.ReqID, err.Error(), nil))
		return
	}

	if b.speaker != nil && result.VerbalOutput != "" && result.VerbalOutput != agent.NoMotion {
		if err := b.speaker.Say(ctx, result.VerbalOutput); err != nil {
			b.logger.Warn("speak reply failed", zap.String("req_id", cmd.ReqID), zap.Error(err))
			b.publishEvent(errorEvent(cmd.ReqID, err.Error(), nil))
			return
		}
	}

	entry := journal.NewEntry(cmd.Text, result.MovementRequired, result.VerbalOutput, result.MotionPlan)
	if b.store != nil {
		if err := b.store.Append(entry); err != nil {
			b.logger.Error("journal append failed", zap.Error(err))
		}
	}

	b.publishEvent(resultFromEntry(cmd.ReqID, entry))
}

func (b *Bridge) handleSay(ctx context.Context, cmd Command) {
	if cmd.Text == "" {
		b.publishEvent(errorEvent(cmd.ReqID, "say requires text", nil))
		return
	}
	if b.speaker == nil {
		b.publishEvent(errorEvent(cmd.ReqID, "speech output unavailable", nil))
		return
	}
	if err := b.speaker.Say(ctx, cmd.Text); err != nil {
		b.publishEvent(errorEvent(cmd.ReqID, err.Error(), nil))
		return
	}
	b.publishEvent(statusEvent("spoke", map[string]any{"req_id": cmd.ReqID, "length": len(cmd.Text)}))
}

func (b *Bridge) handlePing(_ context.Context, cmd Command) {
	b.publishEvent(statusEvent("pong", map[string]any{"req_id": cmd.ReqID}))
}

func (b *Bridge) publishEvent(event Event) {
	if b.publish == nil {
		b.logger.Debug("event dropped, bridge not connected", zap.String("type", event.Type))
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("marshal event failed", zap.Error(err))
		return
	}
	if err := b.publish(payload); err != nil {
		b.logger.Warn("publish failed", zap.String("type", event.Type), zap.Error(err))
	}
}
