package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/mikey-austin/botify/internal/adapters/mqttserver"
	"github.com/mikey-austin/botify/internal/dispatch"
	"github.com/mikey-austin/botify/pkg/bp"
)

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler paho.MessageHandler) error
	Unsubscribe(topic string) error
}

// ModuleConfig configures the player module.
type ModuleConfig struct {
	NodeID    string
	TopicBase string
	Name      string
	Pipeline  string
	Device    string
	Volume    int
}

// Module exposes a transport over MQTT: it accepts transport commands on the
// command topic and publishes retained player state.
type Module struct {
	log       *zap.Logger
	client    mqttClient
	transport *Transport
	driver    Driver
	config    ModuleConfig
	cmdTopic  string
}

// NewModule creates a player module backed by a GStreamer driver.
func NewModule(log *zap.Logger, client *mqttserver.Client, dispatcher *dispatch.Dispatcher, cfg ModuleConfig) (*Module, error) {
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("node_id required")
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = bp.BaseTopic
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "Botify Player"
	}
	if strings.TrimSpace(cfg.Pipeline) == "" {
		return nil, errors.New("pipeline required")
	}

	driver, err := NewGstDriver(cfg.Pipeline, cfg.Device)
	if err != nil {
		return nil, err
	}
	return newModule(log, client, dispatcher, cfg, driver, fetchCoverHTTP)
}

func newModule(log *zap.Logger, client mqttClient, dispatcher *dispatch.Dispatcher, cfg ModuleConfig, driver Driver, fetch CoverFetcher) (*Module, error) {
	transport := NewTransport(log, driver, dispatcher, fetch)
	if cfg.Volume > 0 {
		if err := transport.SetVolume(cfg.Volume); err != nil {
			return nil, err
		}
	}

	return &Module{
		log:       log,
		client:    client,
		transport: transport,
		driver:    driver,
		config:    cfg,
		cmdTopic:  bp.TopicCommands(cfg.TopicBase, cfg.NodeID),
	}, nil
}

// Run starts the player module.
func (m *Module) Run(ctx context.Context) error {
	if err := m.publishPresence(); err != nil {
		return err
	}
	if err := m.publishState(); err != nil {
		return err
	}

	go m.runPositionUpdates(ctx)

	handler := func(_ paho.Client, msg paho.Message) {
		m.handleMessage(msg)
	}
	if err := m.client.Subscribe(m.cmdTopic, 1, handler); err != nil {
		return err
	}
	defer m.client.Unsubscribe(m.cmdTopic)

	<-ctx.Done()
	return nil
}

func (m *Module) publishPresence() error {
	presence := bp.Presence{
		NodeID: m.config.NodeID,
		Kind:   "player",
		Name:   m.config.Name,
		Caps: map[string]any{
			"seek":   true,
			"volume": true,
		},
		TS: time.Now().Unix(),
	}
	payload, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	return m.client.Publish(bp.TopicPresence(m.config.TopicBase, m.config.NodeID), 1, true, payload)
}

func (m *Module) publishState() error {
	payload, err := json.Marshal(m.playerState())
	if err != nil {
		return err
	}
	return m.client.Publish(bp.TopicState(m.config.TopicBase, m.config.NodeID), 1, true, payload)
}

func (m *Module) playerState() bp.PlayerState {
	state, now := m.transport.Snapshot()
	out := bp.PlayerState{
		Playing:    state.Playing,
		PositionMS: state.PositionMS,
		DurationMS: state.DurationMS,
		Volume:     state.Volume,
		TS:         time.Now().Unix(),
	}
	if now.Title != "" {
		out.Track = &bp.TrackInfo{Title: now.Title, Subtitle: now.Subtitle, CoverURL: now.CoverURL}
	}
	return out
}

func (m *Module) handleMessage(msg paho.Message) {
	var cmd bp.CommandEnvelope
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		m.log.Warn("invalid command", zap.Error(err))
		return
	}

	reply := m.dispatch(cmd)
	if cmd.ReplyTo != "" {
		payload, err := json.Marshal(reply)
		if err != nil {
			m.log.Error("marshal reply", zap.Error(err))
		} else if err := m.client.Publish(cmd.ReplyTo, 1, false, payload); err != nil {
			m.log.Error("publish reply", zap.Error(err))
		}
	}
	_ = m.publishState()
}

func (m *Module) dispatch(cmd bp.CommandEnvelope) bp.ReplyEnvelope {
	reply := bp.ReplyEnvelope{ID: cmd.ID, Type: "ack", OK: true, TS: time.Now().Unix()}

	switch cmd.Type {
	case "transport.play":
		return m.handlePlay(cmd, reply)
	case "transport.pause":
		return m.handlePause(cmd, reply)
	case "transport.toggle":
		return m.handleToggle(cmd, reply)
	case "transport.stop":
		return m.handleStop(cmd, reply)
	case "transport.seek":
		return m.handleSeek(cmd, reply)
	case "transport.setVolume":
		return m.handleSetVolume(cmd, reply)
	case "transport.status":
		return m.handleStatus(cmd, reply)
	default:
		return errorReply(cmd, "INVALID", "unsupported command")
	}
}

func (m *Module) handlePlay(cmd bp.CommandEnvelope, reply bp.ReplyEnvelope) bp.ReplyEnvelope {
	var body bp.TransportPlayBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return errorReply(cmd, "INVALID", "invalid body")
	}
	if strings.TrimSpace(body.URL) == "" {
		return errorReply(cmd, "INVALID", "url required")
	}
	if err := m.transport.Play(body.URL, body.Title, body.Subtitle, body.CoverURL); err != nil {
		return errorReply(cmd, "PLAYBACK", err.Error())
	}
	return reply
}

func (m *Module) handlePause(cmd bp.CommandEnvelope, reply bp.ReplyEnvelope) bp.ReplyEnvelope {
	state, _ := m.transport.Snapshot()
	if !state.Playing {
		return reply
	}
	if err := m.transport.TogglePlayPause(); err != nil {
		return errorReply(cmd, "PLAYBACK", err.Error())
	}
	return reply
}

func (m *Module) handleToggle(cmd bp.CommandEnvelope, reply bp.ReplyEnvelope) bp.ReplyEnvelope {
	if err := m.transport.TogglePlayPause(); err != nil {
		return errorReply(cmd, "PLAYBACK", err.Error())
	}
	return reply
}

func (m *Module) handleStop(cmd bp.CommandEnvelope, reply bp.ReplyEnvelope) bp.ReplyEnvelope {
	if err := m.transport.Stop(); err != nil {
		return errorReply(cmd, "PLAYBACK", err.Error())
	}
	return reply
}

func (m *Module) handleSeek(cmd bp.CommandEnvelope, reply bp.ReplyEnvelope) bp.ReplyEnvelope {
	var body bp.TransportSeekBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return errorReply(cmd, "INVALID", "invalid body")
	}
	if err := m.transport.Seek(body.PositionMS); err != nil {
		return errorReply(cmd, "PLAYBACK", err.Error())
	}
	return reply
}

func (m *Module) handleSetVolume(cmd bp.CommandEnvelope, reply bp.ReplyEnvelope) bp.ReplyEnvelope {
	var body bp.TransportSetVolumeBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return errorReply(cmd, "INVALID", "invalid body")
	}
	if err := m.transport.SetVolume(body.Volume); err != nil {
		return errorReply(cmd, "PLAYBACK", err.Error())
	}
	return reply
}

func (m *Module) handleStatus(cmd bp.CommandEnvelope, reply bp.ReplyEnvelope) bp.ReplyEnvelope {
	payload, err := json.Marshal(bp.TransportStatusReply{State: m.playerState()})
	if err != nil {
		return errorReply(cmd, "INVALID", err.Error())
	}
	reply.Body = payload
	return reply
}

func (m *Module) runPositionUpdates(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.updatePosition()
		}
	}
}

func (m *Module) updatePosition() {
	state, _ := m.transport.Snapshot()
	if !state.Playing {
		return
	}
	positionMS, durationMS, ok := m.driver.Position()
	if !ok {
		return
	}
	m.transport.OnPosition(positionMS, durationMS)
	_ = m.publishState()
}

func errorReply(cmd bp.CommandEnvelope, code string, message string) bp.ReplyEnvelope {
	return bp.ReplyEnvelope{
		ID:   cmd.ID,
		Type: "error",
		OK:   false,
		TS:   time.Now().Unix(),
		Err:  &bp.ReplyError{Code: code, Message: message},
	}
}

var coverHTTP = &http.Client{Timeout: 15 * time.Second}

func fetchCoverHTTP(url string) ([]byte, error) {
	resp, err := coverHTTP.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("cover fetch: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
