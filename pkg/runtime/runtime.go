// Package runtime assembles the assistant process: configuration, logging,
// the journal, audio devices, the engine session loop, the MQTT bridge, and
// the local HTTP surface.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/carebot-ai/voice-edge/internal/agent"
	"github.com/carebot-ai/voice-edge/internal/bridge"
	appconfig "github.com/carebot-ai/voice-edge/internal/config"
	"github.com/carebot-ai/voice-edge/internal/endpoint"
	apphttp "github.com/carebot-ai/voice-edge/internal/http"
	"github.com/carebot-ai/voice-edge/internal/journal"
	applogger "github.com/carebot-ai/voice-edge/internal/logger"
	"github.com/carebot-ai/voice-edge/internal/session"
	"github.com/carebot-ai/voice-edge/internal/stt"
	"github.com/carebot-ai/voice-edge/internal/tts"
	"github.com/carebot-ai/voice-edge/pkg/audio"
	"github.com/carebot-ai/voice-edge/pkg/audio/miniaudio"
	"github.com/carebot-ai/voice-edge/pkg/realtime"
)

const sessionRetryDelay = 5 * time.Second

// Server is the assembled assistant process.
type Server struct {
	cfg     appconfig.Config
	logger  *zap.Logger
	persona agent.Persona

	store   *journal.Journal
	agent   *agent.Client
	bridge  *bridge.Bridge
	devices *miniaudio.Client
	source  session.Source
	sink    session.Sink
	server  *http.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads configuration and builds every component. Audio devices are
// optional: without them the process still serves the HTTP and MQTT surfaces.
func New(configPath string) (*Server, error) {
	cfg, err := appconfig.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := applogger.New(cfg.Log)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	logger.Info("config loaded",
		zap.String("root_dir", cfg.RootDir),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("vad_source", cfg.Session.VADSource),
		zap.Bool("bridge_enabled", cfg.Bridge.Enabled),
	)

	persona, err := agent.LoadPersona(cfg.PersonaPath)
	if err != nil {
		return nil, fmt.Errorf("load persona: %w", err)
	}

	store := journal.New(cfg.JournalPath)
	if err := store.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize journal: %w", err)
	}

	agentClient := agent.NewClient(cfg.Engine.APIKey, cfg.Engine.AgentModel)
	agentClient.SystemPrompt = persona.SystemPrompt

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		persona: persona,
		store:   store,
		agent:   agentClient,
	}

	s.initDevices()

	var speaker apphttp.Speaker
	if s.sink != nil {
		speaker = &speechOutput{
			client: tts.NewClient(cfg.Engine.APIKey, cfg.Engine.TTSModel, cfg.Engine.Voice),
			sink:   s.sink,
		}
	}

	if cfg.Bridge.Enabled {
		s.bridge = bridge.New(cfg.Bridge, logger, agentClient, speaker, store)
	}

	router := apphttp.NewRouter(store, agentClient, speaker, logger)
	s.server = &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	return s, nil
}

// Logger returns the process logger.
func (s *Server) Logger() *zap.Logger {
	return s.logger
}

// Addr returns the HTTP listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Run starts the bridge, the voice session loop, and the HTTP server. It
// blocks until Shutdown.
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if s.bridge != nil {
		if err := s.bridge.Start(ctx); err != nil {
			s.logger.Warn("bridge unavailable", zap.Error(err))
			s.bridge = nil
		}
	}

	if s.source != nil && s.cfg.Engine.APIKey != "" {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runSessions(ctx)
		}()
	} else {
		s.logger.Warn("voice session disabled",
			zap.Bool("devices", s.source != nil),
			zap.Bool("api_key", s.cfg.Engine.APIKey != ""),
		)
	}

	s.logger.Info("starting http server", zap.String("addr", s.server.Addr))
	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the session loop, the bridge, the devices, and the HTTP
// server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.bridge != nil {
		s.bridge.Stop()
	}
	err := s.server.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	s.wg.Wait()
	if s.source != nil {
		_ = s.source.Close()
	}
	if s.devices != nil {
		_ = s.devices.Close()
	}
	return err
}

// initDevices opens the microphone and speaker. The capture stream is
// resampled when the device cannot run at the engine rate.
func (s *Server) initDevices() {
	devices, err := miniaudio.New(miniaudio.Config{
		SampleRate:    s.cfg.Audio.DeviceSampleRate,
		FrameDuration: s.cfg.Audio.FrameDuration,
	})
	if err != nil {
		s.logger.Warn("audio devices unavailable", zap.Error(err))
		return
	}
	s.devices = devices
	s.sink = devices

	if s.cfg.Audio.DeviceSampleRate == s.cfg.Audio.SampleRate {
		s.source = devices
		return
	}
	pipe, err := audio.NewResampledFrames(devices.Frames(), nil,
		s.cfg.Audio.DeviceSampleRate, s.cfg.Audio.SampleRate, s.cfg.Audio.FrameDuration)
	if err != nil {
		s.logger.Warn("capture resampler unavailable", zap.Error(err))
		s.source = devices
		return
	}
	s.source = pipe
}

// runSessions keeps one engine session alive, redialing after failures.
func (s *Server) runSessions(ctx context.Context) {
	for ctx.Err() == nil {
		if err := s.runSessionOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("session ended", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sessionRetryDelay):
		}
	}
}

func (s *Server) runSessionOnce(ctx context.Context) error {
	serverVAD := s.cfg.Session.VADSource != "local"

	engine, err := realtime.Dial(ctx, realtime.Config{
		URL:             s.cfg.Engine.URL,
		Model:           s.cfg.Engine.Model,
		Voice:           s.cfg.Engine.Voice,
		APIKey:          s.cfg.Engine.APIKey,
		SampleRate:      s.cfg.Audio.SampleRate,
		Instructions:    s.persona.SystemPrompt,
		TranscribeModel: s.cfg.Engine.TranscribeModel,
		ServerVAD:       serverVAD,
	}, s.logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	var detector *endpoint.Detector
	var transcriber session.Transcriber
	if !serverVAD {
		transcriber = stt.NewClient(s.cfg.Engine.APIKey, s.cfg.Engine.TranscribeModel, s.cfg.Audio.SampleRate)
		detector = endpoint.New(
			endpoint.NewEnergyClassifier(s.cfg.Audio.EnergyThreshold),
			endpoint.Config{
				WindowFrames: endpoint.WindowFrames(s.cfg.Audio.SilenceWindow, s.cfg.Audio.FrameDuration),
				TriggerRatio: s.cfg.Audio.TriggerRatio,
				ReleaseRatio: s.cfg.Audio.ReleaseRatio,
			},
		)
	}

	var onTurn func(journal.Entry)
	var onFailure func(string)
	if s.bridge != nil {
		onTurn = s.bridge.PublishTurn
		onFailure = s.bridge.PublishError
	}

	coordinator := session.New(engine, s.store, session.Options{
		Logger:      s.logger,
		Source:      s.source,
		Sink:        s.sink,
		Detector:    detector,
		Transcriber: transcriber,
		OnTurn:      onTurn,
		OnFailure:   onFailure,
	})
	return coordinator.Run(ctx)
}

// speechOutput voices announcement text through the playback sink.
type speechOutput struct {
	client *tts.Client
	sink   session.Sink
}

func (o *speechOutput) Say(ctx context.Context, text string) error {
	pcm, err := o.client.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	return o.sink.Play(pcm)
}
