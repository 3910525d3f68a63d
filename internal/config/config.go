package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	appdefaults "github.com/carebot-ai/voice-edge/config"

	"github.com/carebot-ai/voice-edge/internal/logger"
	"github.com/spf13/viper"
)

// SystemConfig carries host-level settings.
type SystemConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// EngineConfig describes the remote conversational engine.
type EngineConfig struct {
	URL             string `mapstructure:"url"`
	Model           string `mapstructure:"model"`
	Voice           string `mapstructure:"voice"`
	APIKey          string `mapstructure:"api_key"`
	AgentModel      string `mapstructure:"agent_model"`
	TranscribeModel string `mapstructure:"transcribe_model"`
	TTSModel        string `mapstructure:"tts_model"`
}

// AudioConfig parameterizes capture, playback, and endpointing.
type AudioConfig struct {
	SampleRate       int     `mapstructure:"sample_rate"`
	Channels         int     `mapstructure:"channels"`
	FrameDuration    int     `mapstructure:"frame_duration"`
	DeviceSampleRate int     `mapstructure:"device_sample_rate"`
	SilenceWindow    int     `mapstructure:"silence_window"`
	TriggerRatio     float64 `mapstructure:"trigger_ratio"`
	ReleaseRatio     float64 `mapstructure:"release_ratio"`
	EnergyThreshold  float64 `mapstructure:"energy_threshold"`
}

// SessionConfig selects session-level policy.
type SessionConfig struct {
	VADSource string `mapstructure:"vad_source"`
}

// BridgeConfig describes the MQTT command/event bridge.
type BridgeConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Endpoint      string `mapstructure:"endpoint"`
	ClientID      string `mapstructure:"client_id"`
	CertPath      string `mapstructure:"cert_path"`
	KeyPath       string `mapstructure:"key_path"`
	RootCAPath    string `mapstructure:"root_ca_path"`
	CommandsTopic string `mapstructure:"commands_topic"`
	EventsTopic   string `mapstructure:"events_topic"`
}

// Config is the resolved process configuration.
type Config struct {
	RootDir      string        `mapstructure:"-"`
	HTTPAddr     string        `mapstructure:"http_addr"`
	Engine       EngineConfig  `mapstructure:"engine"`
	Audio        AudioConfig   `mapstructure:"audio"`
	Session      SessionConfig `mapstructure:"session"`
	Bridge       BridgeConfig  `mapstructure:"bridge"`
	JournalPath  string        `mapstructure:"journal_path"`
	PersonaPath  string        `mapstructure:"persona_path"`
	SystemConfig SystemConfig  `mapstructure:"system_config"`
	Log          logger.Config `mapstructure:"log"`
}

// Load resolves configuration from the embedded defaults, an optional
// conf.yaml in the root directory, and VEDGE_-prefixed environment variables.
func Load() (Config, error) {
	return LoadConfig("")
}

// LoadConfig loads configuration from an explicit file path; an empty path
// falls back to root-dir discovery.
func LoadConfig(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(bytes.NewReader(appdefaults.Default)); err != nil {
		return Config{}, fmt.Errorf("load embedded config: %w", err)
	}

	setDefaults(v)

	v.SetEnvPrefix("vedge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var rootDir string
	path := strings.TrimSpace(configPath)
	if path == "" {
		resolved, err := resolveRootDir()
		if err != nil {
			return Config{}, err
		}
		rootDir = resolved
		v.SetConfigName("conf")
		v.AddConfigPath(rootDir)
		if err := v.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, err
			}
		}
	} else {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, err
		}
		rootDir = strings.TrimSpace(os.Getenv("VEDGE_ROOT_DIR"))
		if rootDir == "" {
			rootDir = filepath.Dir(absPath)
			if filepath.Base(rootDir) == "config" {
				rootDir = filepath.Dir(rootDir)
			}
		}
		v.SetConfigFile(absPath)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	cfg.RootDir = rootDir
	deriveHTTPAddr(&cfg)
	derivePaths(&cfg)
	normalizeAudio(&cfg.Audio)
	normalizeSession(&cfg.Session)

	if cfg.Engine.APIKey == "" {
		cfg.Engine.APIKey = strings.TrimSpace(os.Getenv("VEDGE_ENGINE_API_KEY"))
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", "")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.frame_duration", 30)
	v.SetDefault("audio.device_sample_rate", 48000)
	v.SetDefault("audio.silence_window", 2000)
	v.SetDefault("audio.trigger_ratio", 0.7)
	v.SetDefault("audio.release_ratio", 0.9)
	v.SetDefault("audio.energy_threshold", 300)
	v.SetDefault("session.vad_source", "remote")
	v.SetDefault("bridge.commands_topic", "voice/commands")
	v.SetDefault("bridge.events_topic", "voice/events")
	v.SetDefault("bridge.client_id", "voice-edge")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.stdout", true)
	v.SetDefault("log.file.enabled", true)
	v.SetDefault("log.file.path", "./data/logs")
	v.SetDefault("log.file.name", "voice-edge.log")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.compress", true)
}

func resolveRootDir() (string, error) {
	if root := strings.TrimSpace(os.Getenv("VEDGE_ROOT_DIR")); root != "" {
		return filepath.Abs(root)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := wd
	for i := 0; i < 6; i++ {
		if fileExists(filepath.Join(dir, "conf.yaml")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return wd, nil
}

func deriveHTTPAddr(cfg *Config) {
	if cfg.HTTPAddr != "" {
		return
	}
	host := cfg.SystemConfig.Host
	port := cfg.SystemConfig.Port
	if port == 0 {
		port = 8090
	}
	if host == "" {
		cfg.HTTPAddr = fmt.Sprintf(":%d", port)
		return
	}
	cfg.HTTPAddr = net.JoinHostPort(host, strconv.Itoa(port))
}

func derivePaths(cfg *Config) {
	cfg.JournalPath = resolvePath(cfg.RootDir, cfg.JournalPath, filepath.Join("data", "journal", "conversation.json"))
	cfg.PersonaPath = resolvePath(cfg.RootDir, cfg.PersonaPath, "persona.yaml")
	cfg.Bridge.CertPath = resolveOptionalPath(cfg.RootDir, cfg.Bridge.CertPath)
	cfg.Bridge.KeyPath = resolveOptionalPath(cfg.RootDir, cfg.Bridge.KeyPath)
	cfg.Bridge.RootCAPath = resolveOptionalPath(cfg.RootDir, cfg.Bridge.RootCAPath)
}

func normalizeAudio(audio *AudioConfig) {
	if audio.SampleRate <= 0 {
		audio.SampleRate = 16000
	}
	if audio.Channels <= 0 {
		audio.Channels = 1
	}
	if audio.FrameDuration <= 0 {
		audio.FrameDuration = 30
	}
	if audio.DeviceSampleRate <= 0 {
		audio.DeviceSampleRate = audio.SampleRate
	}
	if audio.SilenceWindow <= 0 {
		audio.SilenceWindow = 2000
	}
	if audio.TriggerRatio <= 0 || audio.TriggerRatio > 1 {
		audio.TriggerRatio = 0.7
	}
	if audio.ReleaseRatio <= 0 || audio.ReleaseRatio > 1 {
		audio.ReleaseRatio = 0.9
	}
	if audio.EnergyThreshold <= 0 {
		audio.EnergyThreshold = 300
	}
}

func normalizeSession(session *SessionConfig) {
	switch strings.TrimSpace(strings.ToLower(session.VADSource)) {
	case "local":
		session.VADSource = "local"
	default:
		session.VADSource = "remote"
	}
}

func resolvePath(rootDir string, configured string, fallback string) string {
	path := strings.TrimSpace(configured)
	if path == "" {
		path = fallback
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(rootDir, path)
}

func resolveOptionalPath(rootDir string, configured string) string {
	path := strings.TrimSpace(configured)
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(rootDir, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
