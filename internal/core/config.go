package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

const (
	BaseDirName    = ".config/greenroom"
	PidFileName    = "daemon.pid"
	SocketName     = "daemon.sock"
	DatabaseName   = "greenroom.db"
	ConfigFileName = "greenroom.hcl"
)

// Config is the global configuration instance
var Config *Configuration

// Configuration represents the complete greenroom daemon configuration
type Configuration struct {
	ConfigPath string // Directory containing config file, socket, pid file and database
	Verbose    int    // Verbosity level

	Queue  QueueConfig  // Waiting room tuning
	Server ServerConfig // Supervised dev server tuning
	Boot   BootConfig   // Boot saga tuning
}

// QueueConfig tunes the admission controller
type QueueConfig struct {
	LivenessWindow time.Duration // Sessions silent longer than this are expired
	SweepInterval  time.Duration // How often the background sweep runs
}

// ServerConfig tunes the process supervisor
type ServerConfig struct {
	StopGrace  time.Duration // Time between SIGTERM and SIGKILL
	LogHistory int           // Number of log lines kept in the ring
}

// BootConfig tunes the boot orchestrator
type BootConfig struct {
	SettleDelay  time.Duration // Wait after process start before verification
	TunnelWait   time.Duration // Max time to wait for a tunnel URL
	NgrokAPIAddr string        // Local ngrok inspection API
}

// HCL parsing structs

type hclConfig struct {
	Verbose int        `hcl:"verbose,optional"`
	Queue   *hclQueue  `hcl:"queue,block"`
	Server  *hclServer `hcl:"server,block"`
	Boot    *hclBoot   `hcl:"boot,block"`
}

type hclQueue struct {
	LivenessWindow string `hcl:"liveness_window,optional"`
	SweepInterval  string `hcl:"sweep_interval,optional"`
}

type hclServer struct {
	StopGrace  string `hcl:"stop_grace,optional"`
	LogHistory int    `hcl:"log_history,optional"`
}

type hclBoot struct {
	SettleDelay  string `hcl:"settle_delay,optional"`
	TunnelWait   string `hcl:"tunnel_wait,optional"`
	NgrokAPIAddr string `hcl:"ngrok_api_addr,optional"`
}

// GetDefaultConfig returns a Configuration with default values
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Queue: QueueConfig{
			LivenessWindow: 30 * time.Second,
			SweepInterval:  5 * time.Second,
		},
		Server: ServerConfig{
			StopGrace:  5 * time.Second,
			LogHistory: 200,
		},
		Boot: BootConfig{
			SettleDelay:  2 * time.Second,
			TunnelWait:   15 * time.Second,
			NgrokAPIAddr: "http://localhost:4040",
		},
	}
}

// LoadConfig loads the HCL configuration file and returns a Configuration
// struct with defaults applied for anything the file leaves out.
func LoadConfig(filename string) (*Configuration, error) {
	var hclCfg hclConfig

	err := hclsimple.DecodeFile(filename, nil, &hclCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HCL config: %w", err)
	}

	cfg := GetDefaultConfig()
	cfg.Verbose = hclCfg.Verbose

	if hclCfg.Queue != nil {
		if err := applyDuration(&cfg.Queue.LivenessWindow, hclCfg.Queue.LivenessWindow); err != nil {
			return nil, fmt.Errorf("queue.liveness_window: %w", err)
		}
		if err := applyDuration(&cfg.Queue.SweepInterval, hclCfg.Queue.SweepInterval); err != nil {
			return nil, fmt.Errorf("queue.sweep_interval: %w", err)
		}
	}

	if hclCfg.Server != nil {
		if err := applyDuration(&cfg.Server.StopGrace, hclCfg.Server.StopGrace); err != nil {
			return nil, fmt.Errorf("server.stop_grace: %w", err)
		}
		if hclCfg.Server.LogHistory > 0 {
			cfg.Server.LogHistory = hclCfg.Server.LogHistory
		}
	}

	if hclCfg.Boot != nil {
		if err := applyDuration(&cfg.Boot.SettleDelay, hclCfg.Boot.SettleDelay); err != nil {
			return nil, fmt.Errorf("boot.settle_delay: %w", err)
		}
		if err := applyDuration(&cfg.Boot.TunnelWait, hclCfg.Boot.TunnelWait); err != nil {
			return nil, fmt.Errorf("boot.tunnel_wait: %w", err)
		}
		if hclCfg.Boot.NgrokAPIAddr != "" {
			cfg.Boot.NgrokAPIAddr = hclCfg.Boot.NgrokAPIAddr
		}
	}

	return cfg, nil
}

// applyDuration parses value into dst when value is non-empty
func applyDuration(dst *time.Duration, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// InitializeConfig establishes the global Config for the given config
// directory. A missing config file is not an error, defaults apply.
func InitializeConfig(configPath string, verbose int) error {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to determine home directory: %w", err)
		}
		configPath = filepath.Join(home, BaseDirName)
	}

	if err := os.MkdirAll(configPath, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configPath, ConfigFileName)
	if _, err := os.Stat(configFile); err == nil {
		cfg, err := LoadConfig(configFile)
		if err != nil {
			return err
		}
		Config = cfg
	} else {
		Config = GetDefaultConfig()
	}

	Config.ConfigPath = configPath
	if verbose > Config.Verbose {
		Config.Verbose = verbose
	}

	return nil
}

func GetConfigFilePath() string {
	return filepath.Join(Config.ConfigPath, ConfigFileName)
}

func GetSocketPath() string {
	return filepath.Join(Config.ConfigPath, SocketName)
}

func GetPIDFilePath() string {
	return filepath.Join(Config.ConfigPath, PidFileName)
}

func GetDatabasePath() string {
	return filepath.Join(Config.ConfigPath, DatabaseName)
}
