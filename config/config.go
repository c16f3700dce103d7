// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers

// Package config defines the miner configuration and its loading stages:
// hardcoded defaults, an optional ini config file, and command line flags,
// each overriding the previous one.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"

	"github.com/whonion/scavenger-miner/ashmaize"
	"github.com/whonion/scavenger-miner/client"
	"github.com/whonion/scavenger-miner/worker"
)

const (
	defaultDataDirname = "data"
	defaultLogDirname  = "logs"
	defaultStatusDir   = "status"

	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10
	defaultNumWorkers     = 2

	defaultDevPoolURL      = "http://193.23.209.106:8000"
	defaultDevPoolPassword = "MM25"

	ledgerFilename   = "challenges.json"
	walletsFilename  = "wallets.json"
	outboxFilename   = "solutions.csv"
	devCacheFilename = "dev_addresses.json"
)

// Config defines the configuration options for the miner.
//
// See SetupConfig for details of the loading and path expansion process.
type Config struct {
	MinerDir       string `long:"minerdir"       description:"The base directory that contains the miner's data, logs and configuration file"`
	ConfigFile     string `long:"configfile"     description:"Path to configuration file"                                                     short:"c"`
	DataDir        string `long:"datadir"        description:"The directory to store wallets, the challenge ledger and the outbox within"    short:"b"`
	LogDir         string `long:"logdir"         description:"Directory to log output"`
	DebugLog       bool   `long:"debuglog"       description:"Enable debug logs"`
	JSONLog        bool   `long:"jsonlog"        description:"Whether to log in JSON format"`
	MaxLogFiles    int    `long:"maxlogfiles"    description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Maximum logfile size in MB"`

	NumWorkers  int     `long:"workers"      description:"Number of mining worker processes"    short:"n"`
	ServiceURL  string  `long:"service-url"  description:"Base URL of the scavenger service"`
	MetricsPort *uint16 `long:"metrics-port" description:"The port to expose metrics"`

	Donation DonationConfig `group:"Donation" namespace:"donation"`
	Engine   EngineConfig   `group:"Engine"   namespace:"engine"`
	Worker   WorkerConfig   `group:"Worker"   namespace:"worker"`
}

// DonationConfig controls the fraction of mining passes credited to the
// project's donation pool.
type DonationConfig struct {
	Disabled     bool    `long:"disabled"      description:"Disable donating a fraction of mining passes"`
	Rate         float64 `long:"rate"          description:"Probability that a mining pass is donated"`
	PoolURL      string  `long:"pool-url"      description:"Donation pool service URL"`
	PoolPassword string  `long:"pool-password" description:"Donation pool access password"`
}

// EngineConfig sizes the hash engine's ROM. The defaults match the network
// parameters; tests shrink them.
type EngineConfig struct {
	ROMSize      int `long:"rom-size"      description:"ROM size in bytes (power of two)"`
	PreSize      int `long:"pre-size"      description:"Pre-buffer size in bytes (power of two)"`
	MixingRounds int `long:"mixing-rounds" description:"Number of ROM mixing rounds"`
}

// WorkerConfig is set by the supervisor when it re-executes the binary as a
// pool worker; it is not meant to be set by hand. A non-empty address selects
// worker mode.
type WorkerConfig struct {
	Slot       int    `long:"slot"       description:"Worker slot index"                 hidden:"true"`
	Address    string `long:"address"    description:"Wallet address to mine for"        hidden:"true"`
	DevAddress string `long:"devaddress" description:"Donation address for this slot"    hidden:"true"`
}

// WorkerMode reports whether this process was started as a pool worker.
func (c *Config) WorkerMode() bool {
	return c.Worker.Address != ""
}

func (c *Config) LedgerFile() string   { return filepath.Join(c.DataDir, ledgerFilename) }
func (c *Config) WalletsFile() string  { return filepath.Join(c.DataDir, walletsFilename) }
func (c *Config) OutboxFile() string   { return filepath.Join(c.DataDir, outboxFilename) }
func (c *Config) DevCacheFile() string { return filepath.Join(c.DataDir, devCacheFilename) }
func (c *Config) StatusDir() string    { return filepath.Join(c.DataDir, defaultStatusDir) }

// DefaultConfig returns a config with default hardcoded values.
func DefaultConfig() *Config {
	minerDir := "./scavminer"
	cacheDir, err := os.UserCacheDir()
	if err == nil {
		minerDir = filepath.Join(cacheDir, "scavminer")
	}

	return &Config{
		MinerDir:       minerDir,
		DataDir:        filepath.Join(minerDir, defaultDataDirname),
		LogDir:         filepath.Join(minerDir, defaultLogDirname),
		MaxLogFiles:    defaultMaxLogFiles,
		MaxLogFileSize: defaultMaxLogFileSize,
		NumWorkers:     defaultNumWorkers,
		ServiceURL:     client.DefaultBaseURL,
		Donation: DonationConfig{
			Rate:         worker.DefaultDonationRate,
			PoolURL:      defaultDevPoolURL,
			PoolPassword: defaultDevPoolPassword,
		},
		Engine: EngineConfig{
			ROMSize:      ashmaize.DefaultSize,
			PreSize:      ashmaize.DefaultPreSize,
			MixingRounds: ashmaize.DefaultMixingRounds,
		},
	}
}

// ParseFlags reads values from command line arguments.
func ParseFlags(preCfg *Config) (*Config, error) {
	if _, err := flags.Parse(preCfg); err != nil {
		return nil, err
	}
	return preCfg, nil
}

// ReadConfigFile reads config from an ini file.
// It uses the provided `cfg` as a base config and overrides it with the
// values from the config file.
func ReadConfigFile(cfg *Config) (*Config, error) {
	if cfg.ConfigFile == "" {
		return cfg, nil
	}
	if err := flags.IniParse(cfg.ConfigFile, cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from %v: %w", cfg.ConfigFile, err)
	}
	return cfg, nil
}

// SetupConfig expands paths and initializes the filesystem.
func SetupConfig(cfg *Config) (*Config, error) {
	// If the provided miner directory is not the default, move the derived
	// directories along with it unless they were set explicitly.
	defaultCfg := DefaultConfig()
	if cfg.MinerDir != defaultCfg.MinerDir {
		if cfg.DataDir == defaultCfg.DataDir {
			cfg.DataDir = filepath.Join(cfg.MinerDir, defaultDataDirname)
		}
		if cfg.LogDir == defaultCfg.LogDir {
			cfg.LogDir = filepath.Join(cfg.MinerDir, defaultLogDirname)
		}
	}

	cfg.MinerDir = cleanAndExpandPath(cfg.MinerDir)
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	for _, dir := range []string{cfg.MinerDir, cfg.DataDir, cfg.LogDir, cfg.StatusDir()} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create %v: %w", dir, err)
		}
	}
	return cfg, nil
}

// WorkerFlags renders the shared flags a spawned worker inherits so it
// operates on the same files and service as the supervisor.
func (c *Config) WorkerFlags() []string {
	args := []string{
		"--minerdir", c.MinerDir,
		"--datadir", c.DataDir,
		"--logdir", c.LogDir,
		"--service-url", c.ServiceURL,
		"--engine.rom-size", fmt.Sprintf("%d", c.Engine.ROMSize),
		"--engine.pre-size", fmt.Sprintf("%d", c.Engine.PreSize),
		"--engine.mixing-rounds", fmt.Sprintf("%d", c.Engine.MixingRounds),
		"--donation.rate", fmt.Sprintf("%g", c.Donation.Rate),
		"--donation.pool-url", c.Donation.PoolURL,
	}
	if c.DebugLog {
		args = append(args, "--debuglog")
	}
	if c.JSONLog {
		args = append(args, "--jsonlog")
	}
	if c.Donation.Disabled {
		args = append(args, "--donation.disabled")
	}
	if c.Donation.PoolPassword != "" {
		args = append(args, "--donation.pool-password", c.Donation.PoolPassword)
	}
	return args
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		user, err := user.Current()
		if err == nil {
			homeDir = user.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
