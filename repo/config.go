// Copyright (c) 2024 Frontier Labs
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package repo

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"
)

const (
	// DefaultLogFilename is the name of the rotated server log file.
	DefaultLogFilename = "indexer.log"
	// DefaultConfigFilename is the name of the optional ini config file.
	DefaultConfigFilename = "indexer.conf"
	// DefaultListenAddr is the default address of the query API.
	DefaultListenAddr = "127.0.0.1:8765"
	// DefaultFrontierDepth is the default finality depth K.
	DefaultFrontierDepth = 290
)

// DefaultHomeDir is the default data directory.
var DefaultHomeDir = defaultHomeDir()

func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".indexer"
	}
	return filepath.Join(home, ".indexer")
}

// Config defines the configuration options for the indexer server.
//
// Options may come from the command line or from an ini config file; the
// command line takes precedence. Directory options left empty are derived
// from the data directory by Finalize.
type Config struct {
	ConfigFile      string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir         string `short:"d" long:"datadir" description:"Directory to store indexer data"`
	DatabaseDir     string `long:"database-dir" description:"Directory for the persistent chain store (default <datadir>/db)"`
	LogDir          string `long:"log-dir" description:"Directory to log output (default <datadir>/logs)"`
	LogLevel        string `short:"l" long:"log-level" description:"Set the logging level [debug, info, warning, error] (default info)"`
	InitialLedger   string `long:"initial-ledger" description:"Path to the genesis account set JSON file"`
	IsGenesisLedger bool   `long:"is-genesis-ledger" description:"Initialize the store fresh from the initial ledger instead of resuming"`
	RootHash        string `long:"root-hash" description:"Expected genesis/root state hash in hex"`
	StartupDir      string `long:"startup-dir" description:"Directory of precomputed block files to bulk load at startup"`
	WatchDir        string `long:"watch-dir" description:"Directory to watch for new precomputed block files"`
	Listen          string `long:"listen" description:"Listen address for the query API (default 127.0.0.1:8765)"`
	FrontierDepth   uint32 `long:"frontier-depth" description:"Finality depth K: blocks deeper than K below the best tip are finalized (default 290)"`
}

// Finalize fills in derived defaults and validates the configuration.
func (cfg *Config) Finalize() error {
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultHomeDir
	}
	cfg.DataDir = CleanAndExpandPath(cfg.DataDir)
	if cfg.DatabaseDir == "" {
		cfg.DatabaseDir = path.Join(cfg.DataDir, "db")
	}
	cfg.DatabaseDir = CleanAndExpandPath(cfg.DatabaseDir)
	if cfg.LogDir == "" {
		cfg.LogDir = path.Join(cfg.DataDir, "logs")
	}
	cfg.LogDir = CleanAndExpandPath(cfg.LogDir)
	if cfg.StartupDir != "" {
		cfg.StartupDir = CleanAndExpandPath(cfg.StartupDir)
	}
	if cfg.WatchDir != "" {
		cfg.WatchDir = CleanAndExpandPath(cfg.WatchDir)
	}
	if cfg.InitialLedger != "" {
		cfg.InitialLedger = CleanAndExpandPath(cfg.InitialLedger)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListenAddr
	}
	if cfg.FrontierDepth == 0 {
		cfg.FrontierDepth = DefaultFrontierDepth
	}

	if cfg.IsGenesisLedger && cfg.InitialLedger == "" {
		return errors.New("--is-genesis-ledger requires --initial-ledger")
	}

	for _, dir := range []string{cfg.DataDir, cfg.DatabaseDir, cfg.LogDir} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadConfig layers an optional ini config file under the command line
// options. There are three steps to this:
// 1. Start with a config populated with default values.
// 2. Override the default values with any provided config file options.
// 3. Override the first two with any provided command line options.
func LoadConfig(cliCfg *Config) (*Config, error) {
	cfg := *cliCfg
	configFile := DefaultConfigFile()
	if cfg.ConfigFile != "" {
		configFile = CleanAndExpandPath(cfg.ConfigFile)
	}
	if _, err := os.Stat(configFile); err == nil {
		var fileCfg Config
		parser := flags.NewParser(&fileCfg, flags.IgnoreUnknown)
		if err := flags.NewIniParser(parser).ParseFile(configFile); err != nil {
			return nil, err
		}
		mergeFileConfig(&cfg, &fileCfg)
	} else if cfg.ConfigFile != "" {
		// An explicitly requested config file must exist.
		return nil, err
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeFileConfig copies file options into cli for every option the command
// line left unset.
func mergeFileConfig(cli, file *Config) {
	if cli.DataDir == "" {
		cli.DataDir = file.DataDir
	}
	if cli.DatabaseDir == "" {
		cli.DatabaseDir = file.DatabaseDir
	}
	if cli.LogDir == "" {
		cli.LogDir = file.LogDir
	}
	if cli.LogLevel == "" {
		cli.LogLevel = file.LogLevel
	}
	if cli.InitialLedger == "" {
		cli.InitialLedger = file.InitialLedger
	}
	if !cli.IsGenesisLedger {
		cli.IsGenesisLedger = file.IsGenesisLedger
	}
	if cli.RootHash == "" {
		cli.RootHash = file.RootHash
	}
	if cli.StartupDir == "" {
		cli.StartupDir = file.StartupDir
	}
	if cli.WatchDir == "" {
		cli.WatchDir = file.WatchDir
	}
	if cli.Listen == "" {
		cli.Listen = file.Listen
	}
	if cli.FrontierDepth == 0 {
		cli.FrontierDepth = file.FrontierDepth
	}
}

// DefaultConfigFile returns the path of the config file inside the default
// home directory.
func DefaultConfigFile() string {
	return filepath.Join(DefaultHomeDir, DefaultConfigFilename)
}

// CleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func CleanAndExpandPath(p string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(p, "~") {
		homeDir := filepath.Dir(DefaultHomeDir)
		p = strings.Replace(p, "~", homeDir, 1)
	}

	// NOTE: os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(p))
}
