package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/cuemby/burrow/pkg/log"
)

// Recognized option keys. Keys outside this set are ignored with a
// startup warning.
const (
	KeyBlockchainGatewayURL   = "BLOCKCHAIN_GATEWAY_URL"
	KeyBlockchainGenesisBlock = "BLOCKCHAIN_GENESIS_BLOCK"
	KeyBlockchainSyncInterval = "BLOCKCHAIN_SYNC_INTERVAL_MS"
	KeyPeerList               = "PEER_LIST"
	KeyPeerSyncInterval       = "PEER_SYNC_INTERVAL_MS"
	KeyHTTPClientRecycle      = "HTTP_CLIENT_RECYCLE_MS"
	KeyQueryDefaultLimit      = "QUERY_DEFAULT_LIMIT"
	KeyQueryMaxResolveDepth   = "QUERY_MAX_RESOLVE_DEPTH"
	KeyJobTTL                 = "JOB_TTL_MS"
	KeyPrivateKeyPath         = "PRIVATE_KEY_PATH"
	KeySystemTag              = "SYSTEM_TAG"
	KeyAPIListenAddr          = "API_LISTEN_ADDR"
	KeyAPIBearerTokens        = "API_BEARER_TOKENS"
	KeyDataDir                = "DATA_DIR"
	KeyLogLevel               = "LOG_LEVEL"
	KeyLogFile                = "LOG_FILE"
	KeyExternalMirrorURL      = "EXTERNAL_MIRROR_URL"
	KeyGunRelayURL            = "GUN_RELAY_URL"
)

var recognizedKeys = []string{
	KeyBlockchainGatewayURL,
	KeyBlockchainGenesisBlock,
	KeyBlockchainSyncInterval,
	KeyPeerList,
	KeyPeerSyncInterval,
	KeyHTTPClientRecycle,
	KeyQueryDefaultLimit,
	KeyQueryMaxResolveDepth,
	KeyJobTTL,
	KeyPrivateKeyPath,
	KeySystemTag,
	KeyAPIListenAddr,
	KeyAPIBearerTokens,
	KeyDataDir,
	KeyLogLevel,
	KeyLogFile,
	KeyExternalMirrorURL,
	KeyGunRelayURL,
}

// Config holds all daemon settings.
type Config struct {
	BlockchainGatewayURL   string
	BlockchainGenesisBlock int64
	BlockchainSyncInterval time.Duration
	PeerList               []string
	PeerSyncInterval       time.Duration
	HTTPClientRecycle      time.Duration
	QueryDefaultLimit      int
	QueryMaxResolveDepth   int
	JobTTL                 time.Duration
	PrivateKeyPath         string
	SystemTag              string
	APIListenAddr          string
	APIBearerTokens        map[string]string // token -> public key
	DataDir                string
	LogLevel               string
	LogFile                string
	ExternalMirrorURL      string
	GunRelayURL            string

	// Warnings collected during load: unknown file keys, odd values.
	Warnings []string
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		BlockchainGatewayURL:   "https://arweave.net",
		BlockchainGenesisBlock: 0,
		BlockchainSyncInterval: 30 * time.Second,
		PeerSyncInterval:       15 * time.Minute,
		HTTPClientRecycle:      30 * time.Minute,
		QueryDefaultLimit:      20,
		QueryMaxResolveDepth:   5,
		JobTTL:                 24 * time.Hour,
		SystemTag:              "oip",
		APIListenAddr:          ":9000",
		APIBearerTokens:        map[string]string{},
		DataDir:                "/var/lib/burrow",
		LogLevel:               "info",
	}
}

// Load reads configuration from the environment and, when path is
// non-empty, a YAML file. Environment values win over file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault(lower(KeyBlockchainGatewayURL), def.BlockchainGatewayURL)
	v.SetDefault(lower(KeyBlockchainGenesisBlock), def.BlockchainGenesisBlock)
	v.SetDefault(lower(KeyBlockchainSyncInterval), int64(def.BlockchainSyncInterval/time.Millisecond))
	v.SetDefault(lower(KeyPeerList), "")
	v.SetDefault(lower(KeyPeerSyncInterval), int64(def.PeerSyncInterval/time.Millisecond))
	v.SetDefault(lower(KeyHTTPClientRecycle), int64(def.HTTPClientRecycle/time.Millisecond))
	v.SetDefault(lower(KeyQueryDefaultLimit), def.QueryDefaultLimit)
	v.SetDefault(lower(KeyQueryMaxResolveDepth), def.QueryMaxResolveDepth)
	v.SetDefault(lower(KeyJobTTL), int64(def.JobTTL/time.Millisecond))
	v.SetDefault(lower(KeyPrivateKeyPath), "")
	v.SetDefault(lower(KeySystemTag), def.SystemTag)
	v.SetDefault(lower(KeyAPIListenAddr), def.APIListenAddr)
	v.SetDefault(lower(KeyAPIBearerTokens), "")
	v.SetDefault(lower(KeyDataDir), def.DataDir)
	v.SetDefault(lower(KeyLogLevel), def.LogLevel)
	v.SetDefault(lower(KeyLogFile), "")
	v.SetDefault(lower(KeyExternalMirrorURL), "")
	v.SetDefault(lower(KeyGunRelayURL), "")

	// Each recognized key binds to the environment variable of the same
	// name. Binding is explicit so the closed set stays closed.
	for _, key := range recognizedKeys {
		if err := v.BindEnv(lower(key), key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var warnings []string
	if path != "" {
		v.SetConfigType("yaml")
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		warnings = append(warnings, unknownKeys(v)...)
	}

	cfg := &Config{
		BlockchainGatewayURL:   v.GetString(lower(KeyBlockchainGatewayURL)),
		BlockchainGenesisBlock: v.GetInt64(lower(KeyBlockchainGenesisBlock)),
		BlockchainSyncInterval: time.Duration(v.GetInt64(lower(KeyBlockchainSyncInterval))) * time.Millisecond,
		PeerList:               splitURLList(v.GetString(lower(KeyPeerList))),
		PeerSyncInterval:       time.Duration(v.GetInt64(lower(KeyPeerSyncInterval))) * time.Millisecond,
		HTTPClientRecycle:      time.Duration(v.GetInt64(lower(KeyHTTPClientRecycle))) * time.Millisecond,
		QueryDefaultLimit:      v.GetInt(lower(KeyQueryDefaultLimit)),
		QueryMaxResolveDepth:   v.GetInt(lower(KeyQueryMaxResolveDepth)),
		JobTTL:                 time.Duration(v.GetInt64(lower(KeyJobTTL))) * time.Millisecond,
		PrivateKeyPath:         v.GetString(lower(KeyPrivateKeyPath)),
		SystemTag:              v.GetString(lower(KeySystemTag)),
		APIListenAddr:          v.GetString(lower(KeyAPIListenAddr)),
		APIBearerTokens:        parseTokenMap(v.GetString(lower(KeyAPIBearerTokens))),
		DataDir:                v.GetString(lower(KeyDataDir)),
		LogLevel:               v.GetString(lower(KeyLogLevel)),
		LogFile:                v.GetString(lower(KeyLogFile)),
		ExternalMirrorURL:      v.GetString(lower(KeyExternalMirrorURL)),
		GunRelayURL:            v.GetString(lower(KeyGunRelayURL)),
		Warnings:               warnings,
	}

	if cfg.GunRelayURL == "" && len(cfg.PeerList) > 0 {
		cfg.GunRelayURL = cfg.PeerList[0]
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var issues []string
	if c.BlockchainSyncInterval <= 0 {
		issues = append(issues, KeyBlockchainSyncInterval+": must be positive")
	}
	if c.PeerSyncInterval <= 0 {
		issues = append(issues, KeyPeerSyncInterval+": must be positive")
	}
	if c.HTTPClientRecycle <= 0 {
		issues = append(issues, KeyHTTPClientRecycle+": must be positive")
	}
	if c.QueryDefaultLimit < 0 {
		issues = append(issues, KeyQueryDefaultLimit+": must be non-negative")
	}
	if c.QueryMaxResolveDepth < 0 {
		issues = append(issues, KeyQueryMaxResolveDepth+": must be non-negative")
	}
	if c.BlockchainGenesisBlock < 0 {
		issues = append(issues, KeyBlockchainGenesisBlock+": must be non-negative")
	}
	if c.JobTTL <= 0 {
		issues = append(issues, KeyJobTTL+": must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, KeyLogLevel+": must be one of debug, info, warn, error")
	}
	if len(issues) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(issues, "; "))
	}
	return nil
}

// LogWarnings emits collected load warnings through the global logger.
func (c *Config) LogWarnings() {
	for _, w := range c.Warnings {
		log.Logger.Warn().Str("component", "config").Msg(w)
	}
}

// unknownKeys lists file keys outside the recognized set. Viper
// lowercases keys, so comparison is case-insensitive.
func unknownKeys(v *viper.Viper) []string {
	known := make(map[string]bool, len(recognizedKeys))
	for _, k := range recognizedKeys {
		known[lower(k)] = true
	}
	var warns []string
	for _, k := range v.AllKeys() {
		if !known[k] {
			warns = append(warns, fmt.Sprintf("unknown config key %q ignored", k))
		}
	}
	return warns
}

// Watch re-loads the config file on change and delivers the result to
// onChange. Only peer-list changes are meant to be applied at runtime;
// callers decide what to pick up. Returns a stop function.
func Watch(path string, onChange func(*Config)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watch: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config watch %s: %w", path, err)
	}

	logger := log.WithComponent("config")
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Warn().Err(err).Msg("config reload failed, keeping previous")
					continue
				}
				logger.Info().Msg("config reloaded")
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("config watcher error")
			}
		}
	}()

	return func() { watcher.Close() }, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitURLList normalizes peer URLs by dropping trailing slashes so that
// path joins stay predictable.
func splitURLList(s string) []string {
	urls := splitList(s)
	for i, u := range urls {
		urls[i] = strings.TrimRight(u, "/")
	}
	return urls
}

// parseTokenMap parses "token=publicKey,token2=key2".
func parseTokenMap(s string) map[string]string {
	out := map[string]string{}
	for _, pair := range splitList(s) {
		tok, key, ok := strings.Cut(pair, "=")
		if !ok || tok == "" || key == "" {
			continue
		}
		out[tok] = key
	}
	return out
}

func lower(k string) string { return strings.ToLower(k) }
