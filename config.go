package ircore

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Options is the opaque typed-accessor the core reads configuration
// through: the host application owns storage and
// `${var}`-expansion semantics, the core only calls these getters.
type Options interface {
	GetString(key, def string) string
	GetInt(key string, def int) int
	GetBool(key string, def bool) bool
	GetDuration(key string, def time.Duration) time.Duration
}

// MapOptions is the default Options implementation: a flat string map
// with `${VAR}` expansion against the process environment, layered
// beneath explicit overrides.
type MapOptions struct {
	values map[string]string
}

// NewMapOptions builds a MapOptions from a flat key/value map.
func NewMapOptions(values map[string]string) *MapOptions {
	return &MapOptions{values: values}
}

func (o *MapOptions) raw(key string) (string, bool) {
	if o == nil || o.values == nil {
		return "", false
	}
	v, ok := o.values[key]
	if !ok {
		return "", false
	}
	return os.Expand(v, os.Getenv), true
}

func (o *MapOptions) GetString(key, def string) string {
	if v, ok := o.raw(key); ok {
		return v
	}
	return def
}

func (o *MapOptions) GetInt(key string, def int) int {
	if v, ok := o.raw(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (o *MapOptions) GetBool(key string, def bool) bool {
	if v, ok := o.raw(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func (o *MapOptions) GetDuration(key string, def time.Duration) time.Duration {
	if v, ok := o.raw(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}

// TLSSettings mirrors the TLS-settings attributes of Server.
type TLSSettings struct {
	Enabled     bool
	CertPath    string
	Password    string
	Priorities  string
	DHKeySize   int
	Fingerprint string
	Verify      bool
}

// SASLSettings holds the SASL authentication parameters for a Server.
type SASLSettings struct {
	Mechanism SASLMechanism
	Username  string
	Password  string
	AuthZID   string
	KeyFile   string
	Timeout   time.Duration
	Fail      SASLFailPolicy
	Required  bool
}

// ServerConfig is the complete, resolved configuration for one Server,
// gathered from Options's selection of option keys.
type ServerConfig struct {
	Name string

	// Addresses is the ordered, eval-expanded host:port list (option
	// `addresses`); "fake:" prefixed entries create a no-socket test
	// server.
	Addresses []string
	Proxy     string
	IPv6      bool

	TLS  TLSSettings
	SASL SASLSettings

	Password string

	Capabilities []string

	Nicks          []string
	NicksAlternate bool
	Username       string
	Realname       string
	LocalHostname  string
	Usermode       string

	Command        string
	CommandDelay   time.Duration
	Autojoin       []string
	AutojoinDelay  time.Duration
	AutojoinDynamic bool
	Autorejoin      bool
	AutorejoinDelay time.Duration

	Autoconnect   bool
	Autoreconnect bool
	ReconnectDelay time.Duration
	ReconnectGrowth float64
	ReconnectMax    time.Duration

	ConnectionTimeout time.Duration
	AntiFlood         time.Duration

	AwayCheck         time.Duration
	AwayCheckMaxNicks int

	MsgKick  string
	MsgPart  string
	MsgQuit  string

	Notify []string

	SplitMsgMaxLength int
	CharsetMessage    string
	DefaultChanTypes  string
	RegisteredMode    string

	// Debug, like girc.Config.Debug, is an io.Writer the core logs raw
	// traffic and lifecycle events to; default io.Discard.
	Debug io.Writer
}

// LoadServerConfig resolves a ServerConfig from an Options accessor,
// applying the defaults.
func LoadServerConfig(name string, opt Options) (*ServerConfig, error) {
	if name == "" {
		return nil, &ConfigError{Field: "name", Reason: "must not be empty"}
	}

	addrs := splitNonEmpty(opt.GetString("addresses", ""), ",")
	if len(addrs) == 0 {
		return nil, &ConfigError{Field: "addresses", Reason: "at least one address is required"}
	}

	cfg := &ServerConfig{
		Name:      name,
		Addresses: addrs,
		Proxy:     opt.GetString("proxy", ""),
		IPv6:      opt.GetBool("ipv6", true),

		TLS: TLSSettings{
			Enabled:     opt.GetBool("tls", false),
			CertPath:    opt.GetString("tls_cert", ""),
			Password:    opt.GetString("tls_password", ""),
			Priorities:  opt.GetString("tls_priorities", ""),
			DHKeySize:   opt.GetInt("tls_dhkey_size", 2048),
			Fingerprint: opt.GetString("tls_fingerprint", ""),
			Verify:      opt.GetBool("tls_verify", true),
		},

		SASL: SASLSettings{
			Mechanism: SASLMechanism(strings.ToUpper(opt.GetString("sasl_mechanism", ""))),
			Username:  opt.GetString("sasl_username", ""),
			Password:  opt.GetString("sasl_password", ""),
			KeyFile:   opt.GetString("sasl_key", ""),
			Timeout:   opt.GetDuration("sasl_timeout", defaultSASLTimeout),
			Fail:      parseSASLFail(opt.GetString("sasl_fail", "continue")),
		},

		Password: opt.GetString("password", ""),

		Capabilities: splitNonEmpty(opt.GetString("capabilities", ""), ","),

		Nicks:          splitNonEmpty(opt.GetString("nicks", ""), ","),
		NicksAlternate: opt.GetBool("nicks_alternate", true),
		Username:       opt.GetString("username", "ircore"),
		Realname:       opt.GetString("realname", "ircore"),
		LocalHostname:  opt.GetString("local_hostname", ""),
		Usermode:       opt.GetString("usermode", ""),

		Command:         opt.GetString("command", ""),
		CommandDelay:    opt.GetDuration("command_delay", 0),
		Autojoin:        splitNonEmpty(opt.GetString("autojoin", ""), ","),
		AutojoinDelay:   opt.GetDuration("autojoin_delay", 0),
		AutojoinDynamic: opt.GetBool("autojoin_dynamic", false),
		Autorejoin:      opt.GetBool("autorejoin", true),
		AutorejoinDelay: opt.GetDuration("autorejoin_delay", 30*time.Second),

		Autoconnect:     opt.GetBool("autoconnect", true),
		Autoreconnect:   opt.GetBool("autoreconnect", true),
		ReconnectDelay:  opt.GetDuration("autoreconnect_delay", 10*time.Second),
		ReconnectGrowth: float64(opt.GetInt("autoreconnect_growth", 2)),
		ReconnectMax:    opt.GetDuration("autoreconnect_max", 2*time.Minute),

		ConnectionTimeout: opt.GetDuration("connection_timeout", 60*time.Second),
		AntiFlood:         opt.GetDuration("anti_flood", 500*time.Millisecond),

		AwayCheck:         opt.GetDuration("away_check", 0),
		AwayCheckMaxNicks: opt.GetInt("away_check_max_nicks", 0),

		MsgKick: opt.GetString("msg_kick", ""),
		MsgPart: opt.GetString("msg_part", ""),
		MsgQuit: opt.GetString("msg_quit", ""),

		Notify: splitNonEmpty(opt.GetString("notify", ""), ","),

		SplitMsgMaxLength: opt.GetInt("split_msg_max_length", maxWireLength),
		CharsetMessage:    opt.GetString("charset_message", "message"),
		DefaultChanTypes:  opt.GetString("default_chantypes", defaultChanTypes),
		RegisteredMode:    opt.GetString("registered_mode", ""),

		Debug: io.Discard,
	}

	if len(cfg.Nicks) == 0 {
		cfg.Nicks = []string{cfg.Username}
	}

	cfg.SASL.Required = cfg.SASL.Mechanism != "" && hasString(cfg.Capabilities, "sasl")

	return cfg, nil
}

func parseSASLFail(s string) SASLFailPolicy {
	switch strings.ToLower(s) {
	case "reconnect":
		return SASLFailReconnect
	case "disconnect":
		return SASLFailDisconnect
	default:
		return SASLFailContinue
	}
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func hasString(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
