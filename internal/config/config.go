package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Storage     StorageConfig     `koanf:"storage"`
	Submission  SubmissionConfig  `koanf:"submission"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Experiments ExperimentsConfig `koanf:"experiments"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	// StaticDir optionally serves the browser client.
	StaticDir string `koanf:"static_dir"`
	// AdminToken protects the results endpoints. Empty leaves them open.
	AdminToken string `koanf:"admin_token"`
	// SessionIdleTimeout closes sessions without participant activity for
	// this long. Zero keeps them until shutdown.
	SessionIdleTimeout time.Duration `koanf:"session_idle_timeout"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// SubmissionConfig configures where finished data logs are sent.
type SubmissionConfig struct {
	// Timeout bounds a single store write or webhook call.
	Timeout time.Duration `koanf:"timeout"`
	Webhook WebhookConfig `koanf:"webhook"`
}

// WebhookConfig forwards data logs to an external collection service.
// Leave URL empty to disable.
type WebhookConfig struct {
	URL     string            `koanf:"url"`
	Headers map[string]string `koanf:"headers"` // values support ${VAR} substitution
	// AllowPrivate permits collectors on private or loopback addresses.
	AllowPrivate bool `koanf:"allow_private"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// ExperimentsConfig holds the per-variant stimuli and timing.
type ExperimentsConfig struct {
	Parity    ParityConfig    `koanf:"parity"`
	Encoding  EncodingConfig  `koanf:"encoding"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
}

// TimingConfig mirrors sequencer.Timing in configuration form.
type TimingConfig struct {
	LeadIn            time.Duration `koanf:"lead_in"`
	StimulusDuration  time.Duration `koanf:"stimulus_duration"`
	TrialDuration     time.Duration `koanf:"trial_duration"`
	ResponseTimeout   time.Duration `koanf:"response_timeout"`
	PostResponsePause time.Duration `koanf:"post_response_pause"`
	SettleDelay       time.Duration `koanf:"settle_delay"`
	RestFraction      float64       `koanf:"rest_fraction"`
	RestDuration      time.Duration `koanf:"rest_duration"`
}

type ParityConfig struct {
	TrialOrders [][]int      `koanf:"trial_orders"`
	Timing      TimingConfig `koanf:"timing"`
}

type EncodingConfig struct {
	StimulusDir string `koanf:"stimulus_dir"`
	// StimulusSets are rotated across the four presentation slots by the
	// counterbalance assignment.
	StimulusSets [][]string `koanf:"stimulus_sets"`
	// Bigger and Smaller list the items scored for accuracy.
	Bigger            []string     `koanf:"bigger"`
	Smaller           []string     `koanf:"smaller"`
	AccuracyThreshold float64      `koanf:"accuracy_threshold"`
	Timing            TimingConfig `koanf:"timing"`
}

type RetrievalConfig struct {
	StimulusDir string       `koanf:"stimulus_dir"`
	TrialOrders [][]string   `koanf:"trial_orders"`
	Timing      TimingConfig `koanf:"timing"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads configuration from path (optional) and STREAM_ environment
// variables, which override file values. Nested keys use a double
// underscore: STREAM_SERVER__PORT=9000.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	if err := k.Load(env.Provider("STREAM_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "STREAM_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	for name, value := range cfg.Submission.Webhook.Headers {
		cfg.Submission.Webhook.Headers[name] = substituteEnvVars(value)
	}

	return &cfg, nil
}

// setDefaults fills scalar defaults that are missing from every source.
func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":                 8080,
		"server.request_timeout":      "30s",
		"server.session_idle_timeout": "30m",
		"storage.type":                "sqlite",
		"storage.sqlite.path":         "./data/stream.db",
		"submission.timeout":          "10s",
		"telemetry.service_name":      "trial-stream",

		"experiments.parity.timing.post_response_pause": "500ms",
		"experiments.parity.timing.settle_delay":        "1500ms",

		"experiments.encoding.stimulus_dir":             "stim/",
		"experiments.encoding.accuracy_threshold":       0.7,
		"experiments.encoding.timing.lead_in":           "4s",
		"experiments.encoding.timing.stimulus_duration": "200ms",
		"experiments.encoding.timing.trial_duration":    "2200ms",
		"experiments.encoding.timing.settle_delay":      "1500ms",
		"experiments.encoding.timing.rest_fraction":     0.5,

		"experiments.retrieval.stimulus_dir":               "stim/",
		"experiments.retrieval.timing.post_response_pause": "500ms",
		"experiments.retrieval.timing.settle_delay":        "1500ms",
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}
}

// applyDefaults fills list defaults, which cannot be expressed as single
// koanf keys.
func applyDefaults(cfg *Config) {
	if len(cfg.Experiments.Parity.TrialOrders) == 0 {
		cfg.Experiments.Parity.TrialOrders = [][]int{
			{1, 3, 2, 5, 4, 9, 8, 7, 6},
			{8, 4, 3, 7, 5, 6, 2, 1, 9},
		}
	}
	if len(cfg.Experiments.Retrieval.TrialOrders) == 0 {
		cfg.Experiments.Retrieval.TrialOrders = [][]string{
			{"accordion", "altoid", "apple", "backpack"},
			{"backpack", "apple", "altoid", "accordion"},
		}
	}
	if len(cfg.Experiments.Encoding.StimulusSets) == 0 {
		cfg.Experiments.Encoding.StimulusSets = [][]string{
			{"accordion", "bed"},
			{"altoid", "button"},
			{"apple", "kite"},
			{"backpack", "ring"},
		}
	}
	if len(cfg.Experiments.Encoding.Bigger) == 0 && len(cfg.Experiments.Encoding.Smaller) == 0 {
		cfg.Experiments.Encoding.Bigger = []string{"bed", "accordion", "backpack"}
		cfg.Experiments.Encoding.Smaller = []string{"button", "altoid", "ring"}
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
