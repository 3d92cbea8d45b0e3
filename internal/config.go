package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cadence/internal/belief"
	"github.com/starford/cadence/internal/horizon"
	"github.com/starford/cadence/internal/metrics"
	"github.com/starford/cadence/internal/retrieval"
	"github.com/starford/cadence/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Embedding providers.
const (
	EmbeddingHash   = "hash"
	EmbeddingOpenAI = "openai"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Ingest    IngestConfig      `yaml:"ingest"`
	Athlete   AthleteConfig     `yaml:"athlete"`
	Metrics   MetricsConfig     `yaml:"metrics"`
	Horizon   HorizonConfig     `yaml:"horizon"`
	Beliefs   BeliefsConfig     `yaml:"beliefs"`
	Embedding EmbeddingConfig   `yaml:"embedding"`
	Events    EventsConfig      `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.SQLite, &c.Auth, &c.Ingest, &c.Athlete,
		&c.Metrics, &c.Horizon, &c.Beliefs, &c.Embedding, &c.Events,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// IngestConfig controls where recordings are read from and how.
type IngestConfig struct {
	Directory     string `yaml:"directory"`
	Pattern       string `yaml:"pattern"`
	Workers       int    `yaml:"workers"`
	Watch         bool   `yaml:"watch"`
	ImportOnStart bool   `yaml:"import_on_start"`
}

// Validate validates the ingest configuration.
func (c *IngestConfig) Validate() error {
	if c.Pattern == "" {
		c.Pattern = storage.DefaultPattern
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Directory, validation.Required),
		validation.Field(&c.Workers, validation.Min(0), validation.Max(64)),
	)
}

// AthleteConfig is the physiological baseline metrics are computed against.
type AthleteConfig struct {
	MaxHR         float64       `yaml:"max_hr"`
	RestHR        float64       `yaml:"rest_hr"`
	WeightKg      float64       `yaml:"weight_kg"`
	ThresholdPace time.Duration `yaml:"threshold_pace"` // per km; 0 when unknown
	Zones         []float64     `yaml:"zones"`
}

// Validate validates the athlete configuration.
func (c *AthleteConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.MaxHR, validation.Required, validation.Min(100.0), validation.Max(240.0)),
		validation.Field(&c.RestHR, validation.Required, validation.Min(25.0), validation.Max(120.0)),
		validation.Field(&c.WeightKg, validation.Min(0.0), validation.Max(300.0)),
		validation.Field(&c.ThresholdPace, validation.Min(time.Duration(0)), validation.Max(15*time.Minute)),
		validation.Field(&c.Zones, validation.Required, validation.Length(2, 11)),
	); err != nil {
		return err
	}
	if c.RestHR >= c.MaxHR {
		return errors.New("athlete: rest_hr must be below max_hr")
	}
	for i := 1; i < len(c.Zones); i++ {
		if c.Zones[i] <= c.Zones[i-1] {
			return errors.New("athlete: zones must be strictly ascending")
		}
	}
	if c.Zones[0] < 0 || c.Zones[len(c.Zones)-1] > 1 {
		return errors.New("athlete: zones must lie within [0,1]")
	}
	return nil
}

// Baseline converts the configuration into a metrics baseline.
func (c *AthleteConfig) Baseline() metrics.Baseline {
	return metrics.Baseline{
		MaxHR:         c.MaxHR,
		RestHR:        c.RestHR,
		WeightKg:      c.WeightKg,
		ThresholdPace: c.ThresholdPace.Seconds(),
		Zones:         c.Zones,
	}
}

// MetricsConfig holds the formula constants.
type MetricsConfig struct {
	TRIMPFactor          float64       `yaml:"trimp_factor"`
	TRIMPExponent        float64       `yaml:"trimp_exponent"`
	MovingSpeedThreshold float64       `yaml:"moving_speed_threshold"`
	MaxSampleGap         time.Duration `yaml:"max_sample_gap"`
	SustainedWindow      time.Duration `yaml:"sustained_window"`
	MinAerobicDuration   time.Duration `yaml:"min_aerobic_duration"`
	MinAerobicIntensity  float64       `yaml:"min_aerobic_intensity"`
}

// Validate validates the metrics configuration.
func (c *MetricsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TRIMPFactor, validation.Required, validation.Min(0.0)),
		validation.Field(&c.TRIMPExponent, validation.Required, validation.Min(0.0)),
		validation.Field(&c.MovingSpeedThreshold, validation.Min(0.0)),
		validation.Field(&c.MaxSampleGap, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.SustainedWindow, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.MinAerobicDuration, validation.Min(time.Duration(0))),
		validation.Field(&c.MinAerobicIntensity, validation.Min(0.0), validation.Max(1.0)),
	)
}

// Params converts the configuration into formula parameters.
func (c *MetricsConfig) Params() metrics.Params {
	return metrics.Params{
		TRIMPFactor:          c.TRIMPFactor,
		TRIMPExponent:        c.TRIMPExponent,
		MovingSpeedThreshold: c.MovingSpeedThreshold,
		MaxSampleGap:         c.MaxSampleGap.Seconds(),
		SustainedWindow:      c.SustainedWindow.Seconds(),
		MinAerobicDuration:   c.MinAerobicDuration.Seconds(),
		MinAerobicIntensity:  c.MinAerobicIntensity,
	}
}

// HorizonConfig controls window boundaries and trend classification.
type HorizonConfig struct {
	Timezone       string  `yaml:"timezone"`
	TrendThreshold float64 `yaml:"trend_threshold"`
}

// Validate validates the horizon configuration.
func (c *HorizonConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.TrendThreshold, validation.Min(0.0), validation.Max(1.0)),
	); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("horizon: timezone: %w", err)
	}
	return nil
}

// Engine returns the horizon engine configuration. An empty timezone is UTC.
func (c *HorizonConfig) Engine() (horizon.Config, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return horizon.Config{}, fmt.Errorf("horizon: timezone: %w", err)
	}
	return horizon.Config{Location: loc, TrendThreshold: c.TrendThreshold}, nil
}

// BeliefsConfig holds the confidence lifecycle and ranking parameters.
type BeliefsConfig struct {
	DefaultConfidence float64       `yaml:"default_confidence"`
	Step              float64       `yaml:"step"`
	Floor             float64       `yaml:"floor"`
	StalenessWindow   time.Duration `yaml:"staleness_window"`
	LexicalWeight     float64       `yaml:"lexical_weight"`
	SemanticWeight    float64       `yaml:"semantic_weight"`
	BM25K1            float64       `yaml:"bm25_k1"`
	BM25B             float64       `yaml:"bm25_b"`
}

// Validate validates the beliefs configuration.
func (c *BeliefsConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.DefaultConfidence, validation.Required, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.Step, validation.Required, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.Floor, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.StalenessWindow, validation.Required, validation.Min(time.Hour)),
		validation.Field(&c.LexicalWeight, validation.Min(0.0)),
		validation.Field(&c.SemanticWeight, validation.Min(0.0)),
		validation.Field(&c.BM25K1, validation.Min(0.0)),
		validation.Field(&c.BM25B, validation.Min(0.0), validation.Max(1.0)),
	); err != nil {
		return err
	}
	if c.LexicalWeight+c.SemanticWeight == 0 {
		return errors.New("beliefs: lexical_weight and semantic_weight cannot both be zero")
	}
	return nil
}

// Store returns the belief store configuration.
func (c *BeliefsConfig) Store() belief.Config {
	return belief.Config{
		DefaultConfidence: c.DefaultConfidence,
		Step:              c.Step,
		Floor:             c.Floor,
		StalenessWindow:   c.StalenessWindow,
		Weights:           retrieval.Weights{Lexical: c.LexicalWeight, Semantic: c.SemanticWeight},
	}
}

// BM25 returns the lexical scorer parameters.
func (c *BeliefsConfig) BM25() retrieval.BM25 {
	return retrieval.BM25{K1: c.BM25K1, B: c.BM25B}
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
}

// Validate validates the embedding configuration.
func (c *EmbeddingConfig) Validate() error {
	if c.Provider == "" {
		c.Provider = EmbeddingHash
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.In(EmbeddingHash, EmbeddingOpenAI)),
		validation.Field(&c.Model, validation.When(c.Provider == EmbeddingOpenAI, validation.Required)),
		validation.Field(&c.APIKey, validation.When(c.Provider == EmbeddingOpenAI && c.BaseURL == "", validation.Required)),
		validation.Field(&c.Dimensions, validation.Min(0), validation.Max(8192)),
		validation.Field(&c.MaxRetries, validation.Min(0), validation.Max(10)),
	)
}

// EventsConfig configures the outbound event sinks.
type EventsConfig struct {
	SSEThrottle time.Duration `yaml:"sse_throttle"`
	// OutboxSize bounds the queued events; further events are dropped.
	OutboxSize     int           `yaml:"outbox_size"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	Kafka          KafkaConfig   `yaml:"kafka"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.OutboxSize, validation.Required, validation.Min(1)),
		validation.Field(&c.PublishTimeout, validation.Required, validation.Min(time.Millisecond)),
	); err != nil {
		return err
	}
	return c.Kafka.Validate()
}

// KafkaConfig configures the Kafka event sink.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Validate validates the Kafka configuration.
func (c *KafkaConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Brokers, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Topic, validation.When(c.Enabled, validation.Required)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	b := metrics.DefaultBaseline()
	p := metrics.DefaultParams()
	bc := belief.DefaultConfig()
	bm := retrieval.DefaultBM25()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./cadence.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Ingest: IngestConfig{
			Directory:     "./activities",
			Pattern:       storage.DefaultPattern,
			Workers:       4,
			Watch:         true,
			ImportOnStart: true,
		},
		Athlete: AthleteConfig{
			MaxHR:  b.MaxHR,
			RestHR: b.RestHR,
			Zones:  b.Zones,
		},
		Metrics: MetricsConfig{
			TRIMPFactor:          p.TRIMPFactor,
			TRIMPExponent:        p.TRIMPExponent,
			MovingSpeedThreshold: p.MovingSpeedThreshold,
			MaxSampleGap:         seconds(p.MaxSampleGap),
			SustainedWindow:      seconds(p.SustainedWindow),
			MinAerobicDuration:   seconds(p.MinAerobicDuration),
			MinAerobicIntensity:  p.MinAerobicIntensity,
		},
		Horizon: HorizonConfig{
			Timezone:       "UTC",
			TrendThreshold: horizon.DefaultTrendThreshold,
		},
		Beliefs: BeliefsConfig{
			DefaultConfidence: bc.DefaultConfidence,
			Step:              bc.Step,
			Floor:             bc.Floor,
			StalenessWindow:   bc.StalenessWindow,
			LexicalWeight:     bc.Weights.Lexical,
			SemanticWeight:    bc.Weights.Semantic,
			BM25K1:            bm.K1,
			BM25B:             bm.B,
		},
		Embedding: EmbeddingConfig{
			Provider:   EmbeddingHash,
			Dimensions: 256,
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			BaseDelay:  time.Second,
		},
		Events: EventsConfig{
			SSEThrottle:    2 * time.Second,
			OutboxSize:     1024,
			PublishTimeout: 5 * time.Second,
			Kafka: KafkaConfig{
				Topic: "cadence.events",
			},
		},
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
