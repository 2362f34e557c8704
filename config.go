package vecfuse

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/vecfuse/builder"
	"github.com/hupe1980/vecfuse/fusion"
	"github.com/hupe1980/vecfuse/internal/compress"
	"github.com/hupe1980/vecfuse/model"
	"github.com/hupe1980/vecfuse/pagination"
	"github.com/hupe1980/vecfuse/rerank"
)

// Config is the engine configuration.
type Config struct {
	Fusion     FusionConfig     `yaml:"fusion"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Rerank     RerankConfig     `yaml:"rerank"`
	Pagination PaginationConfig `yaml:"pagination"`
	Build      BuildConfig      `yaml:"build"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
}

// LoadConfig reads a YAML file, expands environment variables and validates
// the result. Unset fields keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config data; see LoadConfig.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	// A configured weight map replaces the defaults instead of merging into them.
	defaults := cfg.Fusion.Weights
	cfg.Fusion.Weights = nil
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Fusion.Weights == nil {
		cfg.Fusion.Weights = defaults
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	w := fusion.DefaultWeights()
	return &Config{
		Fusion: FusionConfig{
			K:             w.K,
			WeightVersion: w.Version,
			Weights:       w.Weights,
		},
		Retrieval: RetrievalConfig{
			DefaultTopK:       100,
			MaxTopK:           1000,
			LexicalIDLikeOnly: true,
			DefaultModalities: []model.Modality{model.ModalityText, model.ModalityOCR, model.ModalityFTS},
			EncoderTimeout:    2 * time.Second,
			SearchTimeout:     5 * time.Second,
		},
		Rerank: RerankConfig{
			Enabled:       false,
			Timeout:       rerank.DefaultOptions.Timeout,
			MinCandidates: rerank.DefaultOptions.MinCandidates,
			MaxCandidates: rerank.DefaultOptions.MaxCandidates,
		},
		Pagination: PaginationConfig{
			DefaultPageLimit:   20,
			MaxPageLimit:       100,
			TopMomentsPerGroup: pagination.DefaultTopMomentsPerGroup,
		},
		Build: BuildConfig{
			Mode:            string(builder.ModeStrict),
			Parallelism:     4,
			Compression:     "zstd",
			SnapshotPrefix:  "snapshots",
			WatchDebounce:   500 * time.Millisecond,
			ActivateOnBuild: true,
		},
		Snapshot: SnapshotConfig{
			Retention: 15 * time.Minute,
			Keep:      5,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Fusion.Validate(); err != nil {
		return fmt.Errorf("fusion: %w", err)
	}
	if err := c.Retrieval.Validate(); err != nil {
		return fmt.Errorf("retrieval: %w", err)
	}
	if err := c.Rerank.Validate(); err != nil {
		return fmt.Errorf("rerank: %w", err)
	}
	if err := c.Pagination.Validate(); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	if err := c.Build.Validate(); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	if err := c.Snapshot.Validate(); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

// FusionConfig holds the weighted RRF parameters.
type FusionConfig struct {
	K             float64                    `yaml:"k"`
	WeightVersion string                     `yaml:"weight_version"`
	Weights       map[model.Modality]float64 `yaml:"weights"`
}

// WeightSet returns the configured weight set.
func (c *FusionConfig) WeightSet() fusion.WeightSet {
	return fusion.WeightSet{Version: c.WeightVersion, K: c.K, Weights: c.Weights}
}

// Validate validates the fusion configuration.
func (c *FusionConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.K, validation.Required, validation.Min(1.0)),
		validation.Field(&c.WeightVersion, validation.Required),
		validation.Field(&c.Weights, validation.Required),
	); err != nil {
		return err
	}
	return c.WeightSet().Validate()
}

// RetrievalConfig holds per-modality candidate search settings.
type RetrievalConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
	// LexicalIDLikeOnly restricts full-text search to queries containing an
	// ID-like token.
	LexicalIDLikeOnly bool `yaml:"lexical_id_like_only"`
	// DefaultModalities is used when a request names none. Vision is added
	// for requests carrying an image vector.
	DefaultModalities []model.Modality `yaml:"default_modalities"`
	// EncoderTimeout bounds each query embedding call. Zero disables it.
	EncoderTimeout time.Duration `yaml:"encoder_timeout"`
	// SearchTimeout bounds the modality searches of a request. Modalities still
	// running at the deadline are skipped. Zero disables it.
	SearchTimeout time.Duration `yaml:"search_timeout"`
}

// Validate validates the retrieval configuration.
func (c *RetrievalConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.DefaultTopK, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxTopK, validation.Required, validation.Min(c.DefaultTopK)),
		validation.Field(&c.DefaultModalities, validation.Required),
		validation.Field(&c.EncoderTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.SearchTimeout, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	for _, m := range c.DefaultModalities {
		if !m.Valid() {
			return fmt.Errorf("default_modalities: unknown modality %q", m)
		}
	}
	return nil
}

// RerankConfig holds the rerank stage settings.
type RerankConfig struct {
	Enabled       bool                 `yaml:"enabled"`
	Timeout       time.Duration        `yaml:"timeout"`
	MinCandidates int                  `yaml:"min_candidates"`
	MaxCandidates int                  `yaml:"max_candidates"`
	ConfidenceGap rerank.ConfidenceGap `yaml:"confidence_gap"`
}

// Validate validates the rerank configuration.
func (c *RerankConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MinCandidates, validation.Min(1)),
		validation.Field(&c.MaxCandidates, validation.Min(c.MinCandidates)),
	); err != nil {
		return err
	}
	gap := &c.ConfidenceGap
	return validation.ValidateStruct(gap,
		validation.Field(&gap.MinScore, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&gap.Gap, validation.Min(0.0), validation.Max(1.0)),
	)
}

// PaginationConfig holds page size settings.
type PaginationConfig struct {
	DefaultPageLimit   int `yaml:"default_page_limit"`
	MaxPageLimit       int `yaml:"max_page_limit"`
	TopMomentsPerGroup int `yaml:"top_moments_per_group"`
}

// Validate validates the pagination configuration.
func (c *PaginationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultPageLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxPageLimit, validation.Required, validation.Min(c.DefaultPageLimit)),
		validation.Field(&c.TopMomentsPerGroup, validation.Min(1)),
	)
}

// BuildConfig holds index builder settings.
type BuildConfig struct {
	// Mode is strict (abort the build on a bad manifest) or lenient (skip it).
	Mode        string `yaml:"mode"`
	Parallelism int    `yaml:"parallelism"`
	// Compression is the snapshot codec: zstd, lz4 or none.
	Compression       string        `yaml:"compression"`
	UploadBytesPerSec int64         `yaml:"upload_bytes_per_sec"`
	SnapshotPrefix    string        `yaml:"snapshot_prefix"`
	WatchDebounce     time.Duration `yaml:"watch_debounce"`
	// ActivateOnBuild activates each successfully built snapshot.
	ActivateOnBuild bool `yaml:"activate_on_build"`
}

// Validate validates the build configuration.
func (c *BuildConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.In(string(builder.ModeStrict), string(builder.ModeLenient))),
		validation.Field(&c.Parallelism, validation.Required, validation.Min(1)),
		validation.Field(&c.Compression, validation.By(func(any) error {
			_, err := compress.ParseCodec(c.Compression)
			return err
		})),
		validation.Field(&c.UploadBytesPerSec, validation.Min(int64(0))),
		validation.Field(&c.SnapshotPrefix, validation.Required),
		validation.Field(&c.WatchDebounce, validation.Min(time.Duration(0))),
	)
}

// SnapshotConfig holds snapshot lifecycle settings.
type SnapshotConfig struct {
	// Retention is how long the previous snapshot stays loaded for rollback.
	Retention time.Duration `yaml:"retention"`
	// Keep is how many snapshot files GC keeps.
	Keep int `yaml:"keep"`
}

// Validate validates the snapshot configuration.
func (c *SnapshotConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Retention, validation.Min(time.Duration(0))),
		validation.Field(&c.Keep, validation.Required, validation.Min(1)),
	)
}
