// Package config holds the tunable thresholds used by the detector,
// synthesizer and comparator. The values here are defaults, not policy:
// every rule reads them from the active Config so deployments can tune
// them via a YAML file instead of editing code.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Rules   RuleConfig    `yaml:"rules"`
	Compare CompareConfig `yaml:"compare"`
	Ranking RankingConfig `yaml:"ranking"`
	LLMTopN int           `yaml:"llm_top_n"`
}

// RuleConfig defines the trigger thresholds for the anti-pattern rules.
type RuleConfig struct {
	// SeqScanOnLargeRelation
	SeqScanRows          int64   `yaml:"seq_scan_rows"`
	SeqScanCostShare     float64 `yaml:"seq_scan_cost_share"`
	SeqScanHighShare     float64 `yaml:"seq_scan_high_share"`
	SeqScanCriticalShare float64 `yaml:"seq_scan_critical_share"`

	// RowEstimateMiss
	EstimateMissLow      float64 `yaml:"estimate_miss_low"`
	EstimateMissHigh     float64 `yaml:"estimate_miss_high"`
	EstimateMissSevereLo float64 `yaml:"estimate_miss_severe_low"`
	EstimateMissSevereHi float64 `yaml:"estimate_miss_severe_high"`

	// NPlusOnePattern
	NPlusOneCount int `yaml:"nplus_one_count"`

	// MissingParallelism
	ParallelCost float64 `yaml:"parallel_cost"`
	ParallelRows int64   `yaml:"parallel_rows"`

	// HighBufferIO
	BufferReadMin   int64   `yaml:"buffer_read_min"`
	BufferReadRatio float64 `yaml:"buffer_read_ratio"`
}

// CompareConfig tunes the comparison engine.
type CompareConfig struct {
	// MinSimilarity is the normalized query-text similarity below which
	// two plans are considered unrelated.
	MinSimilarity float64 `yaml:"min_similarity"`
	// NoiseThreshold is the relative change below which cost/time deltas
	// are treated as noise.
	NoiseThreshold float64 `yaml:"noise_threshold"`
}

// RankingConfig tunes recommendation benefit scoring.
type RankingConfig struct {
	SeverityWeight  float64 `yaml:"severity_weight"`
	CostShareWeight float64 `yaml:"cost_share_weight"`
}

// Default returns the built-in thresholds.
func Default() Config {
	return Config{
		Rules: RuleConfig{
			SeqScanRows:          10000,
			SeqScanCostShare:     0.05,
			SeqScanHighShare:     0.20,
			SeqScanCriticalShare: 0.50,

			EstimateMissLow:      0.1,
			EstimateMissHigh:     10,
			EstimateMissSevereLo: 0.01,
			EstimateMissSevereHi: 100,

			NPlusOneCount: 5,

			ParallelCost: 10000,
			ParallelRows: 100000,

			BufferReadMin:   1000,
			BufferReadRatio: 2.0,
		},
		Compare: CompareConfig{
			MinSimilarity:  0.5,
			NoiseThreshold: 0.01,
		},
		Ranking: RankingConfig{
			SeverityWeight:  0.6,
			CostShareWeight: 0.4,
		},
		LLMTopN: 5,
	}
}

// Load reads a YAML threshold file on top of the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects threshold combinations that would make rule behavior
// undefined.
func (c Config) Validate() error {
	r := c.Rules
	if r.SeqScanRows < 0 {
		return fmt.Errorf("seq_scan_rows must be non-negative, got %d", r.SeqScanRows)
	}
	if r.SeqScanCostShare < 0 || r.SeqScanCostShare > 1 {
		return fmt.Errorf("seq_scan_cost_share must be in [0,1], got %g", r.SeqScanCostShare)
	}
	if r.EstimateMissLow <= 0 || r.EstimateMissHigh <= r.EstimateMissLow {
		return fmt.Errorf("estimate miss band [%g, %g] is not a valid interval", r.EstimateMissLow, r.EstimateMissHigh)
	}
	if r.NPlusOneCount < 1 {
		return fmt.Errorf("nplus_one_count must be at least 1, got %d", r.NPlusOneCount)
	}
	if c.Compare.MinSimilarity < 0 || c.Compare.MinSimilarity > 1 {
		return fmt.Errorf("min_similarity must be in [0,1], got %g", c.Compare.MinSimilarity)
	}
	return nil
}

// Template is the commented starter file written by `pglens init`.
const Template = `# pglens threshold configuration.
# All values are optional; anything omitted keeps the built-in default.

rules:
  # Seq Scan on a large relation.
  seq_scan_rows: 10000        # estimated rows before a seq scan is "large"
  seq_scan_cost_share: 0.05   # fraction of total plan cost to care at all
  seq_scan_high_share: 0.20
  seq_scan_critical_share: 0.50

  # Row estimate misses (actual/estimated ratio bands).
  estimate_miss_low: 0.1
  estimate_miss_high: 10
  estimate_miss_severe_low: 0.01
  estimate_miss_severe_high: 100

  # Repeated identical query shapes within one session.
  nplus_one_count: 5

  # Missing parallelism.
  parallel_cost: 10000
  parallel_rows: 100000

  # Disk reads dwarfing cache hits.
  buffer_read_min: 1000
  buffer_read_ratio: 2.0

compare:
  min_similarity: 0.5
  noise_threshold: 0.01

ranking:
  severity_weight: 0.6
  cost_share_weight: 0.4

llm_top_n: 5
`

// WriteTemplate writes the starter config, refusing to clobber an
// existing file unless force is set.
func WriteTemplate(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists (use --force to overwrite)", path)
		}
	}
	return os.WriteFile(path, []byte(Template), 0644)
}
