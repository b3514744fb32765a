package unmdx

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/druarnfield/unmdx/emit/dax"
	"github.com/druarnfield/unmdx/emit/explain"
	"github.com/druarnfield/unmdx/internal/linter"
)

// ParserConfig controls C1's tokenizer/parser/lowerer behavior.
type ParserConfig struct {
	StrictMode            bool `yaml:"strict_mode,omitempty" json:"strict_mode,omitempty"`
	AllowUnknownFunctions bool `yaml:"allow_unknown_functions,omitempty" json:"allow_unknown_functions,omitempty"`
	MaxParseErrors        int  `yaml:"max_parse_errors,omitempty" json:"max_parse_errors,omitempty"`
	ParseTimeoutMS        *int `yaml:"parse_timeout_ms,omitempty" json:"parse_timeout_ms,omitempty"`
	MaxInputChars         *int `yaml:"max_input_chars,omitempty" json:"max_input_chars,omitempty"`
}

// LinterConfig controls C4.
type LinterConfig struct {
	OptimizationLevel linter.Level `yaml:"optimization_level,omitempty" json:"optimization_level,omitempty"`
	MaxCrossJoinDepth int          `yaml:"max_crossjoin_depth,omitempty" json:"max_crossjoin_depth,omitempty"`
	DisabledRules     []string     `yaml:"disabled_rules,omitempty" json:"disabled_rules,omitempty"`
	MaxProcessingMS   int          `yaml:"max_processing_ms,omitempty" json:"max_processing_ms,omitempty"`
}

// disabledRuleSet converts the configured slice into the map linter.Options wants.
func (l LinterConfig) disabledRuleSet() map[string]bool {
	if len(l.DisabledRules) == 0 {
		return nil
	}
	out := make(map[string]bool, len(l.DisabledRules))
	for _, name := range l.DisabledRules {
		out[name] = true
	}
	return out
}

// DaxConfig controls C5.
type DaxConfig struct {
	FormatOutput        bool `yaml:"format_output,omitempty" json:"format_output,omitempty"`
	IndentSize          int  `yaml:"indent_size,omitempty" json:"indent_size,omitempty"`
	LineWidth           int  `yaml:"line_width,omitempty" json:"line_width,omitempty"`
	UseSummarizeColumns bool `yaml:"use_summarizecolumns,omitempty" json:"use_summarizecolumns,omitempty"`
	EscapeReservedWords bool `yaml:"escape_reserved_words,omitempty" json:"escape_reserved_words,omitempty"`
}

// ExplanationConfig controls C6.
type ExplanationConfig struct {
	Format               explain.Format `yaml:"format,omitempty" json:"format,omitempty"`
	Detail               explain.Detail `yaml:"detail,omitempty" json:"detail,omitempty"`
	IncludeDAXComparison bool           `yaml:"include_dax_comparison,omitempty" json:"include_dax_comparison,omitempty"`
}

// GlobalConfig holds cross-cutting toggles.
type GlobalConfig struct {
	Debug         bool `yaml:"debug,omitempty" json:"debug,omitempty"`
	FailFast      bool `yaml:"fail_fast,omitempty" json:"fail_fast,omitempty"`
	EnableCaching bool `yaml:"enable_caching,omitempty" json:"enable_caching,omitempty"`
}

// Config is the nested configuration record described in §6, loadable from
// either YAML or JSON. The zero value is not directly usable; build one with
// DefaultConfig and override individual fields.
type Config struct {
	Parser      ParserConfig      `yaml:"parser,omitempty" json:"parser,omitempty"`
	Linter      LinterConfig      `yaml:"linter,omitempty" json:"linter,omitempty"`
	Dax         DaxConfig         `yaml:"dax,omitempty" json:"dax,omitempty"`
	Explanation ExplanationConfig `yaml:"explanation,omitempty" json:"explanation,omitempty"`
	Global      GlobalConfig      `yaml:"global,omitempty" json:"global,omitempty"`

	// Logger, when set, receives a debug-level entry per parse and optimize
	// stage with its elapsed time and diagnostic count; Global.Debug is not
	// consulted. Unset Logger falls back to a no-op.
	Logger *zap.Logger `yaml:"-" json:"-"`
}

// DefaultConfig returns the configuration the CLI and convenience API use
// when no file or override is supplied.
func DefaultConfig() *Config {
	return &Config{
		Parser: ParserConfig{
			MaxParseErrors: 50,
		},
		Linter: LinterConfig{
			OptimizationLevel: linter.LevelConservative,
			MaxCrossJoinDepth: 64,
			MaxProcessingMS:   5000,
		},
		Dax: DaxConfig{
			FormatOutput:        true,
			IndentSize:          4,
			LineWidth:           dax.DefaultMaxLineWidth,
			UseSummarizeColumns: true,
			EscapeReservedWords: true,
		},
		Explanation: ExplanationConfig{
			Format: explain.FormatNatural,
			Detail: explain.DetailStandard,
		},
	}
}

func (c *Config) logger() *zap.Logger {
	if c == nil || c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Config) linterOptions() linter.Options {
	return linter.Options{
		Level:             c.Linter.OptimizationLevel,
		MaxCrossJoinDepth: c.Linter.MaxCrossJoinDepth,
		DisabledRules:     c.Linter.disabledRuleSet(),
	}
}

// DefaultConfigNames are the filenames searched by FindConfig, in order.
var DefaultConfigNames = []string{
	".unmdx.yaml", ".unmdx.yml", ".unmdx.json",
	"unmdx.yaml", "unmdx.yml", "unmdx.json",
}

// LoadConfig finds and loads the nearest config file walking up from dir,
// starting from DefaultConfig so unspecified options keep their defaults.
func LoadConfig(dir string) (*Config, error) {
	path, err := FindConfig(dir)
	if err != nil {
		return nil, err
	}
	return LoadConfigFile(path)
}

// FindConfig searches for a config file starting from dir and walking up
// to the filesystem root.
func FindConfig(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for d := absDir; ; {
		for _, name := range DefaultConfigNames {
			path := filepath.Join(d, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		parent := filepath.Dir(d)
		if parent == d {
			return "", ErrConfigNotFound
		}
		d = parent
	}
}

// LoadConfigFile loads a config from a specific path, dispatching on
// extension between YAML and JSON (§6: "JSON or YAML are accepted
// equivalents"), then applies UNMDX_* environment overrides.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides layers UNMDX_<SECTION>_<OPTION> environment variables
// on top of cfg, matching §6's documented override prefix.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("UNMDX_PARSER_STRICT_MODE"); ok {
		cfg.Parser.StrictMode = envBool(v, cfg.Parser.StrictMode)
	}
	if v, ok := os.LookupEnv("UNMDX_PARSER_ALLOW_UNKNOWN_FUNCTIONS"); ok {
		cfg.Parser.AllowUnknownFunctions = envBool(v, cfg.Parser.AllowUnknownFunctions)
	}
	if v, ok := os.LookupEnv("UNMDX_PARSER_MAX_PARSE_ERRORS"); ok {
		cfg.Parser.MaxParseErrors = envInt(v, cfg.Parser.MaxParseErrors)
	}
	if v, ok := os.LookupEnv("UNMDX_LINTER_OPTIMIZATION_LEVEL"); ok {
		cfg.Linter.OptimizationLevel = linter.Level(v)
	}
	if v, ok := os.LookupEnv("UNMDX_LINTER_MAX_CROSSJOIN_DEPTH"); ok {
		cfg.Linter.MaxCrossJoinDepth = envInt(v, cfg.Linter.MaxCrossJoinDepth)
	}
	if v, ok := os.LookupEnv("UNMDX_LINTER_DISABLED_RULES"); ok && v != "" {
		cfg.Linter.DisabledRules = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("UNMDX_LINTER_MAX_PROCESSING_MS"); ok {
		cfg.Linter.MaxProcessingMS = envInt(v, cfg.Linter.MaxProcessingMS)
	}
	if v, ok := os.LookupEnv("UNMDX_DAX_FORMAT_OUTPUT"); ok {
		cfg.Dax.FormatOutput = envBool(v, cfg.Dax.FormatOutput)
	}
	if v, ok := os.LookupEnv("UNMDX_DAX_INDENT_SIZE"); ok {
		cfg.Dax.IndentSize = envInt(v, cfg.Dax.IndentSize)
	}
	if v, ok := os.LookupEnv("UNMDX_DAX_LINE_WIDTH"); ok {
		cfg.Dax.LineWidth = envInt(v, cfg.Dax.LineWidth)
	}
	if v, ok := os.LookupEnv("UNMDX_DAX_USE_SUMMARIZECOLUMNS"); ok {
		cfg.Dax.UseSummarizeColumns = envBool(v, cfg.Dax.UseSummarizeColumns)
	}
	if v, ok := os.LookupEnv("UNMDX_DAX_ESCAPE_RESERVED_WORDS"); ok {
		cfg.Dax.EscapeReservedWords = envBool(v, cfg.Dax.EscapeReservedWords)
	}
	if v, ok := os.LookupEnv("UNMDX_EXPLANATION_FORMAT"); ok {
		cfg.Explanation.Format = explain.Format(v)
	}
	if v, ok := os.LookupEnv("UNMDX_EXPLANATION_DETAIL"); ok {
		cfg.Explanation.Detail = explain.Detail(v)
	}
	if v, ok := os.LookupEnv("UNMDX_EXPLANATION_INCLUDE_DAX_COMPARISON"); ok {
		cfg.Explanation.IncludeDAXComparison = envBool(v, cfg.Explanation.IncludeDAXComparison)
	}
	if v, ok := os.LookupEnv("UNMDX_GLOBAL_DEBUG"); ok {
		cfg.Global.Debug = envBool(v, cfg.Global.Debug)
	}
	if v, ok := os.LookupEnv("UNMDX_GLOBAL_FAIL_FAST"); ok {
		cfg.Global.FailFast = envBool(v, cfg.Global.FailFast)
	}
	if v, ok := os.LookupEnv("UNMDX_GLOBAL_ENABLE_CACHING"); ok {
		cfg.Global.EnableCaching = envBool(v, cfg.Global.EnableCaching)
	}
}

func envBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(v string, fallback int) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
