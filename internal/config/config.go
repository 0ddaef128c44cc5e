package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/go-bytebpe/internal/padding"
	"github.com/example/go-bytebpe/internal/truncation"
)

type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"`
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`
	Server    ServerConfig    `mapstructure:"server"`
	LogLevel  string          `mapstructure:"log_level"`
}

// PathsConfig locates tokenizer files. A complete VocabPath/MergesPath pair
// wins over TokenizerPath, which always has a default.
type PathsConfig struct {
	TokenizerPath string `mapstructure:"tokenizer_path"`
	VocabPath     string `mapstructure:"vocab_path"`
	MergesPath    string `mapstructure:"merges_path"`
	SPMModelPath  string `mapstructure:"spm_model_path"`
}

type TokenizerConfig struct {
	Backend             string `mapstructure:"backend"`
	AddSpecialTokens    bool   `mapstructure:"add_special_tokens"`
	Truncation          string `mapstructure:"truncation"`
	MaxLength           int    `mapstructure:"max_length"`
	Stride              int    `mapstructure:"stride"`
	TruncationDirection string `mapstructure:"truncation_direction"`
	Padding             string `mapstructure:"padding"`
	PadLength           int    `mapstructure:"pad_length"`
	PadToMultipleOf     int    `mapstructure:"pad_to_multiple_of"`
	PadDirection        string `mapstructure:"pad_direction"`
	PadToken            string `mapstructure:"pad_token"`
	CacheCapacity       int    `mapstructure:"cache_capacity"`
	Workers             int    `mapstructure:"workers"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	MaxBatchSize    int    `mapstructure:"max_batch_size"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

// ErrInvalidPadding is returned for an unknown padding mode.
var ErrInvalidPadding = errors.New("invalid padding mode")

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			TokenizerPath: "models/tokenizer.json",
			VocabPath:     "",
			MergesPath:    "",
			SPMModelPath:  "models/tokenizer.model",
		},
		Tokenizer: TokenizerConfig{
			Backend:             BackendBPE,
			AddSpecialTokens:    true,
			Truncation:          "",
			MaxLength:           0,
			Stride:              0,
			TruncationDirection: "right",
			Padding:             "",
			PadLength:           0,
			PadToMultipleOf:     0,
			PadDirection:        "right",
			PadToken:            "",
			CacheCapacity:       10000,
			Workers:             0,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         4,
			MaxTextBytes:    1 << 20,
			MaxBatchSize:    256,
			RequestTimeout:  30,
			ShutdownTimeout: 30,
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-tokenizer-path", defaults.Paths.TokenizerPath, "Path to a HuggingFace tokenizer.json")
	fs.String("paths-vocab-path", defaults.Paths.VocabPath, "Path to a GPT-2 vocab.json (used with --paths-merges-path)")
	fs.String("paths-merges-path", defaults.Paths.MergesPath, "Path to a GPT-2 merges.txt")
	fs.String("paths-spm-model-path", defaults.Paths.SPMModelPath, "Path to a SentencePiece model")
	fs.String("backend", defaults.Tokenizer.Backend, "Tokenizer backend (bpe|sentencepiece)")
	fs.Bool("add-special-tokens", defaults.Tokenizer.AddSpecialTokens, "Apply the post-processor template")
	fs.String("truncation", defaults.Tokenizer.Truncation, "Truncation strategy (longest_first|only_first|only_second)")
	fs.Int("max-length", defaults.Tokenizer.MaxLength, "Truncation max length")
	fs.Int("stride", defaults.Tokenizer.Stride, "Overlap between overflow windows")
	fs.String("truncation-direction", defaults.Tokenizer.TruncationDirection, "Truncation direction (right|left)")
	fs.String("padding", defaults.Tokenizer.Padding, "Padding mode (longest|fixed)")
	fs.Int("pad-length", defaults.Tokenizer.PadLength, "Target length for fixed padding")
	fs.Int("pad-to-multiple-of", defaults.Tokenizer.PadToMultipleOf, "Round padded lengths up to a multiple")
	fs.String("pad-direction", defaults.Tokenizer.PadDirection, "Padding direction (right|left)")
	fs.String("pad-token", defaults.Tokenizer.PadToken, "Padding token (looked up in the vocabulary)")
	fs.Int("cache-capacity", defaults.Tokenizer.CacheCapacity, "Per-chunk BPE cache entries (negative disables)")
	fs.Int("tokenizer-workers", defaults.Tokenizer.Workers, "Batch encode concurrency (0 = GOMAXPROCS)")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("workers", defaults.Server.Workers, "Max concurrent HTTP encode requests")
	fs.Int("max-text-bytes", defaults.Server.MaxTextBytes, "Max request text size in bytes")
	fs.Int("max-batch-size", defaults.Server.MaxBatchSize, "Max inputs per batch request")
	fs.Int("request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.Int("shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain period in seconds")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetEnvPrefix("BYTEBPE")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("bytebpe")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// flagKeys maps each flag to its config key.
var flagKeys = map[string]string{
	"paths-tokenizer-path": "paths.tokenizer_path",
	"paths-vocab-path":     "paths.vocab_path",
	"paths-merges-path":    "paths.merges_path",
	"paths-spm-model-path": "paths.spm_model_path",
	"backend":              "tokenizer.backend",
	"add-special-tokens":   "tokenizer.add_special_tokens",
	"truncation":           "tokenizer.truncation",
	"max-length":           "tokenizer.max_length",
	"stride":               "tokenizer.stride",
	"truncation-direction": "tokenizer.truncation_direction",
	"padding":              "tokenizer.padding",
	"pad-length":           "tokenizer.pad_length",
	"pad-to-multiple-of":   "tokenizer.pad_to_multiple_of",
	"pad-direction":        "tokenizer.pad_direction",
	"pad-token":            "tokenizer.pad_token",
	"cache-capacity":       "tokenizer.cache_capacity",
	"tokenizer-workers":    "tokenizer.workers",
	"server-listen-addr":   "server.listen_addr",
	"workers":              "server.workers",
	"max-text-bytes":       "server.max_text_bytes",
	"max-batch-size":       "server.max_batch_size",
	"request-timeout":      "server.request_timeout",
	"shutdown-timeout":     "server.shutdown_timeout",
	"log-level":            "log_level",
}

// bindFlags binds each registered flag to its nested key, so a flag only
// overrides file and env values when set explicitly.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.tokenizer_path", c.Paths.TokenizerPath)
	v.SetDefault("paths.vocab_path", c.Paths.VocabPath)
	v.SetDefault("paths.merges_path", c.Paths.MergesPath)
	v.SetDefault("paths.spm_model_path", c.Paths.SPMModelPath)
	v.SetDefault("tokenizer.backend", c.Tokenizer.Backend)
	v.SetDefault("tokenizer.add_special_tokens", c.Tokenizer.AddSpecialTokens)
	v.SetDefault("tokenizer.truncation", c.Tokenizer.Truncation)
	v.SetDefault("tokenizer.max_length", c.Tokenizer.MaxLength)
	v.SetDefault("tokenizer.stride", c.Tokenizer.Stride)
	v.SetDefault("tokenizer.truncation_direction", c.Tokenizer.TruncationDirection)
	v.SetDefault("tokenizer.padding", c.Tokenizer.Padding)
	v.SetDefault("tokenizer.pad_length", c.Tokenizer.PadLength)
	v.SetDefault("tokenizer.pad_to_multiple_of", c.Tokenizer.PadToMultipleOf)
	v.SetDefault("tokenizer.pad_direction", c.Tokenizer.PadDirection)
	v.SetDefault("tokenizer.pad_token", c.Tokenizer.PadToken)
	v.SetDefault("tokenizer.cache_capacity", c.Tokenizer.CacheCapacity)
	v.SetDefault("tokenizer.workers", c.Tokenizer.Workers)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.max_batch_size", c.Server.MaxBatchSize)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("log_level", c.LogLevel)
}

// TruncationParams converts the truncation settings. An empty strategy
// disables truncation.
func (t TokenizerConfig) TruncationParams() (truncation.Params, error) {
	strategy, err := truncation.ParseStrategy(t.Truncation)
	if err != nil {
		return truncation.Params{}, err
	}
	dir, err := truncation.ParseDirection(t.TruncationDirection)
	if err != nil {
		return truncation.Params{}, err
	}
	p := truncation.Params{MaxLength: t.MaxLength, Stride: t.Stride, Strategy: strategy, Direction: dir}
	return p, p.Validate()
}

// PaddingParams converts the padding settings, or returns nil when padding
// is off. padID is the id of PadToken.
func (t TokenizerConfig) PaddingParams(padID int) (*padding.Params, error) {
	var size padding.SizeProvider
	switch strings.ToLower(strings.TrimSpace(t.Padding)) {
	case "", "none":
		return nil, nil
	case "longest", "batch_longest":
		size = padding.Longest{}
	case "fixed":
		size = padding.Fixed{N: t.PadLength}
	default:
		return nil, fmt.Errorf("%w %q (expected longest|fixed)", ErrInvalidPadding, t.Padding)
	}
	if t.PadToMultipleOf > 1 {
		size = padding.MultipleOf{Inner: size, Multiple: t.PadToMultipleOf}
	}

	dir, err := padding.ParseDirection(t.PadDirection)
	if err != nil {
		return nil, err
	}
	p := &padding.Params{Size: size, Direction: dir, PadID: padID, PadToken: t.PadToken}
	return p, p.Validate()
}
