package host

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/reglet-dev/wasmbridge/hostfuncs"
	wazeroadapter "github.com/reglet-dev/wasmbridge/infrastructure/wazero"
	"github.com/reglet-dev/wasmbridge/log"
	"github.com/reglet-dev/wasmbridge/memory"
	"github.com/reglet-dev/wasmbridge/wireformat"
)

// DefaultCallBudget bounds how long a single guest call may run.
const DefaultCallBudget = 30 * time.Second

// Config configures an Executor. It is usually loaded from YAML:
//
//	module_name: env
//	codec: msgpack
//	call_budget: 5s
//	workers: 8
//	export_allowlist: ["process_*", "echo"]
//	log:
//	  level: debug
type Config struct {
	// ModuleName is the import module guests link host functions from.
	ModuleName string `yaml:"module_name" validate:"required"`

	// Codec is the wire format of values crossing the boundary: json or msgpack.
	Codec string `yaml:"codec" validate:"omitempty,oneof=json msgpack"`

	// ExportAllowlist holds doublestar patterns of exports that may be called.
	// Empty allows every export.
	ExportAllowlist []string `yaml:"export_allowlist"`

	// Log configures the process logger when the executor initializes it.
	Log log.Options `yaml:"log"`

	// CallBudget bounds the run time of one guest call. Exhausting it is a
	// Runtime error and faults the instance. Zero means unbounded.
	CallBudget time.Duration `yaml:"call_budget" validate:"gte=0"`

	// Workers is the default concurrency of Fanout.
	Workers int `yaml:"workers" validate:"gte=1"`

	// MaxRequestSize caps the bytes a guest may pass to one host function.
	MaxRequestSize uint32 `yaml:"max_request_size" validate:"gt=0"`

	// MemoryLimitPages caps each instance's linear memory.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages" validate:"gt=0,lte=65536"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		ModuleName:       wazeroadapter.DefaultModuleName,
		Codec:            wireformat.CodecJSON,
		CallBudget:       DefaultCallBudget,
		Workers:          runtime.NumCPU(),
		MaxRequestSize:   hostfuncs.DefaultMaxRequestSize,
		MemoryLimitPages: memory.MaxPages,
		Log:              log.Options{Level: "info"},
	}
}

// ParseConfig parses YAML over the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator supplied
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// Validate checks field constraints and allowlist patterns.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	for _, p := range c.ExportAllowlist {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("config validation failed: invalid export pattern %q", p)
		}
	}
	return nil
}

// Allowed reports whether export may be invoked.
func (c Config) Allowed(export string) bool {
	if len(c.ExportAllowlist) == 0 {
		return true
	}
	for _, p := range c.ExportAllowlist {
		if ok, err := doublestar.Match(p, export); err == nil && ok {
			return true
		}
	}
	return false
}
