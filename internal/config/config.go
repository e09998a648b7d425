// Package config loads runtime configuration written in CUE.
//
// A config file is unified with the embedded #Config schema, which closes
// the set of allowed fields and supplies defaults. A complete file:
//
//	max_flush_steps: 500
//	log_level:       "debug"
//	trace_db:        "traces.db"
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/4rchr4y/moss/internal/runtime"
)

//go:embed schema.cue
var schemaSource string

// Error codes reported by Load and Parse.
const (
	ErrCodeRead    = "C001" // file could not be read
	ErrCodeSyntax  = "C002" // not valid CUE
	ErrCodeInvalid = "C003" // does not satisfy #Config
	ErrCodeDecode  = "C004" // valid CUE that does not decode into Config
)

// Error is a configuration error with the CUE position when known.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Config is the decoded runtime configuration.
type Config struct {
	MaxFlushSteps int    `json:"max_flush_steps"`
	LogLevel      string `json:"log_level"`
	TraceDB       string `json:"trace_db,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		MaxFlushSteps: runtime.DefaultMaxFlushSteps,
		LogLevel:      "info",
	}
}

// Load reads and validates the CUE file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &Error{Code: ErrCodeRead, Message: err.Error()}
	}
	return Parse(data, path)
}

// Parse validates src against #Config and decodes it. filename is used in
// error positions.
func Parse(src []byte, filename string) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile embedded schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return Config{}, wrap(ErrCodeSyntax, err)
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Config{}, wrap(ErrCodeInvalid, err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return Config{}, wrap(ErrCodeDecode, err)
	}

	defaults := Default()
	if cfg.MaxFlushSteps == 0 {
		cfg.MaxFlushSteps = defaults.MaxFlushSteps
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	return cfg, nil
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RuntimeOptions converts the configuration into runtime options.
func (c Config) RuntimeOptions() []runtime.Option {
	return []runtime.Option{
		runtime.WithMaxFlushSteps(c.MaxFlushSteps),
	}
}

func wrap(code string, err error) *Error {
	e := &Error{Code: code, Message: cueerrors.Details(err, nil)}
	if positions := cueerrors.Positions(err); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}
