// Package envconfig reads LITE_* environment variables that tune the engine.
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Var returns an environment variable stripped of surrounding whitespace and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// BoolWithDefault returns a reader for a boolean variable. Unparseable values read as true.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a reader for a boolean variable that defaults to false.
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// Uint returns a reader for an unsigned variable.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

var (
	// NumThreads caps worker goroutines per layer; 0 means one per CPU.
	NumThreads = Uint("LITE_NUM_THREADS", 0)
	// LightMode releases intermediate blobs as soon as they are consumed.
	LightMode = BoolWithDefault("LITE_LIGHT_MODE")
	// PackingLayout enables 4-lane packed tensors.
	PackingLayout = BoolWithDefault("LITE_PACKING")
	// BF16Storage stores activations as bfloat16 where layers allow it.
	BF16Storage = BoolWithDefault("LITE_BF16")
	// Int8Inference runs quantized convolution paths.
	Int8Inference = BoolWithDefault("LITE_INT8")
	// Winograd enables Winograd 3x3 convolution.
	Winograd = BoolWithDefault("LITE_WINOGRAD")
	// Sgemm enables im2col + sgemm convolution.
	Sgemm = BoolWithDefault("LITE_SGEMM")
)

// LogLevel maps LITE_DEBUG to a slog level: true is Debug, an integer n is n*-4.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("LITE_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

// EnvVar describes one supported variable.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap lists every variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"LITE_DEBUG":       {"LITE_DEBUG", LogLevel(), "Show additional debug information (e.g. LITE_DEBUG=1)"},
		"LITE_NUM_THREADS": {"LITE_NUM_THREADS", NumThreads(), "Worker goroutines per layer (default: CPU count)"},
		"LITE_LIGHT_MODE":  {"LITE_LIGHT_MODE", LightMode(true), "Release intermediate blobs after use"},
		"LITE_PACKING":     {"LITE_PACKING", PackingLayout(false), "Use 4-lane packed layout"},
		"LITE_BF16":        {"LITE_BF16", BF16Storage(false), "Store activations as bfloat16"},
		"LITE_INT8":        {"LITE_INT8", Int8Inference(true), "Run quantized convolutions in int8"},
		"LITE_WINOGRAD":    {"LITE_WINOGRAD", Winograd(true), "Use Winograd 3x3 convolution"},
		"LITE_SGEMM":       {"LITE_SGEMM", Sgemm(true), "Use im2col + sgemm convolution"},
	}
}
