package loader

import (
	"strings"

	"github.com/xyproto/env/v2"
)

// Config is the environment-derived tuning surface read once at startup:
// which libc shims to generate, how big the shim region should be, and
// whether to trace loader operations to stderr.
type Config struct {
	// Verbose enables stderr tracing of parse/relocate/protect steps.
	Verbose bool
	// LibcFuncs lists which default libc shims to build (see
	// libcshim.DefaultDescriptors); unknown names are ignored.
	LibcFuncs []string
	// ShimPageSize is the size of the low-memory region reserved for libc
	// shims, in bytes.
	ShimPageSize int
}

const defaultShimPageSize = 8096

var defaultLibcFuncs = []string{"abort", "abs", "atoi"}

// ConfigFromEnv reads E32_VERBOSE, E32_LIBC_FUNCS (comma-separated), and
// E32_SHIM_PAGE_SIZE, falling back to defaults for anything unset.
func ConfigFromEnv() Config {
	funcs := defaultLibcFuncs
	if raw := env.Str("E32_LIBC_FUNCS", ""); raw != "" {
		funcs = splitNonEmpty(raw, ',')
	}
	return Config{
		Verbose:      env.Bool("E32_VERBOSE"),
		LibcFuncs:    funcs,
		ShimPageSize: env.Int("E32_SHIM_PAGE_SIZE", defaultShimPageSize),
	}
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	for _, part := range strings.Split(s, string(sep)) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
