// Package pipeline ties the registry, the crawler and the catalog together
// for the CLI and the HTTP API.
//
// A [Runner] answers every query against the catalog and indexes packages
// on demand: asking about a crate that is not stored yet crawls it first.
// By centralizing this logic, both entry points resolve package references,
// apply crawl limits and read source excerpts the same way.
//
// # Usage
//
//	runner := pipeline.NewRunner(st, resolver, pipeline.Options{}, logger)
//	key, err := runner.EnsureIndexed(ctx, "serde")
//	listing, err := runner.List(ctx, "serde", catalog.KindTrait, "^Ser")
package pipeline

import (
	"runtime"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/crateindex/pkg/catalog"
	"github.com/matzehuels/crateindex/pkg/errors"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and API
// =============================================================================

const (
	// DefaultMaxDepth bounds both crawls and re-export closures.
	DefaultMaxDepth = 5

	// DefaultMaxPackages bounds both crawls and re-export closures.
	DefaultMaxPackages = 50

	// DefaultContext is how many lines after the start line Show returns
	// for declarations without an end line.
	DefaultContext = 30

	// DefaultSearchLimit caps the matches Search returns.
	DefaultSearchLimit = 200
)

// DefaultLimits returns the default crawl and closure limits.
func DefaultLimits() catalog.Limits {
	return catalog.Limits{MaxDepth: DefaultMaxDepth, MaxPackages: DefaultMaxPackages}
}

// =============================================================================
// Kinds
// =============================================================================

// kindNames maps the plural listing names used by the CLI and API to
// declaration kinds. Kind tags are accepted as well.
var kindNames = map[string]catalog.Kind{
	"functions": catalog.KindFunction,
	"fns":       catalog.KindFunction,
	"structs":   catalog.KindStruct,
	"enums":     catalog.KindEnum,
	"traits":    catalog.KindTrait,
	"macros":    catalog.KindMacro,
	"types":     catalog.KindTypeAlias,
	"consts":    catalog.KindConst,
	"constants": catalog.KindConst,
	"statics":   catalog.KindStatic,
	"impls":     catalog.KindImpl,
}

// ParseKind maps a listing name ("functions", "types", ...) or a kind tag
// ("fn", "type", ...) to a declaration kind.
func ParseKind(s string) (catalog.Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if k, ok := kindNames[s]; ok {
		return k, nil
	}
	for _, k := range kindNames {
		if string(k) == s {
			return k, nil
		}
	}
	return "", errors.New(errors.ErrCodeInvalidInput, "unknown kind %q (must be one of: %s)", s, strings.Join(KindNames(), ", "))
}

// KindNames returns the accepted plural listing names, sorted.
func KindNames() []string {
	names := make([]string, 0, len(kindNames))
	for n := range kindNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// Options - Runner Configuration
// =============================================================================

// Options configures a [Runner].
type Options struct {
	// Workers bounds parallel resolves, fetches and file parses.
	Workers int `json:"workers,omitempty"`
	// Limits caps crawls and re-export closures. Zero fields are unlimited.
	Limits catalog.Limits `json:"limits"`
}

// WithDefaults returns a copy of o with zero values replaced. Limits are
// left alone since zero means unlimited.
func (o Options) WithDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	return o
}

func orDefault(l *log.Logger) *log.Logger {
	if l == nil {
		return log.Default()
	}
	return l
}
