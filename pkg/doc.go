// Package pkg provides the core libraries of crateindex, a catalog of the
// declarations in Rust crates.
//
// # Overview
//
// crateindex downloads crates from crates.io, parses their Rust sources and
// stores every function, struct, enum, trait, macro, type alias, constant
// and impl block in an embedded SQLite database. Crates that a package
// re-exports are indexed along with it, so a query against a facade crate
// also sees the declarations it forwards.
//
// # Architecture
//
// The typical data flow:
//
//	crates.io
//	    ↓
//	[registry] (resolve latest version, download and unpack the archive)
//	    ↓
//	[extract] (tree-sitter parse → [catalog] records + re-export candidates)
//	    ↓
//	[crawl] (breadth-first waves over re-exported crates)
//	    ↓
//	[store] (one transaction per package)
//	    ↓
//	[pipeline] (queries for the CLI and the HTTP API)
//
// # Main Packages
//
// [catalog] - Declaration records, package keys ("serde-1.0.210"),
// identifiers and crawl limits.
//
// [extract] - Parses the Rust sources of one unpacked crate in parallel and
// detects which declared dependencies it re-exports.
//
// [manifest] - Reads the dependency tables of Cargo.toml.
//
// [crawl] - Indexes a crate and, wave by wave, the crates it re-exports,
// within depth and package limits.
//
// [store] - SQLite persistence with atomic per-package replacement, lookups
// by identifier and re-export closures.
//
// [pkgfs] - Safe access to files inside an unpacked crate: line excerpts,
// READMEs, listings and grep.
//
// [registry], [integrations] and [archive] - crates.io resolution, cached
// HTTP access and .crate unpacking.
//
// [cache] - File, Redis and in-memory caches for registry metadata.
//
// [errors] - Coded errors shared by every layer, and input validation.
//
// [observability] - Hooks for crawl, extraction, storage, cache and HTTP
// events.
//
// [pipeline] - The Runner behind the CLI and the HTTP API: resolves package
// references, indexes on demand and answers queries.
//
// # Quick Start
//
//	st, _ := store.Open(ctx, store.DefaultConfig("index.db"))
//	client := crates.NewClient(cache.NewNullCache(), time.Hour)
//	resolver := registry.NewCrates(client, "crates", registry.CratesOptions{})
//	runner := pipeline.NewRunner(st, resolver, pipeline.Options{Limits: pipeline.DefaultLimits()}, nil)
//
//	listing, _ := runner.List(ctx, "anyhow", catalog.KindTrait, "")
//	for _, e := range listing.Entries {
//	    fmt.Println(e.Key, e.Declaration.Header().Name)
//	}
//
// [catalog]: https://pkg.go.dev/github.com/matzehuels/crateindex/pkg/catalog
// [extract]: https://pkg.go.dev/github.com/matzehuels/crateindex/pkg/extract
// [manifest]: https://pkg.go.dev/github.com/matzehuels/crateindex/pkg/manifest
// [crawl]: https://pkg.go.dev/github.com/matzehuels/crateindex/pkg/crawl
// [store]: https://pkg.go.dev/github.com/matzehuels/crateindex/pkg/store
// [pkgfs]: https://pkg.go.dev/github.com/matzehuels/crateindex/pkg/pkgfs
// [registry]: https://pkg.go.dev/github.com/matzehuels/crateindex/pkg/registry
// [integrations]: https://pkg.go.dev/github.com/matzehuels/crateindex/pkg/integrations
// [archive]: https://pkg.go.dev/github.com/matzehuels/crateindex/pkg/archive
// [cache]: https://pkg.go.dev/github.com/matzehuels/crateindex/pkg/cache
// [errors]: https://pkg.go.dev/github.com/matzehuels/crateindex/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/crateindex/pkg/observability
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/crateindex/pkg/pipeline
package pkg
