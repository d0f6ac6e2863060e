// Package integrations provides HTTP clients for package registry APIs.
//
// The only registry is crates.io, in the [crates] subpackage. The [Client]
// type holds what any registry client needs:
//
//   - JSON GET requests with default headers
//   - Response caching through [cache.Cache]
//   - Retry with exponential backoff on network errors, 429 and 5xx
//   - Streaming archive downloads
//
// Errors wrap [ErrNotFound] for 404 responses and [ErrNetwork] for every
// other transport or status failure.
//
// [crates]: github.com/matzehuels/crateindex/pkg/integrations/crates
// [cache.Cache]: github.com/matzehuels/crateindex/pkg/cache.Cache
package integrations
