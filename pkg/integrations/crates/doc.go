// Package crates provides an HTTP client for crates.io.
//
// # Usage
//
//	client := crates.NewClient(cache.NewNullCache(), time.Hour)
//
//	version, err := client.LatestVersion(ctx, "serde", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = client.Download(ctx, "serde", version, "/tmp/serde.crate")
//
// # Versions
//
// [Client.LatestVersion] returns max_stable_version, falling back to
// max_version for crates that only publish pre-releases.
//
// # Caching
//
// Metadata responses are cached for the TTL given to [NewClient]. Pass
// refresh=true to bypass the cache. Archive downloads are never cached.
//
// # User-Agent
//
// The client includes a User-Agent header as requested by crates.io policy.
package crates
