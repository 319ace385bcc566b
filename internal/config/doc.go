// Package config defines the Core's configuration shape and a small
// bootstrap loader for it.
//
// The Core does not parse configuration files on a caller's behalf - that
// is a front-end's job - but it does define the
// Go-native shape a front-end constructs and hands to the composition
// root (Config), plus optional machinery to bootstrap one from disk for
// standalone use (e.g. the agentcore-demo CLI).
//
// # Configuration Loading
//
// Load builds a Config starting from Default(), then merges in, in
// ascending priority:
//
//  1. A global bootstrap file (~/.config/dexto/dexto.json(c))
//  2. A project bootstrap file (<directory>/.dexto/dexto.json(c))
//  3. Environment variable overrides (provider API keys, DEXTO_MODEL)
//
// A missing bootstrap file is not an error; the Core runs fine on
// defaults plus environment variables alone.
//
// # Supported Formats
//
// Bootstrap files may be dexto.json (strict JSON) or dexto.jsonc
// (JSON with // and /* */ comments stripped before parsing).
//
// # Path Management
//
// GetPaths returns XDG Base Directory Specification compliant paths for
// the optional bootstrap file and auth storage; see paths.go. Storage
// data itself is resolved separately, through the storage path resolver
// (internal/storage/pathresolver), not through these XDG paths.
package config
