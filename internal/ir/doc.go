// Package ir provides the shared types for patchwork.
//
// This package contains type definitions, canonical serialization and
// content hashes only. All other internal packages import ir; ir imports
// nothing internal.
//
// Key design constraints:
//   - Module ids are opaque strings assigned by the host loader
//   - Rule sets are declarative data: a pattern plus a template or function
//   - Content-addressed ids use RFC 8785 canonical JSON and SHA-256
//   - All JSON tags use snake_case
package ir
