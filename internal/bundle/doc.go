// Package bundle reads and writes compiled linguistic resource archives.
//
// An archive is a zip container holding a manifest.yaml plus the members
// its kind needs: a zstd-compressed lexicon for spellers, a rules.yaml for
// grammar checkers. Every member listed in the manifest checksums is
// verified with BLAKE2b-256 when the archive is opened.
package bundle
