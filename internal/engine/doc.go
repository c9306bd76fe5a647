// Package engine owns the single analysis resource a worker process serves.
//
// Open loads a resource archive once at startup and returns a *Resource, or a
// *LoadError classified as NOT_FOUND, CORRUPT or UNSUPPORTED_FORMAT. The
// resource then answers Analyze calls until Close. Analysis failures are
// always *AnalysisError values:
//
//	TIMEOUT        the call's deadline passed
//	INVALID_INPUT  empty, oversized or non UTF-8 text
//	ENGINE_FAULT   anything else the analyzer reported, including panics
//	OVERLOADED     produced by the admission guard, never by the resource
//
// The analyzer behind a resource is opaque. Factories for each kind are
// passed to Open, so tests can build isolated resources with fake analyzers.
package engine
