// Package rules applies ordered text-rewrite rules to module source.
//
// Apply is a pure string-to-string transform: it never touches the module
// index. Patterns are compiled with regexp2 so rules can use lookaround and
// backreferences over minified code; literal patterns are escaped and go
// through the same path. Failures are localized here and returned as typed
// values, never panics.
package rules
