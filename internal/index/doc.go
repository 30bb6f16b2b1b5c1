// Package index holds the module source table and the signature matcher.
//
// The index keeps one Record per module the loader reports: its immutable raw
// source, the patched source once any rule set has committed, its lifecycle
// state and, after instantiation, its exports. The matcher answers "which
// modules contain this literal fragment" over the current text of every
// record. Neither type locks; both are owned by the engine's single writer.
package index
