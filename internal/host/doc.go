// Package host replays a recorded module bundle through the engine.
//
// A bundle is a YAML list of modules with their source text and a sketch of
// their exports. The host turns each module into loader events (source
// available, then instantiated or failed), queues them in file order, and a
// single Run goroutine feeds them to the engine one at a time.
package host
