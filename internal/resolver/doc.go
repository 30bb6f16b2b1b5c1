// Package resolver binds lazy export requests to modules as they instantiate.
//
// A request names a signature (a literal fragment of the module's source)
// and a selector over the module's exports. Request resolves immediately
// against modules that are already instantiated, otherwise the request waits
// until OnModuleInstantiated sees a qualifying module. Resolution happens
// inside that call; nothing is deferred to another goroutine.
//
// Handles are explicit futures with a waiter list. They are the only
// goroutine-safe type in the package so that Wait can block elsewhere.
package resolver
