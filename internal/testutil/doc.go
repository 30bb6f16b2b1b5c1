// Package testutil provides deterministic fakes shared by package tests:
// an in-memory session journal and a fixed session id source.
//
// Nothing here imports the engine, so engine tests can use it too.
package testutil
