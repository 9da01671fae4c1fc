// Package toolcatalog normalizes tool descriptors listed by a tool server into
// a provider-neutral, immutable catalog.
//
// A catalog is built once per session. Refreshing the tool list produces a
// new catalog; a built catalog is never mutated and is safe to share between
// goroutines.
package toolcatalog
