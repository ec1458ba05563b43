// Package connection owns the database handle shared by the cache layer.
//
// A Manager replaces the module-level connection singleton: it is created
// explicitly, passed to whoever needs the handle, and closed when done, so
// several isolated instances can live side by side in tests.
//
// Requesting a connection with a configuration that is deeply equal to the
// previous one returns the existing handle without a new handshake. A
// changed configuration connects again.
package connection
