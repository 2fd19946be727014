// Package all wires the built-in storage backends into the storage factory.
//
// It exists purely for side effects: a blank import runs each backend's
// init function, registering its factory and DDL bootstrapper. Importing
// this package makes the "postgres" and "sqlite" kinds available at
// runtime. Binaries that need only one backend can import that backend
// package directly instead.
package all

import (
	_ "conductor/internal/storage/postgres"
	_ "conductor/internal/storage/sqlite"
)
