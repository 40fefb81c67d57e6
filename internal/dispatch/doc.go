// Package dispatch implements the class-owned method tables that interception
// operates on.
//
// A Runtime owns named classes. Each class has at most one superclass and a
// local table mapping selectors to implementations; resolution walks from the
// receiver's class up through its ancestors and returns the first local
// binding it finds.
//
// CONCURRENCY:
//
// Reads (Resolve, Send, Table) take the runtime read lock only while
// resolving. The resolved implementation is then called without any lock
// held, so a call that has already resolved keeps running the implementation
// it found even if the table changes underneath it.
//
// Writes to existing tables go through Mutate, which holds the write lock for
// the whole transaction and restores every touched binding if the
// transaction body returns an error.
package dispatch
