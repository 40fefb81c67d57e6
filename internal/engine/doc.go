// Package engine runs compiled swizzle programs.
//
// The engine turns an ir.Program into a live dispatch runtime: every class is
// defined in hierarchy order and every method body becomes an implementation
// that interprets its steps. Boot then installs the program's declared
// interceptions through an intercept.Registry, and Send delivers messages to
// fresh instances.
//
// STEP LANGUAGE:
//
//	log: "text"            append a log event
//	send: "sel"            send sel to self through normal dispatch
//	super: "sel"           send sel starting at the defining class's superclass
//	return: value          end the body with value
//
// send and super forward the received arguments unless args is given.
// Strings may contain placeholders: ${0}..${N} for arguments, ${result} for
// the last send/super result, ${class} for the receiver's class. A string that
// is exactly one placeholder yields the raw value; otherwise the placeholder
// is substituted as text.
//
// TRACE:
//
// Every install, send, log and return is stamped by the logical Clock and kept
// in memory; with a store, events are also journaled. Seq order is the order
// events happened, never wall-clock time.
//
// CONCURRENCY:
//
// Send is safe from any goroutine. Calls resolve their implementation under
// the runtime read lock and run unlocked, so a call that resolved before an
// interception landed keeps its original implementation.
package engine
