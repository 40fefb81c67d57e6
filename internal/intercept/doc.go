// Package intercept installs method interceptions on dispatch classes.
//
// An interception makes every send of an original selector to a target class
// run a wrapper implementation first. The wrapper calls the original code by
// sending the wrapper selector, which after installation is bound to the
// implementation the original selector used to resolve to.
//
// INSTALL PROCEDURE:
//
// The target may define the original locally or only inherit it. Blindly
// exchanging bindings would rewrite an ancestor's table and change behavior
// for every sibling class, so Install first tries to add the wrapper code
// under the original selector on the target itself:
//
//   - add succeeded (original was inherited): the wrapper selector is bound
//     on the target to the implementation the original resolved to before
//     the add. Ancestors are untouched.
//   - add failed (original is local): the two local bindings are exchanged.
//     When the wrapper is only inherited, both selectors are bound locally
//     instead, with the same effect.
//
// ONE-SHOT LATCH:
//
// Each (class, original selector) pair is applied at most once for the
// lifetime of a Registry. Concurrent installs of the same pair collapse onto
// a single execution; the losers block and see its outcome. A failed
// execution is reported to every caller that joined it and then released, so
// a later call may retry.
package intercept
