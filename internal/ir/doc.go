// Package ir provides the canonical intermediate representation for swizzle.
//
// This package contains value and declaration types only. All other internal
// packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types and NO null anywhere - arguments and return values are
//     restricted to string, int64, bool, array and object
//   - Class, method and interception declarations are plain data; behavior is
//     attached by the engine when it builds a dispatch runtime
//   - Trace ordering uses logical sequence numbers, never wall-clock time
//   - All JSON tags use snake_case
package ir
