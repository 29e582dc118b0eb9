// Package internal contains helper utilities that are intentionally private
// to goToken, including JTI generation and token hashing.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - flows — pure-function flow orchestrators for every Service operation
//   - rate — Redis-backed refresh throttle primitives
//
// # What this package must NOT do
//
//   - Export types that appear in the public goToken API.
//   - Be imported by any package outside the goToken module.
package internal
