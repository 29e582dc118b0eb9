// Package middleware exposes an HTTP middleware adapter enforcing access token
// validation through a goToken.Service.
//
// [Guard] reads the Authorization header, calls Service.ValidateAccessToken, and
// injects the validated claims into the request context. Handlers downstream
// retrieve them with [ClaimsFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Service calls. It does NOT implement
// token logic itself. All decisions are delegated to ValidateAccessToken.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to the Service).
//   - Access Redis or Postgres (the Service handles I/O).
//   - Reveal why a request was rejected. Every failure is a uniform 401.
package middleware
