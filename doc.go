// Package authclient is a client SDK for REST auth backends exposing the
// /api/v1/auth surface: login with optional two factor challenges, token
// refresh, profile management, and device session control.
//
// Session store:
//   - Store holds the session as a tagged state (uninitialized,
//     unauthenticated, pending two factor, authenticated) guarded by an
//     explicit transition table. It persists the durable subset (user,
//     tokens, remember flag, pending challenge) through a pluggable Storage
//     backend and notifies subscribers on every change. External mutations
//     of the backend (another process logging out) force a local logout,
//     never a merge.
//
// Transport:
//   - Transport is an http.RoundTripper that attaches the bearer token and
//     transparently refreshes it on 401. Concurrent requests share a single
//     in-flight refresh; each request is replayed at most once. A failed
//     refresh tears the session down and emits a forced logout event.
//
// Guard:
//   - Guard turns a session snapshot plus a route's role requirements into a
//     wait/allow/redirect decision. RouteGuard adapts it to go-router
//     middleware; middleware/guardware does the same for Fiber.
//
// Event sinks:
//   - EventSink receives lifecycle events (login success/failure, token
//     refreshed, forced logout with reason). Sinks run best-effort so you can
//     forward to telemetry without blocking auth flows.
package authclient
