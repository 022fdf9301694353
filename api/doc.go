// Package api hosts the HTTP surface of the HIDO decision service.
//
// # API Overview
//
// HIDO exposes a JSON API for:
//   - Submitting intents with votes and receiving an explained decision
//   - Managing voters and guardrail rules at runtime
//   - Querying and verifying the hash-chained audit trail
//   - Streaming decisions over WebSocket
//   - Health, readiness and Prometheus metrics
//
// # Authentication
//
// When enabled, requests carry either an API key or a bearer token:
//
//	X-API-Key: your-api-key
//	Authorization: Bearer <jwt>
//
// Mutating voter and rule endpoints, plus the admin endpoints, require the
// "operator" role claim when JWT auth is on.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// All successful and failed responses share the envelope in
// api/handlers.Response.
package api
