// Package handlers contains the gin handlers of the gamification API.
//
// Every response uses the same envelope:
//
//	{"success": true, "data": ..., "meta": {"timestamp": ..., "version": "v1"}, "request_id": "..."}
//
// Errors carry {"code", "message"} and are mapped from domain errors by
// Classify: validation failures become 400, missing rows 404, duplicate
// rows 409. Anything else is logged and reported as a bare 500.
//
// All routes under /api/v1/gamification require a bearer token verified by
// Authenticator. The token subject is the user the request acts for; admin
// routes additionally require the "admin" role claim.
//
// # Health Checks
//
//	checker := handlers.NewCompositeHealthChecker(version)
//	checker.AddCheck("database", handlers.PingCheck(store))
//	checker.AddOptionalCheck("redis", handlers.PingCheck(cache))
//
// A failing optional check shows up in /ready without failing it.
package handlers
