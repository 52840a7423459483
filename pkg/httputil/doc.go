// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, agent)
//	httputil.WriteBadRequest(w, "name is required")
//	httputil.WriteDetailedError(w, http.StatusForbidden, err, details)
//
// Every error body has the shape {"error": "...", "details": {...}}.
//
// # Request Parsing
//
//	var req orgs.CreateAgentRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	siteID, ok := httputil.ParsePathInt64OrError(w, r, "site_id")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//	)(router)
//
// RequestIDMiddleware must run first so the request logger carries request_id.
package httputil
