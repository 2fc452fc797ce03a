// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// Handlers in this service return errors instead of writing them. Handle wraps
// such a handler and is the single error boundary: classified errors from
// pkg/apierrors are written as
//
//	{"error": "<kind>", "message": "<client-safe message>"}
//
// with the kind's HTTP status. Untyped errors become "internal" with a generic
// message and are logged with the request id.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, readModel)
//	httputil.WriteText(w, http.StatusCreated, id)
//	httputil.WriteNoContent(w)
//	httputil.WriteAppError(w, err)
//
// # Request Parsing
//
//	var body UpdateUserRequest
//	if err := httputil.ParseJSON(r, &body); err != nil {
//		return err // validation error
//	}
//	id, err := httputil.ParsePathString(r, "userId")
//	page, err := httputil.ParseQueryInt(r, "page", 1)
//	roles := httputil.ParseQueryList(r, "roles")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware(),
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: authentication, role and rate limit guards
//   - pkg/apierrors: error kinds and status mapping
package httputil
