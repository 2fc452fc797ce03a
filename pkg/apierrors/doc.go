// Package apierrors defines the error kinds the service reports to callers.
//
// Every failure that reaches the HTTP boundary is classified into one Kind.
// Guards and handlers return *Error values (directly or wrapped) and the
// boundary in pkg/httputil maps the kind to a status code and a JSON body:
//
//	{"error": "forbidden", "message": "role ClassTeacher may not create SA"}
//
// Errors that carry no kind are reported as internal failures with a generic
// message so storage or driver details never leak to clients.
package apierrors
