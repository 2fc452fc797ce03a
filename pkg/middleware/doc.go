// Package middleware implements the per-route guard pipeline.
//
// A route is an ordered list of named guards followed by one handler:
//
//	pipeline := middleware.NewPipeline(
//		middleware.Authenticate(authenticator),
//		middleware.RequireRoles(rbac.NewRoleSet(rbac.RoleSA, rbac.RoleDistrictAdministrator)),
//		middleware.RequireCreatableRole(rbac.DefaultCreatePolicy()),
//	)
//	router.Handle("/users", httputil.Handle(pipeline.Then(createUser))).Methods("POST")
//
// Guards run strictly in order. The first guard that returns an error stops
// the pipeline and the error reaches the httputil error boundary unchanged;
// later guards and the handler never run.
//
// # Guards
//
//   - Authenticate: bearer token to auth.Identity (401 on failure)
//   - RequireRoles: identity role must be in the route's role set (403)
//   - RequireCreatableRole: body role must be creatable by the caller (400/403)
//   - RateLimit: per client IP token bucket, in memory or Redis backed (429)
//
// # Related Packages
//
//   - pkg/auth: token verification and identity resolution
//   - pkg/rbac: roles and the create policy
package middleware
