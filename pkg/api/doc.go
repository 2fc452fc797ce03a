// Package api provides the HTTP REST API of the schoolhouse user service.
//
// # Overview
//
// Every route is a middleware.Pipeline of named guards followed by a handler
// that turns the request into a bus message and writes the result. Handlers
// return errors; httputil.Handle turns them into {"error","message"} bodies
// with the status of the apierrors kind.
//
// # Routes
//
//	POST   /users                   staff, create policy   201 new id (text)
//	GET    /users                   staff                  200 page of list items
//	GET    /users/current           any role               200 caller
//	GET    /users/{userId}          staff                  200 user
//	PUT    /users/{userId}          staff                  204
//	DELETE /users/{userId}          SA, DA, SchA           204
//	POST   /users/select-district   SA                     201
//	POST   /districts               SA                     201 new id (text)
//	GET    /districts               SA                     200
//	POST   /set-password/{userId}   public, rate limited   201
//	POST   /reset-password          public, rate limited   201
//
// Staff is every role except Student.
//
// # Usage
//
//	srv, err := api.NewServer(b, authenticator,
//		api.WithMetrics(metrics),
//		api.WithRateLimiter(limiter),
//	)
//	if err != nil {
//		return err
//	}
//	http.ListenAndServe(":8080", srv)
//
// NewServer fails when the bus has no handler for a message a route
// dispatches, so wiring mistakes surface at startup.
package api
