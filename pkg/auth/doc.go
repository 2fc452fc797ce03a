// Package auth resolves the caller of a request into an Identity.
//
// # Overview
//
// Authentication happens in two steps:
//
//  1. A TokenVerifier checks the bearer credential and returns the user id it
//     was issued for.
//  2. An IdentityResolver loads the user record for that id and projects it
//     into an Identity {UserID, Role, DistrictID, Status}.
//
// Authenticator combines both steps and classifies every failure as
// apierrors.KindUnauthenticated. It never retries and fails closed.
//
// # Verifiers
//
// OIDCVerifier validates identity-provider issued tokens (AWS Cognito user
// pools) through OpenID Connect discovery and JWKS:
//
//	verifier, err := auth.NewOIDCVerifier(ctx,
//		"https://cognito-idp.eu-west-1.amazonaws.com/eu-west-1_AbCdEf", clientID)
//
// HMACVerifier validates HS256 tokens signed with a shared secret. It is used
// in development and in tests, and can issue tokens:
//
//	verifier := auth.NewHMACVerifier([]byte(secret), "schoolhouse")
//	token, err := verifier.Issue(userID, time.Hour)
//
// # Identity in context
//
// The resolved Identity is stored in the request context with WithIdentity and
// read back with FromContext. It is a value and is never mutated during the
// request.
package auth
