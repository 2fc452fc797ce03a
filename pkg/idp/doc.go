// Package idp talks to the external identity provider that owns user
// credentials.
//
// Only three calls are used: account creation with an optional temporary
// password, setting a permanent password, and confirming a forgot-password
// code. Cognito implements them over the AWS SDK; Noop logs and succeeds and
// is meant for local development.
//
// All Provider errors are classified with pkg/apierrors so they can be
// returned to clients unchanged.
package idp
