// Package users implements the user and district domain: the entity, its
// read models, the command and query handlers registered on the bus, and the
// identity resolver used by authentication.
//
// Handlers receive the caller's Identity inside each message. The district a
// handler works in is always taken from that identity, never from a request
// body, so a caller can only reach users in its active district. System
// administrators change their active district with SelectDistrict.
//
// Persistence is behind Store; pkg/storage/memory and pkg/storage/postgres
// provide implementations.
package users
