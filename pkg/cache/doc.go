// Package cache holds resolved identities so authentication does not hit
// the user store on every request.
//
// LRU is an in-process expirable LRU for a single instance. Redis shares
// entries and invalidations between instances and is used alone whenever
// Redis is configured. Fills carry the generation read before the store
// load, so a record loaded while a mutation commits is never cached.
// Backend failures are treated as misses: the store is always the source of
// truth and a cache never fails a request.
package cache
