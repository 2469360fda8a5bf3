// Package session stores web sessions in the same key-value backend as the documents.
//
// A session is a JSON object at <prefix><sid> (prefix "sess:" by default) written with
// SetE, so the backend expires it on its own. The ttl is taken from the session's
// cookie.expires field if present and defaults to one day otherwise. Touch rewrites
// the session to restart its ttl.
package session
