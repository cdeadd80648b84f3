// Package persistence stores the client sync state that must survive
// restarts: the negotiated API version and the position in the
// notification stream.
package persistence
