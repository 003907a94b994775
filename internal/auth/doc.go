// Package auth carries per-request calendar credentials through a single
// resolution cycle.
//
// A Context is the opaque bundle supplied by the caller (linked accounts with
// their OAuth tokens). A Carrier scopes it to one cycle: tools receive the
// carrier as an explicit argument, read the bundle through Credentials, and
// lose access when the resolver calls Close. Nothing in this package stores
// credentials, and neither type ever renders token material in logs.
package auth
