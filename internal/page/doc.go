// Package page models the cached web app document: its freshness policy and
// the bootstrap script injected before it is handed to the web runtime.
package page
