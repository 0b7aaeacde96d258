/*
Package view drives the page load pipeline.

A Controller decides which page to show (a fresh cached copy, or one fetched
with the cached copy as a stale fallback), injects the bootstrap script,
creates a web view through a Factory and attaches it to the bridge. It tears
the view down again when the runtime crashes (and reloads), when the web app
reports a failed start (and shows the retry page), and when it is stopped.

Connectivity changes feed OnOnline and OnOffline: coming online with nothing
loaded starts a load; going offline cancels the in-flight one.
*/
package view
