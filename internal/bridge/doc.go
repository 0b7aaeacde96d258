/*
Package bridge carries messages between the host and the embedded web app.

Web to native messages arrive as JSON strings of the form
{"type": "...", "payload": ...} through HandleInbound and are dispatched to a
Handler on the UI loop. Native to web messages are evaluated in the web
runtime as window.zapic.dispatch(<json>) statements.

# Readiness

The bridge moves through NotCreated, Loaded, Started and Ready. It only moves
forward until Reset is called when the runtime is destroyed. Events submitted
before the app reports APP_STARTED are held in a bounded backlog that drops
its oldest entry when full; the backlog is flushed in order on start.

# Coalescing

Outbound messages sent within the debounce window (20ms by default) are joined
with ";" and evaluated as a single script.
*/
package bridge
