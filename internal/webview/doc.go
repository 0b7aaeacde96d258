/*
Package webview provides a headless page runtime on a goja VM.

A View loads an HTML document by running its inline scripts in order and
exposes the small browser surface the bootstrap and the web app rely on:

	window                         the global object
	console.log/info/warn/error    routed to zap
	setTimeout/setInterval         scheduled on the UI loop
	androidWebView.dispatch(json)  the native interface
	androidWebView.chooseFile(accept, callback)

Every script and timer callback runs under an evaluation timeout. A script
that exceeds it is interrupted, the view is destroyed and the crash handler
is told, the same way a renderer process dying is reported.
*/
package webview
