/*
Package fetch downloads the web app document.

Requests go through a resty client on the retryablehttp pooled transport.
Failed attempts are retried with randomized exponential backoff; after more
than the stale threshold of consecutive failures a previously cached page is
served instead when one is available. Cancellation of the context is honoured
before connecting, after the response arrives, between body chunks and while
waiting to retry.
*/
package fetch
