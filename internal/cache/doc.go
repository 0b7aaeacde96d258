/*
Package cache persists host state on disk.

Layout under <dir>/zapic:

	web-page.gz      cached web app document with its validation headers
	installation.gz  {"id": "<uuid>"}
	events.gz        event backlog saved at shutdown
	share/           scratch files handed to the platform share sheet

Every entry is gzip compressed UTF-8 JSON written to a temp file and renamed
into place. I/O is attempted up to three times before giving up. An entry
that cannot be decoded is treated as absent and deleted.
*/
package cache
