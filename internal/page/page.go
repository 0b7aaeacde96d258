package page

import (
	"strings"
	"time"
)

// Headers maps lower-cased response header names to their first value.
type Headers map[string]string

// Get returns the value for name, matched case-insensitively.
func (h Headers) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Set stores value under the lower-cased name, replacing any previous value.
func (h Headers) Set(name, value string) {
	h[strings.ToLower(name)] = value
}

// CachedPage is a downloaded web app document with its validation metadata.
type CachedPage struct {
	HTML    string
	Headers Headers

	// LastValidatedAt is when the page was last confirmed by the server.
	// The zero value means never.
	LastValidatedAt time.Time
}

// New creates a page with headers normalised to lower-case keys.
func New(html string, headers map[string]string, validatedAt time.Time) *CachedPage {
	p := &CachedPage{
		HTML:            html,
		Headers:         make(Headers, len(headers)),
		LastValidatedAt: validatedAt,
	}
	for k, v := range headers {
		p.Headers.Set(k, v)
	}
	return p
}

// ETag returns the entity tag the server sent with the page.
func (p *CachedPage) ETag() string {
	return p.Headers.Get("etag")
}

// LastModified returns the Last-Modified header the server sent.
func (p *CachedPage) LastModified() string {
	return p.Headers.Get("last-modified")
}

// Validated returns a copy stamped with the given validation time.
func (p *CachedPage) Validated(at time.Time) *CachedPage {
	cp := p.clone()
	cp.LastValidatedAt = at
	return cp
}

func (p *CachedPage) clone() *CachedPage {
	headers := make(Headers, len(p.Headers))
	for k, v := range p.Headers {
		headers[k] = v
	}
	return &CachedPage{
		HTML:            p.HTML,
		Headers:         headers,
		LastValidatedAt: p.LastValidatedAt,
	}
}
