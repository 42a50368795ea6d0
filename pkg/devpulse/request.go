// request.go extracts request metadata. Everything read from the request is
// untrusted input and is sanitized before it enters an event.

package devpulse

import (
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"unicode"
)

func sanitizeRequest(r *http.Request, homeURL string) *Request {
	return &Request{
		URL:    requestURL(r, homeURL),
		Method: sanitizeMethod(r.Method),
		IP:     sanitizeIP(r.RemoteAddr),
	}
}

// requestURL resolves the request URI against homeURL, or against the
// request's own scheme and host when no home URL is configured.
func requestURL(r *http.Request, homeURL string) string {
	uri := r.RequestURI
	if uri == "" && r.URL != nil {
		uri = r.URL.RequestURI()
	}
	uri = filterURL(uri)

	// Absolute-form request targets keep only their path and query.
	if u, err := url.Parse(uri); err == nil && u.IsAbs() {
		uri = u.RequestURI()
	}
	if !strings.HasPrefix(uri, "/") {
		uri = "/" + uri
	}

	base := strings.TrimRight(filterURL(homeURL), "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		host := sanitizeHost(r.Host)
		if host == "" {
			host = "localhost"
		}
		base = scheme + "://" + host
	}

	full := base + uri
	if _, err := url.Parse(full); err != nil {
		return base + "/"
	}
	return full
}

// filterURL removes every character that may not appear in a URL.
func filterURL(s string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		if 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9' {
			return r
		}
		if strings.ContainsRune("$-_.+!*'(),{}|\\^~[]`<>#%\";/?:@&=", r) {
			return r
		}
		return -1
	}, s)
}

func sanitizeHost(host string) string {
	return strings.Map(func(r rune) rune {
		if 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9' {
			return r
		}
		if strings.ContainsRune(".-:[]", r) {
			return r
		}
		return -1
	}, host)
}

// sanitizeMethod keeps only HTTP token characters and defaults to GET.
func sanitizeMethod(method string) string {
	method = strings.Map(func(r rune) rune {
		if 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9' {
			return r
		}
		if strings.ContainsRune("!#$%&'*+-.^_`|~", r) {
			return r
		}
		return -1
	}, method)
	if method == "" {
		return http.MethodGet
	}
	return method
}

// sanitizeIP returns the client address without its port, or nil if unknown.
func sanitizeIP(remoteAddr string) *string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return stringPtr(addr.String())
	}

	host = strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, host))
	if host == "" {
		return nil
	}
	return stringPtr(host)
}
