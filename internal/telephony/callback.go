package telephony

import (
	"net/http"
	"strings"
)

// CallbackURL returns the absolute URL Twilio should call for path.
// A configured public base wins over anything derived from the request;
// behind a dev tunnel the request host is not reachable from Twilio.
func CallbackURL(r *http.Request, publicBase, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if base := strings.TrimRight(strings.TrimSpace(publicBase), "/"); base != "" {
		return base + path
	}

	proto := firstHeaderValue(r.Header.Get("X-Forwarded-Proto"))
	if proto == "" {
		proto = "http"
		if r.TLS != nil {
			proto = "https"
		}
	}
	host := firstHeaderValue(r.Header.Get("X-Forwarded-Host"))
	if host == "" {
		host = r.Host
	}
	return proto + "://" + host + path
}

// Proxies may append to forwarding headers: "https, http".
func firstHeaderValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
