package devpulse

import (
	"crypto/tls"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeRequest_HomeURL(t *testing.T) {
	r := httptest.NewRequest("GET", "/shop/cart?item=42", nil)
	r.Host = "evil.example.net"

	req := sanitizeRequest(r, "https://shop.example.com/")

	assert.Equal(t, "https://shop.example.com/shop/cart?item=42", req.URL)
}

func TestSanitizeRequest_HostFallback(t *testing.T) {
	r := httptest.NewRequest("GET", "/status", nil)
	r.Host = "api.example.com:8443"
	r.TLS = &tls.ConnectionState{}

	req := sanitizeRequest(r, "")

	assert.Equal(t, "https://api.example.com:8443/status", req.URL)
}

func TestSanitizeRequest_StripsInvalidCharacters(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RequestURI = "/search?q=café latte\r\nX-Injected: 1"
	r.Host = "example.com\r\n"

	req := sanitizeRequest(r, "")

	assert.Equal(t, "http://example.com/search?q=caflatteX-Injected:1", req.URL)
	assert.NotContains(t, req.URL, "\n")
}

func TestSanitizeRequest_AbsoluteFormTarget(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RequestURI = "http://other.example.org/admin?x=1"

	req := sanitizeRequest(r, "https://example.com")

	assert.Equal(t, "https://example.com/admin?x=1", req.URL)
}

func TestSanitizeMethod(t *testing.T) {
	assert.Equal(t, "POST", sanitizeMethod("POST"))
	assert.Equal(t, "GET", sanitizeMethod(""))
	assert.Equal(t, "GET", sanitizeMethod("\r\n"))
	assert.Equal(t, "PROPFIND", sanitizeMethod("PROP FIND"))
}

func TestSanitizeIP(t *testing.T) {
	ip := sanitizeIP("203.0.113.9:443")
	require.NotNil(t, ip)
	assert.Equal(t, "203.0.113.9", *ip)

	ip = sanitizeIP("[2001:db8::1]:8080")
	require.NotNil(t, ip)
	assert.Equal(t, "2001:db8::1", *ip)

	ip = sanitizeIP("@unix\x00socket")
	require.NotNil(t, ip)
	assert.Equal(t, "@unixsocket", *ip)

	assert.Nil(t, sanitizeIP(""))
}
