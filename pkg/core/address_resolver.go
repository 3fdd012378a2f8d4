package core

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPort is the Zaparoo Core API port
	DefaultPort = 7497
	// DefaultHost is used when the address is empty
	DefaultHost = "localhost"
	// APIPath is the fixed websocket endpoint path
	APIPath = "/api/v0.1"
)

// Endpoint is a resolved device address
type Endpoint struct {
	Host   string
	Port   int
	Path   string
	Secure bool
}

// URL renders the websocket URL for the endpoint. IPv6 hosts keep their
// brackets.
func (e Endpoint) URL() string {
	scheme := "ws"
	if e.Secure {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   e.Host + ":" + strconv.Itoa(e.Port),
		Path:   e.Path,
	}
	return u.String()
}

func (e Endpoint) String() string {
	return e.URL()
}

// ResolveAddress parses host, host:port or [ipv6]:port into an Endpoint.
// It never fails: anything that does not carry a valid port is treated as a
// bare host on the default port.
func ResolveAddress(address string) Endpoint {
	address = strings.TrimSpace(address)
	endpoint := Endpoint{Host: DefaultHost, Port: DefaultPort, Path: APIPath}
	if address == "" {
		return endpoint
	}

	if strings.HasPrefix(address, "[") {
		if end := strings.Index(address, "]"); end > 0 {
			endpoint.Host = address[:end+1]
			rest := address[end+1:]
			if strings.HasPrefix(rest, ":") {
				if port, ok := parsePort(rest[1:]); ok {
					endpoint.Port = port
				}
			}
			return endpoint
		}
	}

	// bare IPv6 literal: bracket it so the URL stays parseable
	if strings.Count(address, ":") > 1 {
		if ip := net.ParseIP(address); ip != nil {
			endpoint.Host = "[" + address + "]"
			return endpoint
		}
	}

	idx := strings.LastIndex(address, ":")
	if idx < 0 {
		endpoint.Host = address
		return endpoint
	}

	host, segment := address[:idx], address[idx+1:]
	port, ok := parsePort(segment)
	switch {
	case ok:
		endpoint.Port = port
	case isDigits(segment):
		// numeric but out of range: keep the host, use the default port
	default:
		endpoint.Host = address
		return endpoint
	}
	if host != "" {
		endpoint.Host = host
	}
	return endpoint
}

// ResolveSecureAddress resolves address for a wss:// endpoint
func ResolveSecureAddress(address string) Endpoint {
	endpoint := ResolveAddress(address)
	endpoint.Secure = true
	return endpoint
}

// parsePort accepts only ASCII digits in [1,65535]
func parsePort(s string) (int, bool) {
	if !isDigits(s) || len(s) > 5 {
		return 0, false
	}
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, false
	}
	return port, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
