// Package env decides whether requests should be routed to a mock backend.
package env

import (
	"net/url"
	"strconv"
	"strings"
)

// DefaultMockPrefix is the path segment of the local mock backend.
const DefaultMockPrefix = "mock"

// Detector reports the environment the dispatcher runs in.
type Detector interface {
	// IsDevelopment reports whether requests go to a development backend.
	IsDevelopment() bool
	// MockPathPrefix is the path segment prepended to URLs in development.
	MockPathPrefix() string
	// IgnoredPathSegments lists path segments dropped from development URLs.
	IgnoredPathSegments() []string
}

// Static is a fixed Detector.
type Static struct {
	Development     bool
	MockPrefix      string
	IgnoredSegments []string
}

// Production returns a detector that never rewrites URLs.
func Production() Static {
	return Static{MockPrefix: DefaultMockPrefix}
}

// Development returns a detector routing through the given mock prefix.
func Development(mockPrefix string) Static {
	if mockPrefix == "" {
		mockPrefix = DefaultMockPrefix
	}
	return Static{Development: true, MockPrefix: mockPrefix}
}

func (s Static) IsDevelopment() bool { return s.Development }

func (s Static) MockPathPrefix() string {
	if s.MockPrefix == "" {
		return DefaultMockPrefix
	}
	return s.MockPrefix
}

func (s Static) IgnoredPathSegments() []string { return s.IgnoredSegments }

// FromURL derives a detector from a page URL.
//
// The develop query parameter wins when present ("1" on, "0" off). Otherwise
// localhost, 127.0.0.1 and the 192.168.x.x LAN (except the shared staging
// host 192.168.49.61) count as development. The proxy parameter selects the
// mock prefix and ignorePrefix lists comma-separated segments to drop.
func FromURL(u *url.URL) Static {
	s := Production()
	if u == nil {
		return s
	}
	q := u.Query()

	if v := q.Get("develop"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		s.Development = err == nil && n != 0
	} else {
		host := u.Hostname()
		s.Development = host == "localhost" ||
			host == "127.0.0.1" ||
			(strings.HasPrefix(host, "192.168") && host != "192.168.49.61")
	}

	if p := q.Get("proxy"); p != "" {
		s.MockPrefix = p
	}
	if ignore := q.Get("ignorePrefix"); ignore != "" {
		for _, seg := range strings.Split(ignore, ",") {
			if seg = strings.TrimSpace(seg); seg != "" {
				s.IgnoredSegments = append(s.IgnoredSegments, seg)
			}
		}
	}
	return s
}
