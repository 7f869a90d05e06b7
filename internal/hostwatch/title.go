// Package hostwatch turns the operator's terminal context into the name of
// the host to observe.
package hostwatch

import (
	"regexp"
	"strings"
)

var (
	titleHost = regexp.MustCompile(`@([^:\s]+)`)

	validIP       = regexp.MustCompile(`^([a-zA-Z0-9]+@)?((25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])\.){3}(25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])$`)
	validHostname = regexp.MustCompile(`^([a-zA-Z0-9]+@)?(([a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9\-]*[a-zA-Z0-9])\.)*([A-Za-z0-9]|[A-Za-z0-9][A-Za-z0-9\-]*[A-Za-z0-9])$`)
)

// HostFromTitle extracts the host from a terminal title such as
// "deploy@web1: ~/app". It returns "" when the title names no host.
func HostFromTitle(title string) string {
	m := titleHost.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	return m[1]
}

// ValidHost reports whether s is a hostname or IPv4 address, optionally
// prefixed by "user@".
func ValidHost(s string) bool {
	return validHostname.MatchString(s) || validIP.MatchString(s)
}

// Resolve interprets one line of operator input: a terminal title, a bare
// host name, or anything else (which selects the local machine).
func Resolve(input string) string {
	input = strings.TrimSpace(input)
	if h := HostFromTitle(input); h != "" {
		return h
	}
	if ValidHost(input) {
		return input
	}
	return ""
}
