// Package guard decides whether payment operations may run at all: the page
// must be served over an encrypted transport, and the configured credentials
// should belong to the processing environment they are used against.
package guard

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Environment is the processing environment payments are taken in.
type Environment string

const (
	Sandbox    Environment = "sandbox"
	Production Environment = "production"
)

// sandboxAppIDPrefix marks application ids issued for the sandbox.
const sandboxAppIDPrefix = "sandbox-"

// ParseEnvironment maps a configuration value to an Environment.
// "live" is accepted as an alias of production.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sandbox":
		return Sandbox, nil
	case "production", "live":
		return Production, nil
	}
	return "", fmt.Errorf("unknown payment environment %q", s)
}

func (e Environment) String() string {
	return string(e)
}

// CheckSecureContext reports whether origin is served over an encrypted
// transport or from a local development host.
func CheckSecureContext(origin *url.URL) bool {
	if origin == nil {
		return false
	}
	switch strings.ToLower(origin.Scheme) {
	case "https", "wss":
		return true
	}
	return IsLocalHost(origin.Hostname())
}

// IsLocalHost reports whether host is a recognised local development name.
func IsLocalHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	switch host {
	case "localhost", "0.0.0.0":
		return true
	}
	if strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// ValidateCredentialEnvironment reports whether appID follows the naming
// convention of env. The convention is not authoritative; a false result is
// a warning, not a reason to block checkout.
func ValidateCredentialEnvironment(appID string, env Environment) bool {
	isSandboxID := strings.HasPrefix(appID, sandboxAppIDPrefix)
	switch env {
	case Sandbox:
		return isSandboxID
	case Production:
		return !isSandboxID
	}
	return false
}
