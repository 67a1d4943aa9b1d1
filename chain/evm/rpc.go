package evm

import (
	"errors"
	"fmt"
	"strings"
)

// URLSchemePreference defines URL scheme preferences for RPC connections.
type URLSchemePreference int

const (
	URLSchemePreferenceNone URLSchemePreference = iota
	URLSchemePreferenceWS
	URLSchemePreferenceHTTP
)

// URLSchemePreferenceFromString converts a string to URLSchemePreference. An empty string
// maps to URLSchemePreferenceHTTP.
func URLSchemePreferenceFromString(s string) (URLSchemePreference, error) {
	switch strings.ToLower(s) {
	case "", "http", "https":
		return URLSchemePreferenceHTTP, nil
	case "ws", "wss":
		return URLSchemePreferenceWS, nil
	default:
		return URLSchemePreferenceNone, fmt.Errorf("invalid URL scheme preference: %q", s)
	}
}

// RPC represents a single RPC endpoint configuration.
type RPC struct {
	Name               string
	WSURL              string
	HTTPURL            string
	PreferredURLScheme URLSchemePreference
}

// ToEndpoint returns the URL to dial according to the preferred scheme.
func (r RPC) ToEndpoint() (string, error) {
	switch r.PreferredURLScheme {
	case URLSchemePreferenceWS:
		if r.WSURL == "" {
			return "", fmt.Errorf("rpc %q prefers websocket but has no ws url", r.Name)
		}

		return r.WSURL, nil
	case URLSchemePreferenceHTTP, URLSchemePreferenceNone:
		if r.HTTPURL == "" {
			return "", fmt.Errorf("rpc %q has no http url", r.Name)
		}

		return r.HTTPURL, nil
	default:
		return "", errors.New("unknown url scheme preference")
	}
}

// RPCConfig is the configuration for dialing a chain. It contains the network name used
// in logs and a list of RPCs, the first being the preferred one.
type RPCConfig struct {
	ChainName string
	RPCs      []RPC
}
