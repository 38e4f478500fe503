package logging

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Redacted replaces sensitive values in log output.
const Redacted = "[REDACTED]"

// plainKeys may be logged verbatim by Secret. Kept sorted.
var plainKeys = []string{
	"component",
	"digest",
	"engine",
	"env",
	"error",
	"message",
	"operation",
	"reason",
	"sale",
	"service",
	"severity",
	"timestamp",
}

// PlainKeys returns a copy of the keys Secret never redacts.
func PlainKeys() []string {
	return slices.Clone(plainKeys)
}

func isPlain(key string) bool {
	_, found := slices.BinarySearch(plainKeys, strings.ToLower(strings.TrimSpace(key)))
	return found
}

// Secret logs value under key, replacing it with Redacted unless key is one of
// PlainKeys. Empty values are logged as-is.
func Secret(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || isPlain(key) {
		return slog.String(key, value)
	}
	return slog.String(key, Redacted)
}

// Account logs addr shortened to its first and last two bytes, enough to
// correlate log lines with a participant without publishing the full list.
func Account(key string, addr common.Address) slog.Attr {
	hex := addr.Hex()
	return slog.String(key, hex[:6]+".."+hex[len(hex)-4:])
}
