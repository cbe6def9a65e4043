package config

import (
	"os"
	"strings"
)

// SyncClientImages makes the client sync step also cache a thumbnail of the client's image.
//
// Set via env:
// - SYNC_CLIENT_IMAGES=true
func SyncClientImages() bool {
	return EnvBoolDefault("SYNC_CLIENT_IMAGES", false)
}

// SyncInline runs sync runs in the triggering request instead of publishing them to Pub/Sub.
//
// Set via env:
// - SYNC_INLINE=true
func SyncInline() bool {
	return EnvBoolDefault("SYNC_INLINE", false)
}

// SyncDepositTypes lists the savings deposit types whose transaction template is synced.
//
// Set via env:
// - SYNC_DEPOSIT_TYPES="savings,recurring"
//
// Types are case-insensitive; the default is savings and recurring.
func SyncDepositTypes() map[string]bool {
	raw := strings.TrimSpace(os.Getenv("SYNC_DEPOSIT_TYPES"))
	if raw == "" {
		return map[string]bool{"savings": true, "recurring": true}
	}
	out := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out[part] = true
		}
	}
	return out
}
