// Package session resolves a stable session identifier for each caller.
package session

import (
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
)

// HeaderSessionID is the header the widget sets on every request once it has
// stored a session token client-side.
const HeaderSessionID = "X-Session-ID"

// anonSignal stands in for the user agent when the request carries none.
const anonSignal = "anon"

// Resolve derives a stable session identifier for the request.
//
// The explicit X-Session-ID header is preferred. Without it, the identifier
// degrades to an md5 fingerprint of the User-Agent header: two callers with
// identical user agents then share one conversation. The fallback only exists
// to keep the widget functional without client-side session storage; real
// deployments should always send the header.
func Resolve(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderSessionID)); id != "" {
		return id
	}
	signal := r.Header.Get("User-Agent")
	if signal == "" {
		signal = anonSignal
	}
	sum := md5.Sum([]byte(signal))
	id := hex.EncodeToString(sum[:])
	slog.Debug("session.Resolve: no session header, derived low-entropy fingerprint from user agent", "sessionID", id)
	return id
}
