package auth

import "net/http"

// NewHTTPClient creates the default transport. Deadlines come from the
// exchange context rather than the client; on js/wasm the standard transport
// is backed by fetch.
func NewHTTPClient() HTTPClient {
	return &http.Client{}
}
