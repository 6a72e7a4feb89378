//go:build js && wasm

package env

import "github.com/syumai/workers/cloudflare"

// Get reads a Worker binding variable. Empty bindings are reported as unset.
func Get(key string) (string, bool) {
	v := cloudflare.Getenv(key)
	return v, v != ""
}
