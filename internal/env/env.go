//go:build !js || !wasm

package env

import "os"

// Get returns the value of the environment variable and whether it was set.
func Get(key string) (string, bool) {
	return os.LookupEnv(key)
}
