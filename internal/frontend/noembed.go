//go:build !embed

package frontend

import "net/http"

// Handler returns nil unless the binary was built with -tags embed.
func Handler() http.Handler { return nil }
