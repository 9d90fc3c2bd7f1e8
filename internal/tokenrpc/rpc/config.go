package rpc

import (
	"net/http"
)

// Config holds the configuration of a token node rpc client.
type Config struct {
	// URL including the /json_rpc endpoint
	// Example: http://127.0.0.1:20443/json_rpc
	Url string
	// Custom headers to send
	CustomHeaders map[string]string
	// HTTP Client to use
	Client *http.Client
}
