package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by outbound integrations (payment gateway, email).
// The payment gateway documents a 30s ceiling.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
