package services

import "github.com/google/uuid"

const maxRequestIDLen = 128

// RequestIDOrNew returns id when it is safe to echo in a response header
// (1 to 128 printable ASCII characters), otherwise a fresh UUID.
func RequestIDOrNew(id string) string {
	if validRequestID(id) {
		return id
	}
	return uuid.New().String()
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
