package cache

// Stored values are prefixed so a claim can be told apart from a result
const (
	pendingMarker = "p"
	resultPrefix  = "r:"

	defaultKeyPrefix = "invoicehub:idempotency:"
)

func encodeResult(result []byte) string {
	return resultPrefix + string(result)
}

// decodeResult returns the result of a completed entry, false while pending
func decodeResult(value string) ([]byte, bool) {
	if len(value) < len(resultPrefix) || value[:len(resultPrefix)] != resultPrefix {
		return nil, false
	}
	return []byte(value[len(resultPrefix):]), true
}
