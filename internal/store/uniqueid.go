package store

import "crypto/rand"

const uniqueIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const uniqueIDLength = 12

// generateUniqueID returns a 12-character random alphanumeric identifier,
// stamped into a fresh database's metadata so the replication client can
// tell a recreated-from-scratch show apart from one it has already synced
// against (see replication/client's MismatchError on source_unique_id).
func generateUniqueID() (string, error) {
	buf := make([]byte, uniqueIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	id := make([]byte, uniqueIDLength)
	for i, b := range buf {
		id[i] = uniqueIDAlphabet[int(b)%len(uniqueIDAlphabet)]
	}
	return string(id), nil
}
