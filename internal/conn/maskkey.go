package conn

import "crypto/rand"

// newMaskKey draws a fresh RFC 6455 §5.3 client masking key.
func newMaskKey() [4]byte {
	var k [4]byte
	_, _ = rand.Read(k[:])
	return k
}
