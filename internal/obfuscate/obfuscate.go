// Package obfuscate implements the ByteBlaster wire obfuscation: every byte
// on the TCP leg is XOR-masked with 0xFF. The operation is self-inverse, so
// the same call demasks on ingress and masks on egress.
package obfuscate

// Mask XORs every byte of p with 0xFF in place. Masking twice restores the
// original bytes: Mask(Mask(b)) == b.
func Mask(p []byte) {
	for i, b := range p {
		p[i] = b ^ 0xFF
	}
}

// Checksum returns the unsigned sum of p's bytes. It is compared against a
// frame's declared /CS value to validate a block. uint32 gives enormous
// headroom over the largest possible sum (1024 bytes * 0xFF = 261120).
func Checksum(p []byte) uint32 {
	var sum uint32
	for _, b := range p {
		sum += uint32(b)
	}
	return sum
}
