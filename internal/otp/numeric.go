// Package otp produces the one-time secrets used by the auth flows:
// emailed 6-digit codes and RFC 6238 TOTP codes for two-factor auth.
package otp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

const codeSpace = 1_000_000 // codes are drawn from [000000, 999999]

// maxUniform is the largest multiple of codeSpace representable in a
// uint32.  Draws at or above it are rejected, otherwise the final
// modulo would favor low codes.
const maxUniform = (1<<32 / codeSpace) * codeSpace

// GenerateNumericCode returns a uniformly distributed 6-digit code as
// a zero-padded string.  The draw comes from crypto/rand with
// rejection sampling, so every code is equally likely.
func GenerateNumericCode() (string, error) {
	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return "", err
		}
		v := binary.BigEndian.Uint32(buf[:])
		if v >= maxUniform {
			continue
		}
		return fmt.Sprintf("%06d", v%codeSpace), nil
	}
}
