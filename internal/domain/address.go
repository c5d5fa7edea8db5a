package domain

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// addressLen is the decoded length of a Solana public key.
const addressLen = 32

// ValidateAddress checks that s is a base58-encoded 32-byte Solana address.
// Used for both mints and wallet public keys.
func ValidateAddress(s string) error {
	if s == "" {
		return fmt.Errorf("address is empty")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("address %q is not valid base58: %w", s, err)
	}
	if len(raw) != addressLen {
		return fmt.Errorf("address %q decodes to %d bytes, want %d", s, len(raw), addressLen)
	}
	return nil
}
