package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress("So11111111111111111111111111111111111111112"))
	assert.NoError(t, ValidateAddress("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"))

	assert.Error(t, ValidateAddress(""))
	assert.Error(t, ValidateAddress("not base58 0OIl"))
	// Valid base58 but wrong decoded length.
	assert.Error(t, ValidateAddress("abc"))
}
