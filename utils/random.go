package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

const ReservationCodePrefix = "TKT-"

func GenerateCode(n int) (string, error) {
	// Make a slice of nBytes random bytes.
	byt := make([]byte, n)

	// Read into the slice.
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	// Return the hexadecimal string.
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// GenerateReservationCode returns the prefix followed by length uppercase hex characters.
func GenerateReservationCode(length int) (string, error) {
	if length <= 0 {
		length = 8
	}
	code, err := GenerateCode((length + 1) / 2)
	if err != nil {
		return "", err
	}
	return ReservationCodePrefix + code[:length], nil
}
