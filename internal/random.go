// Package internal holds the secret-generation helpers shared by the engine:
// numeric one-time codes and backup-code strings. Everything here draws from
// crypto/rand.
package internal

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// BackupCodeAlphabet excludes 0/O/1/I so codes survive being read aloud or
// retyped from a printout.
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewOTP generates a numeric one-time code of the given length.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// NewBackupCode generates a random alphanumeric backup code of the given
// length from [BackupCodeAlphabet].
func NewBackupCode(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("invalid backup code length")
	}

	var b strings.Builder
	b.Grow(length)
	alphabetSize := big.NewInt(int64(len(BackupCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// FormatBackupCode inserts a midpoint dash for display (ABCD-EFGH style).
func FormatBackupCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

// CanonicalizeBackupCode strips formatting and case so user input matches the
// generated form.
func CanonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}
