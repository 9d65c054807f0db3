// Package otp holds the one-time code ledger used by the phone sign-in flow.
//
// A ledger keeps at most one live code per phone. Issuing overwrites the previous
// code; a successful verification deletes it, so every code is accepted at most once.
// Ledger contents are disposable: losing them only invalidates outstanding codes.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

const (
	// CodeLength is the number of digits in an issued code.
	CodeLength = 6
	// DefaultTTL is how long an issued code stays valid.
	DefaultTTL = 5 * time.Minute
)

var codeSpace = big.NewInt(1_000_000)

// Ledger issues and redeems one-time codes keyed by phone number.
type Ledger interface {
	// Issue stores a fresh code for phone, replacing any earlier one.
	Issue(ctx context.Context, phone string) (string, error)
	// Verify reports whether code is the live code for phone and consumes it if so.
	// A false result never says why.
	Verify(ctx context.Context, phone, code string) (bool, error)
}

// GenerateCode returns a uniformly random six digit code, zero padded.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// digest is what ledgers store instead of the code itself.
func digest(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func wellFormed(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
