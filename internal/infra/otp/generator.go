// Package otp generates numeric one-time passcodes.
package otp

import (
	"crypto/rand"
	"math/big"
	"strconv"

	"marketplace/internal/domain/service"

	"github.com/pkg/errors"
)

const (
	minCode = 100000
	maxCode = 999999
)

var codeSpan = big.NewInt(maxCode - minCode + 1)

type randomGenerator struct{}

// NewGenerator returns a generator backed by crypto/rand.
func NewGenerator() service.OTPGenerator {
	return randomGenerator{}
}

// Generate draws a code uniformly from [100000, 999999].
func (randomGenerator) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", errors.Wrap(err, "read random source")
	}

	return strconv.FormatInt(n.Int64()+minCode, 10), nil
}
