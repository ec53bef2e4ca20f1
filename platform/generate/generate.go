package generate

import (
	"math/rand"
	"strconv"
	"time"
)

const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// OTP bounds. Codes are always exactly six digits.
const (
	otpMin  = 100000
	otpSpan = 900000
)

var seeded = rand.New(rand.NewSource(time.Now().UnixNano()))

// OTP returns a six digit one-time passcode drawn uniformly from
// [100000, 999999].
func OTP() string {
	return strconv.Itoa(otpMin + seeded.Intn(otpSpan))
}

// RandomBytes returns n bytes drawn from the given source.
func RandomBytes(src rand.Source, n int) []byte {
	var (
		r  = rand.New(src)
		bs = make([]byte, n)
	)

	for i := range bs {
		bs[i] = byte(r.Intn(256))
	}

	return bs
}

// RandomString returns a string of length n composed of alphanumerics.
func RandomString(n int) string {
	bs := make([]byte, n)

	for i := range bs {
		bs[i] = chars[seeded.Intn(len(chars))]
	}

	return string(bs)
}
