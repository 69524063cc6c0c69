package utils

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

const letterBytes = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomString 返回 n 位小写字母数字串，用于 slug 后缀
func RandomString(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(letterBytes)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			b[i] = letterBytes[i%len(letterBytes)]
			continue
		}
		b[i] = letterBytes[idx.Int64()]
	}
	return string(b)
}

// GenerateToken returns a hex token of 2*n characters for email links.
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
