package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrTooManyArgs = errors.New("too many arguments. expected only 1")
)

const (
	DefaultTokenLength = 32 // 256 bits

	tokenSeparator = "|"
)

type TokenPair struct {
	Token string // value returned to client
	Hash  string // value in storage
}

func generateToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = DefaultTokenLength
	}

	bytes := make([]byte, byteLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

func GenerateHashedToken(byteLength ...int) (*TokenPair, error) {
	if len(byteLength) > 1 {
		return nil, ErrTooManyArgs
	}

	length := DefaultTokenLength
	if len(byteLength) > 0 && byteLength[0] > 0 {
		length = byteLength[0]
	}

	token, err := generateToken(length)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		Token: token,
		Hash:  HashToken(token),
	}, nil
}

// HashToken derives the storage lookup value. It is one-way, so a leaked
// store cannot be replayed as credentials.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// VerifyToken compares token against storedHash in constant time. Empty
// inputs are still hashed and compared before being rejected.
func VerifyToken(token, storedHash string) bool {
	computed := HashToken(token)
	equal := subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
	return equal && token != "" && storedHash != ""
}

// JoinToken builds the plain-text bearer value "<id>|<secret>".
func JoinToken(id, secret string) string {
	return id + tokenSeparator + secret
}

// SplitToken is the inverse of JoinToken.
func SplitToken(raw string) (id, secret string, ok bool) {
	id, secret, found := strings.Cut(raw, tokenSeparator)
	if !found || id == "" || secret == "" || strings.Contains(secret, tokenSeparator) {
		return "", "", false
	}
	return id, secret, true
}
