package credential

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

// GenerateCode returns a cryptographically random numeric code of the given
// length, zero-padded (e.g. "000123"). big.Int sampling avoids modulo bias.
func GenerateCode(length int) (string, error) {
	if length <= 0 || length > 18 {
		return "", fmt.Errorf("generate code: unsupported length %d", length)
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

// HashPhone returns the SHA-256 hex digest of an E.164 phone number.
// Rate-limit keys and stored verifications use the hash, never the number.
func HashPhone(phone string) string {
	h := sha256.Sum256([]byte(phone))
	return hex.EncodeToString(h[:])
}

// ComputeCodeMAC computes HMAC-SHA256(pepper, code || verificationID || phoneHash || expiresAt).
// The MAC binds a dispatched code to the verification that issued it, so the
// plaintext code is never stored.
func ComputeCodeMAC(pepper []byte, code, verificationID, phoneHash, expiresAt string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(code))
	mac.Write([]byte(verificationID))
	mac.Write([]byte(phoneHash))
	mac.Write([]byte(expiresAt))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCodeMAC checks a code candidate against a stored MAC in constant time.
func VerifyCodeMAC(pepper []byte, candidate, verificationID, phoneHash, expiresAt, storedMAC string) bool {
	candidateMAC := ComputeCodeMAC(pepper, candidate, verificationID, phoneHash, expiresAt)
	return subtle.ConstantTimeCompare([]byte(candidateMAC), []byte(storedMAC)) == 1
}
