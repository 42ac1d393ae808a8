package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/crypto/pbkdf2"

	"github.com/local-web-services/ldk/internal/ldkerr"
)

const pbkdf2Iterations = 100_000

func hashPassword(password string, salt []byte) string {
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 32, sha256.New)
	return hex.EncodeToString(derived)
}

func newSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, ldkerr.Fatal("InternalError", "generate salt: "+err.Error())
	}
	return salt, nil
}

func verifyPassword(password string, salt []byte, expectedHash string) bool {
	computed := hashPassword(password, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(expectedHash)) == 1
}

func validatePassword(policy PasswordPolicy, password string) error {
	if len(password) < policy.MinLength {
		return ldkerr.Client("InvalidPasswordException", "password too short")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsNumber(r):
			hasNumber = true
		case strings.ContainsRune("!@#$%^&*()_+-=[]{}|;:,.<>?", r):
			hasSymbol = true
		}
	}
	if policy.RequireUppercase && !hasUpper {
		return ldkerr.Client("InvalidPasswordException", "password must contain an uppercase letter")
	}
	if policy.RequireLowercase && !hasLower {
		return ldkerr.Client("InvalidPasswordException", "password must contain a lowercase letter")
	}
	if policy.RequireNumber && !hasNumber {
		return ldkerr.Client("InvalidPasswordException", "password must contain a number")
	}
	if policy.RequireSymbol && !hasSymbol {
		return ldkerr.Client("InvalidPasswordException", "password must contain a symbol")
	}
	return nil
}
