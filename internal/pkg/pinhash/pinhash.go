package pinhash

import "golang.org/x/crypto/bcrypt"

// bcrypt cost factor; bcrypt generates a random salt per hash
const cost = 10

// Hash hashes a card PIN using bcrypt
func Hash(pin string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	return string(bytes), err
}

// Verify compares a PIN with its stored hash.
// An empty hash never verifies.
func Verify(pin, hash string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin))
	return err == nil
}
