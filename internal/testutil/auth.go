package testutil

import (
	"crypto/rsa"
	"fmt"
	"testing"

	"github.com/WailSalutem-Health-Care/referral-service/internal/auth"
)

// TestIssuer is the issuer tokens from GenerateTestJWT carry.
const TestIssuer = "https://test-idp.example.com/realms/hospitals"

const testKeyID = "test-key-id"

// StaticKeys is an auth.KeySource backed by a fixed key set.
type StaticKeys map[string]*rsa.PublicKey

func (s StaticKeys) Get(kid string) (*rsa.PublicKey, error) {
	if key, ok := s[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("unknown kid %q", kid)
}

// CreateTestVerifier creates a verifier that accepts tokens signed with the
// returned private key.
func CreateTestVerifier(t *testing.T) (*auth.Verifier, *rsa.PrivateKey) {
	t.Helper()

	privateKey, publicKey := GenerateTestKeyPair(t)
	verifier := auth.NewVerifier(auth.Config{Issuer: TestIssuer}, StaticKeys{testKeyID: publicKey})
	return verifier, privateKey
}
