package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// GenerateTestKeyPair generates an RSA key pair for testing JWT tokens
func GenerateTestKeyPair(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	return privateKey, &privateKey.PublicKey
}

// GenerateTestJWT creates a signed token for the given user, hospital and roles.
func GenerateTestJWT(t *testing.T, privateKey *rsa.PrivateKey, userID, hospitalID string, roles []string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": userID,
		"iss": TestIssuer,
		"exp": time.Now().Add(1 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
		"realm_access": map[string]interface{}{
			"roles": interfaceSlice(roles),
		},
	}
	if hospitalID != "" {
		claims["hospitalId"] = hospitalID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID

	tokenString, err := token.SignedString(privateKey)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return tokenString
}

// GenerateSuperAdminToken creates a SUPER_ADMIN token with no hospital
func GenerateSuperAdminToken(t *testing.T, privateKey *rsa.PrivateKey) string {
	t.Helper()
	return GenerateTestJWT(t, privateKey, "superadmin-1", "", []string{"SUPER_ADMIN"})
}

// GenerateHospitalAdminToken creates a HOSPITAL_ADMIN token for hospitalID
func GenerateHospitalAdminToken(t *testing.T, privateKey *rsa.PrivateKey, hospitalID string) string {
	t.Helper()
	return GenerateTestJWT(t, privateKey, "hospitaladmin-"+hospitalID, hospitalID, []string{"HOSPITAL_ADMIN"})
}

// GenerateDoctorToken creates a DOCTOR token for hospitalID
func GenerateDoctorToken(t *testing.T, privateKey *rsa.PrivateKey, hospitalID string) string {
	t.Helper()
	return GenerateTestJWT(t, privateKey, "doctor-"+hospitalID, hospitalID, []string{"DOCTOR"})
}

// GenerateDispatcherToken creates a DISPATCHER token for hospitalID
func GenerateDispatcherToken(t *testing.T, privateKey *rsa.PrivateKey, hospitalID string) string {
	t.Helper()
	return GenerateTestJWT(t, privateKey, "dispatcher-"+hospitalID, hospitalID, []string{"DISPATCHER"})
}

// interfaceSlice converts []string to []interface{} for JWT claims
func interfaceSlice(strings []string) []interface{} {
	result := make([]interface{}, len(strings))
	for i, s := range strings {
		result[i] = s
	}
	return result
}
