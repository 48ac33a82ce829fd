package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	MRNLength   = 5
	mrnAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	mrnDigits   = "23456789"
)

// MRNGenerator produces candidate MRNs. Uniqueness is enforced by the
// patients_mrn_key constraint; callers retry on collision.
type MRNGenerator func() (string, error)

// GenerateMRN returns a random 5-character NHS-style code that contains at
// least one digit, so it can never be mistaken for a name-derived value.
func GenerateMRN() (string, error) {
	buf := make([]byte, MRNLength)
	for i := range buf {
		c, err := randomChar(mrnAlphabet)
		if err != nil {
			return "", err
		}
		buf[i] = c
	}

	if strings.IndexAny(string(buf), mrnDigits) < 0 {
		pos, err := rand.Int(rand.Reader, big.NewInt(MRNLength))
		if err != nil {
			return "", fmt.Errorf("generate mrn: %w", err)
		}
		d, err := randomChar(mrnDigits)
		if err != nil {
			return "", err
		}
		buf[pos.Int64()] = d
	}
	return string(buf), nil
}

func randomChar(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, fmt.Errorf("generate mrn: %w", err)
	}
	return alphabet[n.Int64()], nil
}

// AssignMRN returns the existing MRN when it is set and only otherwise asks
// gen for a new one. This is the single place an MRN is ever produced.
func AssignMRN(existing string, gen MRNGenerator) (mrn string, assigned bool, err error) {
	if strings.TrimSpace(existing) != "" {
		return existing, false, nil
	}
	mrn, err = gen()
	if err != nil {
		return "", false, err
	}
	return mrn, true, nil
}

// QRPayload is the content encoded in a patient's QR code. It is derived from
// the MRN once at assignment and stored alongside it.
func QRPayload(mrn string) string {
	return "MRN:" + strings.ToUpper(strings.TrimSpace(mrn))
}
