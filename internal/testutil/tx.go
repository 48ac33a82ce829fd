package testutil

import (
	"context"

	"github.com/WailSalutem-Health-Care/referral-service/internal/db"
)

// FakeTxRunner runs fn without a database. Repository fakes ignore the nil
// DBTX they receive through WithTx. Commits and rollbacks are counted.
type FakeTxRunner struct {
	Commits   int
	Rollbacks int
}

var _ db.TxRunner = (*FakeTxRunner)(nil)

func (f *FakeTxRunner) WithinTx(ctx context.Context, fn func(tx db.DBTX) error) error {
	if err := fn(nil); err != nil {
		f.Rollbacks++
		return err
	}
	f.Commits++
	return nil
}
