// Package storage persists the keysets the wallet has learned from mints.
package storage

import (
	"errors"

	"github.com/cashewallet/cashew/crypto"
)

var ErrKeysetNotFound = errors.New("keyset not found")

// KeysetStore stores keysets keyed by (mint url, keyset id).
// Saving an already stored keyset overwrites it.
type KeysetStore interface {
	SaveKeyset(*crypto.WalletKeyset) error
	GetKeyset(mintURL, id string) (*crypto.WalletKeyset, error)
	GetKeysets() (crypto.KeysetsMap, error)
	Close() error
}
