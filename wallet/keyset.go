package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/cashewallet/cashew/cashu/nuts/nut02"
	"github.com/cashewallet/cashew/crypto"
	"github.com/cashewallet/cashew/wallet/storage"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// GetKeysets returns the keysets the mint reports and caches their
// fees. If the wallet has a store, each keyset is upserted.
func (w *Wallet) GetKeysets(ctx context.Context) ([]nut02.Keyset, error) {
	keysetsResponse, err := w.client.getAllKeysets(ctx)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	for _, keyset := range keysetsResponse.Keysets {
		w.keysets[keyset.Id] = keyset
	}
	w.mu.Unlock()

	if w.db != nil {
		for _, keyset := range keysetsResponse.Keysets {
			if err := w.saveKeyset(keyset, nil); err != nil {
				return nil, err
			}
		}
	}

	return keysetsResponse.Keysets, nil
}

// GetActiveKeyset returns the mint's active keyset for the wallet
// unit, with its keys fetched and the keyset id validated against the
// keys. If the mint reports more than one active keyset for the unit,
// the last one listed wins.
func (w *Wallet) GetActiveKeyset(ctx context.Context) (*crypto.WalletKeyset, error) {
	keysResponse, err := w.client.getActiveKeysets(ctx)
	if err != nil {
		return nil, err
	}
	keysetsResponse, err := w.client.getAllKeysets(ctx)
	if err != nil {
		return nil, err
	}

	fees := make(map[string]uint, len(keysetsResponse.Keysets))
	w.mu.Lock()
	for _, keyset := range keysetsResponse.Keysets {
		w.keysets[keyset.Id] = keyset
		fees[keyset.Id] = keyset.InputFeePpk
	}
	w.mu.Unlock()

	var activeKeyset *crypto.WalletKeyset
	for _, keyset := range keysResponse.Keysets {
		if keyset.Unit != w.unit.String() {
			continue
		}
		if _, err := hex.DecodeString(keyset.Id); err != nil {
			continue
		}

		keys, err := crypto.MapPubKeys(keyset.Keys)
		if err != nil {
			return nil, err
		}
		id := crypto.DeriveKeysetId(keys)
		if id != keyset.Id {
			return nil, fmt.Errorf("got invalid keyset: derived id '%v' but got '%v' from mint", id, keyset.Id)
		}

		activeKeyset = &crypto.WalletKeyset{
			Id:          id,
			MintURL:     w.mintURL,
			Unit:        keyset.Unit,
			Active:      true,
			PublicKeys:  keys,
			InputFeePpk: fees[id],
		}
	}
	if activeKeyset == nil {
		return nil, errors.New("could not find an active keyset for the unit")
	}

	w.mu.Lock()
	w.activeKeyset = activeKeyset
	w.mu.Unlock()

	if w.db != nil {
		if err := w.db.SaveKeyset(activeKeyset); err != nil {
			return nil, err
		}
	}

	return activeKeyset, nil
}

// GetKeys returns the keys of the keyset with the given id, or of the
// active keyset when the id is empty. Mint rejections (e.g. unknown
// keyset) surface as a *cashu.Error.
func (w *Wallet) GetKeys(ctx context.Context, keysetId string) (map[uint64]*secp256k1.PublicKey, error) {
	if keysetId == "" {
		activeKeyset, err := w.GetActiveKeyset(ctx)
		if err != nil {
			return nil, err
		}
		return activeKeyset.PublicKeys, nil
	}

	w.mu.RLock()
	if w.activeKeyset != nil && w.activeKeyset.Id == keysetId {
		keys := w.activeKeyset.PublicKeys
		w.mu.RUnlock()
		return keys, nil
	}
	w.mu.RUnlock()

	keysResponse, err := w.client.getKeysetById(ctx, keysetId)
	if err != nil {
		return nil, err
	}
	if len(keysResponse.Keysets) == 0 {
		return nil, fmt.Errorf("mint did not return keyset '%v'", keysetId)
	}

	keys, err := crypto.MapPubKeys(keysResponse.Keysets[0].Keys)
	if err != nil {
		return nil, err
	}

	if _, err := hex.DecodeString(keysetId); err == nil {
		if id := crypto.DeriveKeysetId(keys); id != keysetId {
			return nil, fmt.Errorf("got invalid keyset: derived id '%v' but got '%v' from mint", id, keysetId)
		}
	}

	if w.db != nil {
		w.mu.RLock()
		keysetInfo, ok := w.keysets[keysetId]
		w.mu.RUnlock()
		if !ok {
			keysetInfo = nut02.Keyset{Id: keysetId, Unit: keysResponse.Keysets[0].Unit}
		}
		if err := w.saveKeyset(keysetInfo, keys); err != nil {
			return nil, err
		}
	}

	return keys, nil
}

// saveKeyset upserts the keyset into the store, keeping previously
// stored keys when no keys are given.
func (w *Wallet) saveKeyset(keyset nut02.Keyset, keys map[uint64]*secp256k1.PublicKey) error {
	walletKeyset := &crypto.WalletKeyset{
		Id:          keyset.Id,
		MintURL:     w.mintURL,
		Unit:        keyset.Unit,
		Active:      keyset.Active,
		PublicKeys:  keys,
		InputFeePpk: keyset.InputFeePpk,
	}

	if keys == nil {
		stored, err := w.db.GetKeyset(w.mintURL, keyset.Id)
		if err != nil && !errors.Is(err, storage.ErrKeysetNotFound) {
			return err
		}
		if stored != nil {
			walletKeyset.PublicKeys = stored.PublicKeys
		}
	}

	return w.db.SaveKeyset(walletKeyset)
}

// keysetFees returns the input_fee_ppk of the cached keysets.
func (w *Wallet) keysetFees() map[string]uint {
	w.mu.RLock()
	defer w.mu.RUnlock()

	fees := make(map[string]uint, len(w.keysets))
	for id, keyset := range w.keysets {
		fees[id] = keyset.InputFeePpk
	}
	return fees
}
