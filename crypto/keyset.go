package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"

	"github.com/cashewallet/cashew/cashu/nuts/nut01"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// mint url to map of keyset id to keyset
type KeysetsMap map[string]map[string]WalletKeyset

// WalletKeyset holds the public view of a mint keyset.
type WalletKeyset struct {
	Id          string
	MintURL     string
	Unit        string
	Active      bool
	PublicKeys  map[uint64]*secp256k1.PublicKey
	InputFeePpk uint
}

// PublicKeyForAmount returns the key under which the mint signs
// the given denomination.
func (ks *WalletKeyset) PublicKeyForAmount(amount uint64) (*secp256k1.PublicKey, bool) {
	pk, ok := ks.PublicKeys[amount]
	return pk, ok
}

type walletKeysetTemp struct {
	Id          string
	MintURL     string
	Unit        string
	Active      bool
	PublicKeys  map[uint64]string
	InputFeePpk uint
}

func (wk WalletKeyset) MarshalJSON() ([]byte, error) {
	temp := walletKeysetTemp{
		Id:          wk.Id,
		MintURL:     wk.MintURL,
		Unit:        wk.Unit,
		Active:      wk.Active,
		PublicKeys:  make(map[uint64]string, len(wk.PublicKeys)),
		InputFeePpk: wk.InputFeePpk,
	}
	for amount, pk := range wk.PublicKeys {
		temp.PublicKeys[amount] = hex.EncodeToString(pk.SerializeCompressed())
	}
	return json.Marshal(temp)
}

func (wk *WalletKeyset) UnmarshalJSON(data []byte) error {
	var temp walletKeysetTemp
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	wk.Id = temp.Id
	wk.MintURL = temp.MintURL
	wk.Unit = temp.Unit
	wk.Active = temp.Active
	wk.InputFeePpk = temp.InputFeePpk

	wk.PublicKeys = make(map[uint64]*secp256k1.PublicKey, len(temp.PublicKeys))
	for amount, key := range temp.PublicKeys {
		pkbytes, err := hex.DecodeString(key)
		if err != nil {
			return err
		}
		pubkey, err := secp256k1.ParsePubKey(pkbytes)
		if err != nil {
			return err
		}
		wk.PublicKeys[amount] = pubkey
	}
	return nil
}

// DeriveKeysetId returns the id derived from the keys: sha256 over the
// compressed public keys sorted by amount, versioned with a "00" prefix
// and truncated to 14 hex chars.
// See https://github.com/cashubtc/nuts/blob/main/02.md
func DeriveKeysetId(keys map[uint64]*secp256k1.PublicKey) string {
	amounts := make([]uint64, len(keys))
	i := 0
	for amount := range keys {
		amounts[i] = amount
		i++
	}
	slices.Sort(amounts)

	pubkeys := make([]byte, 0, len(amounts)*33)
	for _, amount := range amounts {
		pubkeys = append(pubkeys, keys[amount].SerializeCompressed()...)
	}
	hash := sha256.Sum256(pubkeys)

	return "00" + hex.EncodeToString(hash[:])[:14]
}

// MapPubKeys parses the hex encoded keys from a keys response.
func MapPubKeys(keys nut01.KeysMap) (map[uint64]*secp256k1.PublicKey, error) {
	parsedKeys := make(map[uint64]*secp256k1.PublicKey, len(keys))
	for amount, key := range keys {
		pkbytes, err := hex.DecodeString(key)
		if err != nil {
			return nil, err
		}
		pubkey, err := secp256k1.ParsePubKey(pkbytes)
		if err != nil {
			return nil, err
		}
		parsedKeys[amount] = pubkey
	}
	return parsedKeys, nil
}
