// Package nut01 has the structs for the keys endpoints.
// See https://github.com/cashubtc/nuts/blob/main/01.md
package nut01

// GetKeysResponse is the body of /v1/keys and /v1/keys/{keyset_id}.
type GetKeysResponse struct {
	Keysets []Keyset `json:"keysets"`
}

type Keyset struct {
	Id   string  `json:"id"`
	Unit string  `json:"unit"`
	Keys KeysMap `json:"keys"`
}

// KeysMap maps an amount to the compressed public key the mint signs
// that amount with, hex encoded.
type KeysMap map[uint64]string
