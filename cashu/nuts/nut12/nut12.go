// Package nut12 verifies DLEQ proofs attached to blind signatures
// and proofs. See https://github.com/cashubtc/nuts/blob/main/12.md
package nut12

import (
	"encoding/hex"
	"errors"

	"github.com/cashewallet/cashew/cashu"
	"github.com/cashewallet/cashew/crypto"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var (
	ErrMissingDLEQ  = errors.New("proof does not have a DLEQ proof")
	ErrMissingDLEQR = errors.New("DLEQ proof does not disclose the blinding factor")
)

// VerifyProofsDLEQ verifies the DLEQ proof of every proof against the
// keyset key for its amount. Every proof must carry a DLEQ proof.
func VerifyProofsDLEQ(proofs cashu.Proofs, keyset crypto.WalletKeyset) (bool, error) {
	for _, proof := range proofs {
		pubkey, ok := keyset.PublicKeys[proof.Amount]
		if !ok {
			return false, errors.New("keyset does not have key for proof amount")
		}

		valid, err := VerifyProofDLEQ(proof, pubkey)
		if err != nil {
			return false, err
		}
		if !valid {
			return false, nil
		}
	}
	return true, nil
}

// VerifyProofDLEQ rebuilds the blinded pair from the disclosed blinding
// factor and checks the DLEQ proof against the mint key A.
func VerifyProofDLEQ(proof cashu.Proof, A *secp256k1.PublicKey) (bool, error) {
	if proof.DLEQ == nil {
		return false, ErrMissingDLEQ
	}

	e, s, r, err := ParseDLEQ(*proof.DLEQ)
	if err != nil {
		return false, err
	}
	if r == nil {
		return false, ErrMissingDLEQR
	}

	B_, _ := crypto.BlindMessage([]byte(proof.Secret), r.Serialize())

	CBytes, err := hex.DecodeString(proof.C)
	if err != nil {
		return false, err
	}
	C, err := secp256k1.ParsePubKey(CBytes)
	if err != nil {
		return false, err
	}

	// C' = C + rA
	var CPoint, APoint, rAPoint, C_Point secp256k1.JacobianPoint
	C.AsJacobian(&CPoint)
	A.AsJacobian(&APoint)
	secp256k1.ScalarMultNonConst(&r.Key, &APoint, &rAPoint)
	rAPoint.ToAffine()
	secp256k1.AddNonConst(&CPoint, &rAPoint, &C_Point)
	C_Point.ToAffine()
	C_ := secp256k1.NewPublicKey(&C_Point.X, &C_Point.Y)

	return crypto.VerifyDLEQ(e, s, A, B_, C_), nil
}

// VerifyBlindSignatureDLEQ checks the DLEQ proof a mint attached to a
// blind signature before the signature is unblinded.
func VerifyBlindSignatureDLEQ(
	dleq cashu.DLEQProof,
	A *secp256k1.PublicKey,
	B_str string,
	C_str string,
) bool {
	e, s, _, err := ParseDLEQ(dleq)
	if err != nil {
		return false
	}

	B_bytes, err := hex.DecodeString(B_str)
	if err != nil {
		return false
	}
	B_, err := secp256k1.ParsePubKey(B_bytes)
	if err != nil {
		return false
	}

	C_bytes, err := hex.DecodeString(C_str)
	if err != nil {
		return false
	}
	C_, err := secp256k1.ParsePubKey(C_bytes)
	if err != nil {
		return false
	}

	return crypto.VerifyDLEQ(e, s, A, B_, C_)
}

func ParseDLEQ(dleq cashu.DLEQProof) (
	*secp256k1.PrivateKey,
	*secp256k1.PrivateKey,
	*secp256k1.PrivateKey,
	error,
) {
	ebytes, err := hex.DecodeString(dleq.E)
	if err != nil {
		return nil, nil, nil, err
	}
	e := secp256k1.PrivKeyFromBytes(ebytes)

	sbytes, err := hex.DecodeString(dleq.S)
	if err != nil {
		return nil, nil, nil, err
	}
	s := secp256k1.PrivKeyFromBytes(sbytes)

	if dleq.R == "" {
		return e, s, nil, nil
	}

	rbytes, err := hex.DecodeString(dleq.R)
	if err != nil {
		return nil, nil, nil, err
	}
	r := secp256k1.PrivKeyFromBytes(rbytes)

	return e, s, r, nil
}
