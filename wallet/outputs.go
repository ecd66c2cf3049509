package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/cashewallet/cashew/cashu"
	"github.com/cashewallet/cashew/cashu/nuts/nut12"
	"github.com/cashewallet/cashew/crypto"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var (
	ErrNoAmounts         = errors.New("no amounts provided to create outputs")
	ErrInvalidFeeReserve = errors.New("fee reserve must be positive")
)

// OutputSet holds blinded messages along with the secrets and blinding
// factors needed to turn the mint's signatures into proofs.
type OutputSet struct {
	BlindedMessages cashu.BlindedMessages
	Secrets         []string
	Rs              []*secp256k1.PrivateKey
}

// CreateOutputs creates a blinded message for each amount with a fresh
// random secret and blinding factor.
func CreateOutputs(amounts []uint64, keysetId string) (*OutputSet, error) {
	if len(amounts) == 0 {
		return nil, ErrNoAmounts
	}

	set := &OutputSet{
		BlindedMessages: make(cashu.BlindedMessages, len(amounts)),
		Secrets:         make([]string, len(amounts)),
		Rs:              make([]*secp256k1.PrivateKey, len(amounts)),
	}

	for i, amount := range amounts {
		secret, err := cashu.GenerateRandomSecret()
		if err != nil {
			return nil, err
		}

		r, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}

		B_, r := crypto.BlindMessage([]byte(secret), r.Serialize())
		set.BlindedMessages[i] = cashu.NewBlindedMessage(keysetId, amount, B_)
		set.Secrets[i] = secret
		set.Rs[i] = r
	}

	return set, nil
}

// CreateBlankOutputs creates the outputs the mint signs overpaid fees
// into after a melt. See https://github.com/cashubtc/nuts/blob/main/08.md
func CreateBlankOutputs(feeReserve uint64, keysetId string) (*OutputSet, error) {
	if feeReserve == 0 {
		return nil, ErrInvalidFeeReserve
	}

	count := calculateNumberOfBlankOutputs(feeReserve)
	if count == 0 {
		return &OutputSet{}, nil
	}

	amounts := make([]uint64, count)
	for i := 0; i < count; i++ {
		amounts[i] = 1
	}
	return CreateOutputs(amounts, keysetId)
}

// CreateProofs unblinds the signatures into proofs. Every signature
// must come from the given keyset. If the mint attached DLEQ proofs
// they are verified and recorded on the proofs along with the blinding
// factor.
func CreateProofs(
	blindedSignatures cashu.BlindedSignatures,
	rs []*secp256k1.PrivateKey,
	secrets []string,
	keyset *crypto.WalletKeyset,
) (cashu.Proofs, error) {

	if len(blindedSignatures) != len(secrets) || len(blindedSignatures) != len(rs) {
		return nil, errors.New("lengths of blinded signatures, secrets and rs do not match")
	}

	proofs := make(cashu.Proofs, len(blindedSignatures))
	for i, blindedSignature := range blindedSignatures {
		if blindedSignature.Id != keyset.Id {
			return nil, fmt.Errorf("blind signature has keyset id '%v' but expected '%v'",
				blindedSignature.Id, keyset.Id)
		}

		C_bytes, err := hex.DecodeString(blindedSignature.C_)
		if err != nil {
			return nil, err
		}
		C_, err := secp256k1.ParsePubKey(C_bytes)
		if err != nil {
			return nil, err
		}

		K, ok := keyset.PublicKeys[blindedSignature.Amount]
		if !ok {
			return nil, fmt.Errorf("keyset has no key for amount %d", blindedSignature.Amount)
		}

		if blindedSignature.DLEQ != nil {
			B_, _ := crypto.BlindMessage([]byte(secrets[i]), rs[i].Serialize())
			B_str := hex.EncodeToString(B_.SerializeCompressed())
			if !nut12.VerifyBlindSignatureDLEQ(*blindedSignature.DLEQ, K, B_str, blindedSignature.C_) {
				return nil, errors.New("mint returned invalid DLEQ proof")
			}
		}

		C := crypto.UnblindSignature(C_, rs[i], K)

		proof := cashu.Proof{
			Amount: blindedSignature.Amount,
			Secret: secrets[i],
			C:      hex.EncodeToString(C.SerializeCompressed()),
			Id:     blindedSignature.Id,
		}
		if blindedSignature.DLEQ != nil {
			proof.DLEQ = &cashu.DLEQProof{
				E: blindedSignature.DLEQ.E,
				S: blindedSignature.DLEQ.S,
				R: hex.EncodeToString(rs[i].Serialize()),
			}
		}
		proofs[i] = proof
	}

	return proofs, nil
}
