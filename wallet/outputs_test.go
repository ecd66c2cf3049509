package wallet

import (
	"errors"
	"testing"

	"github.com/cashewallet/cashew/cashu"
	"github.com/cashewallet/cashew/cashu/nuts/nut12"
	"github.com/cashewallet/cashew/crypto"
	"github.com/cashewallet/cashew/testutils"
)

func TestCreateOutputs(t *testing.T) {
	amounts := []uint64{1, 2, 8}
	set, err := CreateOutputs(amounts, "00ad268c4d1f5826")
	if err != nil {
		t.Fatalf("error creating outputs: %v", err)
	}

	if len(set.BlindedMessages) != len(amounts) {
		t.Fatalf("expected %v outputs but got %v instead", len(amounts), len(set.BlindedMessages))
	}
	if len(set.Secrets) != len(amounts) || len(set.Rs) != len(amounts) {
		t.Fatal("secrets and blinding factors do not match the outputs")
	}

	for i, msg := range set.BlindedMessages {
		if msg.Amount != amounts[i] {
			t.Errorf("expected amount %v but got %v instead", amounts[i], msg.Amount)
		}
		if msg.Id != "00ad268c4d1f5826" {
			t.Errorf("expected '00ad268c4d1f5826' but got '%v' instead", msg.Id)
		}
	}

	// secrets must be unique
	if set.Secrets[0] == set.Secrets[1] {
		t.Error("outputs reuse the same secret")
	}

	if _, err := CreateOutputs([]uint64{}, "00ad268c4d1f5826"); !errors.Is(err, ErrNoAmounts) {
		t.Errorf("expected '%v' but got '%v' instead", ErrNoAmounts, err)
	}
}

func TestCreateBlankOutputs(t *testing.T) {
	set, err := CreateBlankOutputs(1000, "00ad268c4d1f5826")
	if err != nil {
		t.Fatalf("error creating blank outputs: %v", err)
	}
	if len(set.BlindedMessages) != 10 {
		t.Errorf("expected 10 blank outputs but got %v instead", len(set.BlindedMessages))
	}

	// a fee reserve of 1 cannot be overpaid so no outputs are needed
	set, err = CreateBlankOutputs(1, "00ad268c4d1f5826")
	if err != nil {
		t.Fatalf("error creating blank outputs: %v", err)
	}
	if len(set.BlindedMessages) != 0 {
		t.Errorf("expected no blank outputs but got %v instead", len(set.BlindedMessages))
	}

	if _, err := CreateBlankOutputs(0, "00ad268c4d1f5826"); !errors.Is(err, ErrInvalidFeeReserve) {
		t.Errorf("expected '%v' but got '%v' instead", ErrInvalidFeeReserve, err)
	}
}

func TestCreateProofs(t *testing.T) {
	mintKeyset := testutils.NewMintKeyset("test-seed", 0)
	walletKeyset := &crypto.WalletKeyset{
		Id:         mintKeyset.Id,
		Unit:       mintKeyset.Unit,
		PublicKeys: mintKeyset.PublicKeys,
	}

	amounts := []uint64{2, 16}
	set, err := CreateOutputs(amounts, mintKeyset.Id)
	if err != nil {
		t.Fatalf("error creating outputs: %v", err)
	}

	signatures, err := mintKeyset.SignBlindedMessages(set.BlindedMessages)
	if err != nil {
		t.Fatalf("error signing outputs: %v", err)
	}

	proofs, err := CreateProofs(signatures, set.Rs, set.Secrets, walletKeyset)
	if err != nil {
		t.Fatalf("error creating proofs: %v", err)
	}

	if proofs.Amount() != 18 {
		t.Errorf("expected amount of 18 but got %v instead", proofs.Amount())
	}

	for i, proof := range proofs {
		if proof.Amount != amounts[i] {
			t.Errorf("expected amount %v but got %v instead", amounts[i], proof.Amount)
		}
		if proof.Id != mintKeyset.Id {
			t.Errorf("expected '%v' but got '%v' instead", mintKeyset.Id, proof.Id)
		}
		if proof.DLEQ == nil {
			t.Fatal("expected proof to record the DLEQ proof")
		}

		valid, err := nut12.VerifyProofDLEQ(proof, mintKeyset.PublicKeys[proof.Amount])
		if err != nil {
			t.Fatalf("error verifying DLEQ proof: %v", err)
		}
		if !valid {
			t.Error("proof DLEQ failed verification")
		}

		if !mintKeyset.VerifyProof(proof) {
			t.Error("proof failed verification against the mint keys")
		}
	}
}

func TestCreateProofsKeysetMismatch(t *testing.T) {
	mintKeyset := testutils.NewMintKeyset("test-seed", 0)
	otherKeyset := testutils.NewMintKeyset("other-seed", 0)
	walletKeyset := &crypto.WalletKeyset{
		Id:         otherKeyset.Id,
		Unit:       otherKeyset.Unit,
		PublicKeys: otherKeyset.PublicKeys,
	}

	set, err := CreateOutputs([]uint64{4}, mintKeyset.Id)
	if err != nil {
		t.Fatalf("error creating outputs: %v", err)
	}
	signatures, err := mintKeyset.SignBlindedMessages(set.BlindedMessages)
	if err != nil {
		t.Fatalf("error signing outputs: %v", err)
	}

	if _, err := CreateProofs(signatures, set.Rs, set.Secrets, walletKeyset); err == nil {
		t.Error("expected error creating proofs from another keyset's signatures")
	}
}

func TestCreateProofsInvalidDLEQ(t *testing.T) {
	mintKeyset := testutils.NewMintKeyset("test-seed", 0)
	walletKeyset := &crypto.WalletKeyset{
		Id:         mintKeyset.Id,
		Unit:       mintKeyset.Unit,
		PublicKeys: mintKeyset.PublicKeys,
	}

	set, err := CreateOutputs([]uint64{4}, mintKeyset.Id)
	if err != nil {
		t.Fatalf("error creating outputs: %v", err)
	}
	signatures, err := mintKeyset.SignBlindedMessages(set.BlindedMessages)
	if err != nil {
		t.Fatalf("error signing outputs: %v", err)
	}

	signatures[0].DLEQ.S = signatures[0].DLEQ.E
	if _, err := CreateProofs(signatures, set.Rs, set.Secrets, walletKeyset); err == nil {
		t.Error("expected error creating proofs with an invalid DLEQ proof")
	}

	lengths := cashu.BlindedSignatures{signatures[0]}
	if _, err := CreateProofs(lengths, nil, nil, walletKeyset); err == nil {
		t.Error("expected error with mismatched lengths")
	}
}
