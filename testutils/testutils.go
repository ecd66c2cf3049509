// Package testutils has an in-process mint for exercising the wallet
// in tests without a real mint deployment.
package testutils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/cashewallet/cashew/cashu"
	"github.com/cashewallet/cashew/cashu/nuts/nut01"
	"github.com/cashewallet/cashew/cashu/nuts/nut02"
	"github.com/cashewallet/cashew/cashu/nuts/nut03"
	"github.com/cashewallet/cashew/cashu/nuts/nut05"
	"github.com/cashewallet/cashew/crypto"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/gorilla/mux"
	decodepay "github.com/nbd-wtf/ln-decodepay"
)

const maxOrder = 64

// MintKeyset is a keyset with its private keys.
type MintKeyset struct {
	Id          string
	Unit        string
	InputFeePpk uint
	PrivateKeys map[uint64]*secp256k1.PrivateKey
	PublicKeys  map[uint64]*secp256k1.PublicKey
}

// NewMintKeyset derives a keyset deterministically from the seed.
func NewMintKeyset(seed string, inputFeePpk uint) *MintKeyset {
	privateKeys := make(map[uint64]*secp256k1.PrivateKey, maxOrder)
	publicKeys := make(map[uint64]*secp256k1.PublicKey, maxOrder)

	for i := 0; i < maxOrder; i++ {
		amount := uint64(1) << i
		hash := sha256.Sum256([]byte(seed + strconv.FormatUint(amount, 10)))
		privKey, pubKey := btcec.PrivKeyFromBytes(hash[:])
		privateKeys[amount] = privKey
		publicKeys[amount] = pubKey
	}

	return &MintKeyset{
		Id:          crypto.DeriveKeysetId(publicKeys),
		Unit:        cashu.Sat.String(),
		InputFeePpk: inputFeePpk,
		PrivateKeys: privateKeys,
		PublicKeys:  publicKeys,
	}
}

// SignBlindedMessages signs each blinded message with the key for its
// amount, attaching DLEQ proofs.
func (ks *MintKeyset) SignBlindedMessages(blindedMessages cashu.BlindedMessages) (
	cashu.BlindedSignatures, error) {

	blindedSignatures := make(cashu.BlindedSignatures, len(blindedMessages))
	for i, msg := range blindedMessages {
		k, ok := ks.PrivateKeys[msg.Amount]
		if !ok {
			return nil, fmt.Errorf("no key for amount %d", msg.Amount)
		}

		B_bytes, err := hex.DecodeString(msg.B_)
		if err != nil {
			return nil, err
		}
		B_, err := secp256k1.ParsePubKey(B_bytes)
		if err != nil {
			return nil, err
		}

		C_ := crypto.SignBlindedMessage(B_, k)

		e, s, err := crypto.GenerateDLEQ(k, B_, C_)
		if err != nil {
			return nil, err
		}

		blindedSignatures[i] = cashu.BlindedSignature{
			Amount: msg.Amount,
			Id:     ks.Id,
			C_:     hex.EncodeToString(C_.SerializeCompressed()),
			DLEQ: &cashu.DLEQProof{
				E: hex.EncodeToString(e.Serialize()),
				S: hex.EncodeToString(s.Serialize()),
			},
		}
	}
	return blindedSignatures, nil
}

// VerifyProof checks that the proof was signed by this keyset.
func (ks *MintKeyset) VerifyProof(proof cashu.Proof) bool {
	k, ok := ks.PrivateKeys[proof.Amount]
	if !ok {
		return false
	}

	CBytes, err := hex.DecodeString(proof.C)
	if err != nil {
		return false
	}
	C, err := secp256k1.ParsePubKey(CBytes)
	if err != nil {
		return false
	}

	return crypto.Verify([]byte(proof.Secret), k, C)
}

type meltQuote struct {
	id         string
	amount     uint64
	feeReserve uint64
	state      nut05.State
}

// Mint signs and redeems proofs in-process. Serve its Handler with
// httptest to stand in for a real mint.
type Mint struct {
	Keyset *MintKeyset

	// percent of the invoice amount quoted as Lightning fee reserve
	FeeReservePercent uint64

	mu           sync.Mutex
	spentSecrets map[string]bool
	meltQuotes   map[string]*meltQuote
	quoteCounter int
}

func NewMint(seed string, inputFeePpk uint, feeReservePercent uint64) *Mint {
	return &Mint{
		Keyset:            NewMintKeyset(seed, inputFeePpk),
		FeeReservePercent: feeReservePercent,
		spentSecrets:      make(map[string]bool),
		meltQuotes:        make(map[string]*meltQuote),
	}
}

func (m *Mint) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/v1/keys", m.handleKeys).Methods(http.MethodGet)
	r.HandleFunc("/v1/keys/{id}", m.handleKeysById).Methods(http.MethodGet)
	r.HandleFunc("/v1/keysets", m.handleKeysets).Methods(http.MethodGet)
	r.HandleFunc("/v1/swap", m.handleSwap).Methods(http.MethodPost)
	r.HandleFunc("/v1/melt/quote/bolt11", m.handleMeltQuote).Methods(http.MethodPost)
	r.HandleFunc("/v1/melt/bolt11", m.handleMelt).Methods(http.MethodPost)
	return r
}

func (m *Mint) keysResponse() nut01.GetKeysResponse {
	keys := make(nut01.KeysMap, len(m.Keyset.PublicKeys))
	for amount, pk := range m.Keyset.PublicKeys {
		keys[amount] = hex.EncodeToString(pk.SerializeCompressed())
	}
	return nut01.GetKeysResponse{
		Keysets: []nut01.Keyset{{Id: m.Keyset.Id, Unit: m.Keyset.Unit, Keys: keys}},
	}
}

func (m *Mint) handleKeys(rw http.ResponseWriter, req *http.Request) {
	writeJSON(rw, m.keysResponse())
}

func (m *Mint) handleKeysById(rw http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	if id != m.Keyset.Id {
		writeCashuErr(rw, cashu.UnknownKeysetErr)
		return
	}
	writeJSON(rw, m.keysResponse())
}

func (m *Mint) handleKeysets(rw http.ResponseWriter, req *http.Request) {
	writeJSON(rw, nut02.GetKeysetsResponse{
		Keysets: []nut02.Keyset{{
			Id:          m.Keyset.Id,
			Unit:        m.Keyset.Unit,
			Active:      true,
			InputFeePpk: m.Keyset.InputFeePpk,
		}},
	})
}

func (m *Mint) handleSwap(rw http.ResponseWriter, req *http.Request) {
	var swapRequest nut03.PostSwapRequest
	if err := json.NewDecoder(req.Body).Decode(&swapRequest); err != nil {
		writeCashuErr(rw, cashu.StandardErr)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fee, cashuErr := m.validateInputs(swapRequest.Inputs)
	if cashuErr != nil {
		writeCashuErr(rw, *cashuErr)
		return
	}

	if swapRequest.Outputs.Amount()+fee != swapRequest.Inputs.Amount() {
		writeCashuErr(rw, cashu.InsufficientProofsAmount)
		return
	}

	signatures, err := m.Keyset.SignBlindedMessages(swapRequest.Outputs)
	if err != nil {
		writeCashuErr(rw, cashu.StandardErr)
		return
	}

	for _, proof := range swapRequest.Inputs {
		m.spentSecrets[proof.Secret] = true
	}

	writeJSON(rw, nut03.PostSwapResponse{Signatures: signatures})
}

func (m *Mint) handleMeltQuote(rw http.ResponseWriter, req *http.Request) {
	var quoteRequest nut05.PostMeltQuoteBolt11Request
	if err := json.NewDecoder(req.Body).Decode(&quoteRequest); err != nil {
		writeCashuErr(rw, cashu.StandardErr)
		return
	}
	if quoteRequest.Unit != cashu.Sat.String() {
		writeCashuErr(rw, cashu.UnitNotSupportedErr)
		return
	}

	bolt11, err := decodepay.Decodepay(quoteRequest.Request)
	if err != nil {
		writeCashuErr(rw, *cashu.BuildCashuError("invalid invoice", cashu.MeltQuoteErrCode))
		return
	}
	amount := uint64(bolt11.MSatoshi / 1000)

	m.mu.Lock()
	m.quoteCounter++
	quote := &meltQuote{
		id:         fmt.Sprintf("quote-%d", m.quoteCounter),
		amount:     amount,
		feeReserve: amount * m.FeeReservePercent / 100,
		state:      nut05.Unpaid,
	}
	m.meltQuotes[quote.id] = quote
	m.mu.Unlock()

	writeJSON(rw, nut05.PostMeltQuoteBolt11Response{
		Quote:      quote.id,
		Amount:     quote.amount,
		FeeReserve: quote.feeReserve,
		State:      quote.state,
		Expiry:     uint64(time.Now().Add(10 * time.Minute).Unix()),
	})
}

func (m *Mint) handleMelt(rw http.ResponseWriter, req *http.Request) {
	var meltRequest nut05.PostMeltBolt11Request
	if err := json.NewDecoder(req.Body).Decode(&meltRequest); err != nil {
		writeCashuErr(rw, cashu.StandardErr)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	quote, ok := m.meltQuotes[meltRequest.Quote]
	if !ok {
		writeCashuErr(rw, cashu.QuoteNotExistErr)
		return
	}
	if quote.state == nut05.Paid {
		writeCashuErr(rw, cashu.MeltQuoteAlreadyPaid)
		return
	}

	fee, cashuErr := m.validateInputs(meltRequest.Inputs)
	if cashuErr != nil {
		writeCashuErr(rw, *cashuErr)
		return
	}
	if meltRequest.Inputs.Amount() < quote.amount+quote.feeReserve+fee {
		writeCashuErr(rw, cashu.InsufficientProofsAmount)
		return
	}

	// the fake payment spends no Lightning fee, the whole reserve
	// comes back as change
	var change cashu.BlindedSignatures
	overpaid := meltRequest.Inputs.Amount() - quote.amount - fee
	if overpaid > 0 && len(meltRequest.Outputs) > 0 {
		changeAmounts := cashu.AmountSplit(overpaid)
		if len(changeAmounts) > len(meltRequest.Outputs) {
			changeAmounts = changeAmounts[:len(meltRequest.Outputs)]
		}

		changeOutputs := make(cashu.BlindedMessages, len(changeAmounts))
		for i, amount := range changeAmounts {
			output := meltRequest.Outputs[i]
			output.Amount = amount
			changeOutputs[i] = output
		}

		var err error
		change, err = m.Keyset.SignBlindedMessages(changeOutputs)
		if err != nil {
			writeCashuErr(rw, cashu.StandardErr)
			return
		}
	}

	for _, proof := range meltRequest.Inputs {
		m.spentSecrets[proof.Secret] = true
	}
	quote.state = nut05.Paid

	writeJSON(rw, nut05.PostMeltQuoteBolt11Response{
		Quote:      quote.id,
		Amount:     quote.amount,
		FeeReserve: quote.feeReserve,
		State:      quote.state,
		Preimage:   "0000000000000000",
		Change:     change,
	})
}

// validateInputs checks signatures and spent state of the inputs and
// returns the keyset fee for spending them. Callers must hold m.mu.
func (m *Mint) validateInputs(inputs cashu.Proofs) (uint64, *cashu.Error) {
	for _, proof := range inputs {
		if proof.Id != m.Keyset.Id {
			return 0, &cashu.UnknownKeysetErr
		}
		if m.spentSecrets[proof.Secret] {
			return 0, &cashu.ProofAlreadyUsedErr
		}
		if !m.Keyset.VerifyProof(proof) {
			return 0, &cashu.InvalidProofErr
		}
	}

	feePpk := uint64(len(inputs)) * uint64(m.Keyset.InputFeePpk)
	return (feePpk + 999) / 1000, nil
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(v)
}

func writeCashuErr(rw http.ResponseWriter, cashuErr cashu.Error) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(rw).Encode(cashuErr)
}
