// Package wallet implements a client-side Cashu wallet: it redeems
// and swaps proofs against a mint, plans denominations for exact
// payments and settles value over Lightning melts.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/cashewallet/cashew/cashu"
	"github.com/cashewallet/cashew/cashu/nuts/nut02"
	"github.com/cashewallet/cashew/cashu/nuts/nut03"
	"github.com/cashewallet/cashew/cashu/nuts/nut05"
	"github.com/cashewallet/cashew/cashu/nuts/nut12"
	"github.com/cashewallet/cashew/cashu/nuts/nut18"
	"github.com/cashewallet/cashew/crypto"
	"github.com/cashewallet/cashew/lightning"
	"github.com/cashewallet/cashew/wallet/storage"
)

var (
	ErrNoProofs          = errors.New("no proofs provided")
	ErrFeeExceedsAmount  = errors.New("fee exceeds the amount to redeem")
	ErrNilMeltQuote      = errors.New("melt quote cannot be nil")
	ErrEmptyPaymentId    = errors.New("payment id cannot be empty")
	ErrEmptyEndpoint     = errors.New("payment endpoint cannot be empty")
	ErrNoLightningClient = errors.New("lightning client is not configured")
)

type Config struct {
	MintURL string

	// optional, keysets are kept in memory only when nil
	Store storage.KeysetStore

	// optional, required only to create melt quotes
	LightningClient lightning.Client
}

type Wallet struct {
	mintURL string
	unit    cashu.Unit

	client          *client
	db              storage.KeysetStore
	lightningClient lightning.Client

	mu            sync.RWMutex
	activeKeyset  *crypto.WalletKeyset
	keysets       map[string]nut02.Keyset
}

func New(config Config) (*Wallet, error) {
	mintURL, err := url.Parse(config.MintURL)
	if err != nil {
		return nil, fmt.Errorf("invalid mint url: %v", err)
	}

	wallet := &Wallet{
		mintURL:         mintURL.String(),
		unit:            cashu.Sat,
		client:          newClient(mintURL.String()),
		db:              config.Store,
		lightningClient: config.LightningClient,
		keysets:         make(map[string]nut02.Keyset),
	}

	if wallet.db != nil {
		storedKeysets, err := wallet.db.GetKeysets()
		if err != nil {
			return nil, fmt.Errorf("error reading keysets from store: %v", err)
		}
		for id, keyset := range storedKeysets[wallet.mintURL] {
			wallet.keysets[id] = nut02.Keyset{
				Id:          id,
				Unit:        keyset.Unit,
				Active:      keyset.Active,
				InputFeePpk: keyset.InputFeePpk,
			}
		}
	}

	return wallet, nil
}

func (w *Wallet) MintURL() string {
	return w.mintURL
}

// ReceiveResult reports the outcome of redeeming proofs. A mint
// rejection is captured in Err with Success false; it is not returned
// as an error from Receive.
type ReceiveResult struct {
	Success bool
	Proofs  cashu.Proofs
	Err     *cashu.Error
}

// Receive swaps the proofs for fresh ones from the active keyset,
// deducting fee from the redeemed amount.
func (w *Wallet) Receive(ctx context.Context, proofs cashu.Proofs, fee uint64) (*ReceiveResult, error) {
	if len(proofs) == 0 {
		return nil, ErrNoProofs
	}
	if !proofs.ValidDenominations() {
		return nil, cashu.ErrInvalidProofAmount
	}

	proofsAmount := proofs.Amount()
	if fee >= proofsAmount {
		return nil, ErrFeeExceedsAmount
	}

	keysetId := proofs[0].Id
	for _, proof := range proofs {
		if proof.Id != keysetId {
			return &ReceiveResult{
				Err: cashu.BuildCashuError("proofs from different keysets cannot be redeemed together",
					cashu.StandardErrCode),
			}, nil
		}
	}

	activeKeyset, err := w.GetActiveKeyset(ctx)
	if err != nil {
		return nil, err
	}

	amounts, err := SplitToAmounts(proofsAmount-fee, activeKeyset)
	if err != nil {
		return nil, err
	}
	outputs, err := CreateOutputs(amounts, activeKeyset.Id)
	if err != nil {
		return nil, err
	}

	newProofs, err := w.swap(ctx, proofs.StripDLEQ(), outputs, activeKeyset)
	if err != nil {
		var cashuErr *cashu.Error
		if errors.As(err, &cashuErr) {
			return &ReceiveResult{Err: cashuErr}, nil
		}
		return nil, err
	}

	return &ReceiveResult{Success: true, Proofs: newProofs}, nil
}

// swap sends the inputs and blinded outputs to the mint and unblinds
// the returned signatures.
func (w *Wallet) swap(ctx context.Context, inputs cashu.Proofs, outputs *OutputSet,
	keyset *crypto.WalletKeyset) (cashu.Proofs, error) {

	swapRequest := nut03.PostSwapRequest{Inputs: inputs, Outputs: outputs.BlindedMessages}
	swapResponse, err := w.client.postSwap(ctx, swapRequest)
	if err != nil {
		return nil, err
	}

	return CreateProofs(swapResponse.Signatures, outputs.Rs, outputs.Secrets, keyset)
}

// PrepareProofsForAmount returns proofs summing exactly to amount,
// swapping with the mint for smaller denominations when the held
// proofs cannot make the amount as they are. The second return value
// holds the remaining proofs.
func (w *Wallet) PrepareProofsForAmount(ctx context.Context, proofs cashu.Proofs, amount uint64) (
	cashu.Proofs, cashu.Proofs, error) {

	send, keep := SelectProofsToSend(proofs, amount)
	if amount > 0 && len(send) == 0 {
		return nil, nil, ErrInsufficientAmounts
	}
	if send.Amount() == amount {
		return send, keep, nil
	}

	activeKeyset, err := w.GetActiveKeyset(ctx)
	if err != nil {
		return nil, nil, err
	}

	selectedAmounts := make([]uint64, len(send))
	for i, proof := range send {
		selectedAmounts[i] = proof.Amount
	}
	keepAmounts, sendAmounts, err := SplitAmountsForPayment(selectedAmounts, activeKeyset, amount)
	if err != nil {
		return nil, nil, err
	}

	outputs, err := CreateOutputs(append(append(make([]uint64, 0, len(sendAmounts)+len(keepAmounts)), sendAmounts...), keepAmounts...), activeKeyset.Id)
	if err != nil {
		return nil, nil, err
	}

	newProofs, err := w.swap(ctx, send.StripDLEQ(), outputs, activeKeyset)
	if err != nil {
		return nil, nil, err
	}

	sendProofs := newProofs[:len(sendAmounts)]
	keep = append(keep, newProofs[len(sendAmounts):]...)
	return sendProofs, keep, nil
}

// MeltQuote is a quote from the mint to pay a bolt11 invoice with
// proofs.
type MeltQuote struct {
	Quote      string
	Amount     uint64
	FeeReserve uint64
	State      nut05.State
	Expiry     uint64
	Preimage   string
}

// MeltQuoteResult reports the outcome of creating a melt quote.
// Failures the caller can do nothing about, like the mint rejecting
// the proofs, are captured in Err with Success false.
type MeltQuoteResult struct {
	Success bool
	Quote   *MeltQuote
	Invoice *lightning.Invoice
	Err     error
}

// CreateMeltQuote verifies the token's proofs and asks the mint for a
// quote to melt them into a Lightning invoice payable to the wallet's
// node. satRate converts the token unit into sats; the invoice amount
// accounts for the keyset fee and the mint's fee reserve, learned with
// a probe quote so the melt can spend the proofs exactly.
func (w *Wallet) CreateMeltQuote(ctx context.Context, token cashu.Token, satRate float64,
	keysetFees map[string]uint) (*MeltQuoteResult, error) {

	if w.lightningClient == nil {
		return &MeltQuoteResult{Err: ErrNoLightningClient}, nil
	}

	simplified, err := cashu.SimplifyToken(token)
	if err != nil {
		return nil, err
	}
	if len(simplified.Proofs) == 0 {
		return nil, ErrNoProofs
	}

	if valid, err := w.verifyProofs(ctx, simplified.Proofs); err != nil || !valid {
		detail := "token proofs have missing or invalid DLEQ proofs"
		if err != nil {
			detail = fmt.Sprintf("%s: %v", detail, err)
		}
		return &MeltQuoteResult{
			Err: cashu.BuildCashuError(detail, cashu.InvalidProofErrCode),
		}, nil
	}

	if keysetFees == nil {
		keysetFees = w.keysetFees()
	}

	// round down so rounding never favors the wallet over the mint
	satAmount := uint64(float64(simplified.SumProofs) * satRate)
	keysetFee := ComputeFee(simplified.Proofs, keysetFees)
	if keysetFee >= satAmount {
		return nil, ErrFeeExceedsAmount
	}
	amountDue := satAmount - keysetFee

	// probe quote to learn the mint's fee reserve for this amount
	probeInvoice, err := w.lightningClient.CreateInvoice(ctx, amountDue)
	if err != nil {
		return nil, fmt.Errorf("error creating invoice: %v", err)
	}
	probeQuote, err := w.requestMeltQuote(ctx, probeInvoice.PaymentRequest)
	if err != nil {
		var cashuErr *cashu.Error
		if errors.As(err, &cashuErr) {
			return &MeltQuoteResult{Err: cashuErr}, nil
		}
		return nil, err
	}

	if probeQuote.FeeReserve == 0 {
		return &MeltQuoteResult{Success: true, Quote: probeQuote, Invoice: &probeInvoice}, nil
	}
	if probeQuote.FeeReserve >= amountDue {
		return &MeltQuoteResult{
			Err: cashu.BuildCashuError("amount is too small to cover the mint fee reserve",
				cashu.StandardErrCode),
		}, nil
	}

	invoice, err := w.lightningClient.CreateInvoice(ctx, amountDue-probeQuote.FeeReserve)
	if err != nil {
		return nil, fmt.Errorf("error creating invoice: %v", err)
	}
	quote, err := w.requestMeltQuote(ctx, invoice.PaymentRequest)
	if err != nil {
		var cashuErr *cashu.Error
		if errors.As(err, &cashuErr) {
			return &MeltQuoteResult{Err: cashuErr}, nil
		}
		return nil, err
	}

	return &MeltQuoteResult{Success: true, Quote: quote, Invoice: &invoice}, nil
}

func (w *Wallet) requestMeltQuote(ctx context.Context, paymentRequest string) (*MeltQuote, error) {
	meltQuoteRequest := nut05.PostMeltQuoteBolt11Request{
		Request: paymentRequest,
		Unit:    w.unit.String(),
	}
	meltQuoteResponse, err := w.client.postMeltQuoteBolt11(ctx, meltQuoteRequest)
	if err != nil {
		return nil, err
	}

	return &MeltQuote{
		Quote:      meltQuoteResponse.Quote,
		Amount:     meltQuoteResponse.Amount,
		FeeReserve: meltQuoteResponse.FeeReserve,
		State:      meltQuoteResponse.State,
		Expiry:     meltQuoteResponse.Expiry,
	}, nil
}

// verifyProofs checks the DLEQ proof of every proof against the keys
// of its keyset.
func (w *Wallet) verifyProofs(ctx context.Context, proofs cashu.Proofs) (bool, error) {
	byKeyset := make(map[string]cashu.Proofs)
	for _, proof := range proofs {
		byKeyset[proof.Id] = append(byKeyset[proof.Id], proof)
	}

	for keysetId, keysetProofs := range byKeyset {
		keys, err := w.GetKeys(ctx, keysetId)
		if err != nil {
			return false, err
		}

		keyset := crypto.WalletKeyset{Id: keysetId, PublicKeys: keys}
		valid, err := nut12.VerifyProofsDLEQ(keysetProofs, keyset)
		if err != nil || !valid {
			return false, err
		}
	}
	return true, nil
}

// MeltResult reports the outcome of melting proofs. A mint rejection,
// like proofs already spent, is captured in Err with Success false.
type MeltResult struct {
	Success bool
	Quote   *MeltQuote
	Change  cashu.Proofs
	Err     *cashu.Error
}

// Melt spends the proofs against the quote, paying its invoice over
// Lightning. Blank outputs sized by the fee reserve let the mint
// return any unused reserve as change.
func (w *Wallet) Melt(ctx context.Context, quote *MeltQuote, proofs cashu.Proofs) (*MeltResult, error) {
	if quote == nil {
		return nil, ErrNilMeltQuote
	}
	if len(proofs) == 0 {
		return nil, ErrNoProofs
	}

	activeKeyset, err := w.GetActiveKeyset(ctx)
	if err != nil {
		return nil, err
	}

	var outputs *OutputSet
	if quote.FeeReserve > 0 {
		outputs, err = CreateBlankOutputs(quote.FeeReserve, activeKeyset.Id)
		if err != nil {
			return nil, err
		}
	}

	meltRequest := nut05.PostMeltBolt11Request{Quote: quote.Quote, Inputs: proofs.StripDLEQ()}
	if outputs != nil {
		meltRequest.Outputs = outputs.BlindedMessages
	}

	meltResponse, err := w.client.postMeltBolt11(ctx, meltRequest)
	if err != nil {
		var cashuErr *cashu.Error
		if errors.As(err, &cashuErr) {
			return &MeltResult{Quote: quote, Err: cashuErr}, nil
		}
		return nil, err
	}

	quote.State = meltResponse.State
	quote.Preimage = meltResponse.Preimage
	result := &MeltResult{Quote: quote, Success: meltResponse.State == nut05.Paid}

	if len(meltResponse.Change) > 0 && outputs != nil {
		changeLen := len(meltResponse.Change)
		if changeLen > len(outputs.Rs) {
			return nil, errors.New("mint returned more change than blank outputs")
		}
		change, err := CreateProofs(meltResponse.Change, outputs.Rs[:changeLen],
			outputs.Secrets[:changeLen], activeKeyset)
		if err != nil {
			return nil, err
		}
		result.Change = change
	}

	return result, nil
}

// CreatePaymentRequest builds an encoded payment request asking for
// amount to be delivered to the endpoint. A zero amount requests any
// amount.
func (w *Wallet) CreatePaymentRequest(amount uint64, paymentId, endpoint string,
	trustedMints []string) (string, error) {

	if paymentId == "" {
		return "", ErrEmptyPaymentId
	}
	if endpoint == "" {
		return "", ErrEmptyEndpoint
	}

	paymentRequest := nut18.PaymentRequest{
		PaymentId:  paymentId,
		Amount:     amount,
		Unit:       w.unit.String(),
		Mints:      trustedMints,
		Transports: []nut18.Transport{{Type: nut18.TransportPost, Target: endpoint}},
	}
	return paymentRequest.Encode()
}
