package wallet

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cashewallet/cashew/cashu"
	"github.com/cashewallet/cashew/cashu/nuts/nut18"
	"github.com/gorilla/mux"
)

// ReceivedPayment is a settled payment request: the payload a payer
// posted and the fresh proofs the wallet holds after redeeming it.
type ReceivedPayment struct {
	Payload nut18.PaymentRequestPayload
	Proofs  cashu.Proofs
}

// PaymentListener serves the post transport of payment requests the
// wallet created: payers POST a PaymentRequestPayload to /v1/payment
// and the listener redeems the proofs through Receive.
type PaymentListener struct {
	wallet    *Wallet
	router    *mux.Router
	logger    *slog.Logger
	onPayment func(ReceivedPayment)
}

func NewPaymentListener(wallet *Wallet, onPayment func(ReceivedPayment)) *PaymentListener {
	listener := &PaymentListener{
		wallet:    wallet,
		logger:    slog.Default(),
		onPayment: onPayment,
	}

	r := mux.NewRouter()
	r.HandleFunc("/v1/payment", listener.handlePayment).Methods(http.MethodPost)
	listener.router = r

	return listener
}

func (pl *PaymentListener) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	pl.router.ServeHTTP(rw, req)
}

func (pl *PaymentListener) handlePayment(rw http.ResponseWriter, req *http.Request) {
	var payload nut18.PaymentRequestPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		pl.writeErr(rw, http.StatusBadRequest,
			cashu.BuildCashuError("invalid payment payload", cashu.StandardErrCode))
		return
	}

	if payload.Mint != pl.wallet.mintURL {
		pl.writeErr(rw, http.StatusBadRequest,
			cashu.BuildCashuError("proofs are not from a trusted mint", cashu.StandardErrCode))
		return
	}

	keysets, err := pl.wallet.GetKeysets(req.Context())
	if err != nil {
		pl.logger.Error("could not get keysets", slog.String("error", err.Error()))
		pl.writeErr(rw, http.StatusInternalServerError,
			cashu.BuildCashuError("unable to process payment", cashu.StandardErrCode))
		return
	}
	fees := make(map[string]uint, len(keysets))
	for _, keyset := range keysets {
		fees[keyset.Id] = keyset.InputFeePpk
	}

	result, err := pl.wallet.Receive(req.Context(), payload.Proofs, ComputeFee(payload.Proofs, fees))
	if err != nil {
		pl.logger.Error("could not redeem payment", slog.String("error", err.Error()))
		pl.writeErr(rw, http.StatusInternalServerError,
			cashu.BuildCashuError("unable to process payment", cashu.StandardErrCode))
		return
	}
	if !result.Success {
		pl.writeErr(rw, http.StatusBadRequest, result.Err)
		return
	}

	pl.logger.Info("received payment",
		slog.String("id", payload.Id), slog.Uint64("amount", result.Proofs.Amount()))
	if pl.onPayment != nil {
		pl.onPayment(ReceivedPayment{Payload: payload, Proofs: result.Proofs})
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.Write([]byte("{}"))
}

func (pl *PaymentListener) writeErr(rw http.ResponseWriter, status int, cashuErr *cashu.Error) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(cashuErr)
}
