// Package nut18 has the payment request encoding.
// See https://github.com/cashubtc/nuts/blob/main/18.md
package nut18

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/cashewallet/cashew/cashu"
	"github.com/fxamacker/cbor/v2"
)

const (
	PaymentRequestPrefix = "creq"
	PaymentRequestV1     = "A"

	// transport over which the payload is delivered
	TransportPost  = "post"
	TransportNostr = "nostr"
)

var ErrInvalidPaymentRequest = errors.New("invalid payment request")

type PaymentRequest struct {
	PaymentId   string      `json:"i,omitempty" cbor:"i,omitempty"`
	Amount      uint64      `json:"a,omitempty" cbor:"a,omitempty"`
	Unit        string      `json:"u,omitempty" cbor:"u,omitempty"`
	SingleUse   bool        `json:"s,omitempty" cbor:"s,omitempty"`
	Mints       []string    `json:"m,omitempty" cbor:"m,omitempty"`
	Description string      `json:"d,omitempty" cbor:"d,omitempty"`
	Transports  []Transport `json:"t" cbor:"t"`
}

type Transport struct {
	Type   string     `json:"t" cbor:"t"`
	Target string     `json:"a" cbor:"a"`
	Tags   [][]string `json:"g,omitempty" cbor:"g,omitempty"`
}

// PaymentRequestPayload is the body delivered to the transport target
// to settle a payment request.
type PaymentRequestPayload struct {
	Id     string       `json:"id"`
	Memo   string       `json:"memo,omitempty"`
	Mint   string       `json:"mint"`
	Unit   string       `json:"unit"`
	Proofs cashu.Proofs `json:"proofs"`
}

func (pr PaymentRequest) Encode() (string, error) {
	requestBytes, err := cbor.Marshal(pr)
	if err != nil {
		return "", fmt.Errorf("cbor.Marshal: %v", err)
	}

	return PaymentRequestPrefix + PaymentRequestV1 +
		base64.RawURLEncoding.EncodeToString(requestBytes), nil
}

func DecodePaymentRequest(request string) (*PaymentRequest, error) {
	prefixLen := len(PaymentRequestPrefix) + len(PaymentRequestV1)
	if len(request) < prefixLen {
		return nil, ErrInvalidPaymentRequest
	}
	if request[:prefixLen] != PaymentRequestPrefix+PaymentRequestV1 {
		return nil, ErrInvalidPaymentRequest
	}

	requestBytes, err := base64.URLEncoding.DecodeString(request[prefixLen:])
	if err != nil {
		requestBytes, err = base64.RawURLEncoding.DecodeString(request[prefixLen:])
		if err != nil {
			return nil, fmt.Errorf("error decoding payment request: %v", err)
		}
	}

	var paymentRequest PaymentRequest
	if err := cbor.Unmarshal(requestBytes, &paymentRequest); err != nil {
		return nil, fmt.Errorf("cbor.Unmarshal: %v", err)
	}

	return &paymentRequest, nil
}
