package nut18

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestEncodeDecodePaymentRequest(t *testing.T) {
	tests := []PaymentRequest{
		{
			PaymentId: "b7a90176",
			Amount:    10,
			Unit:      "sat",
			Mints:     []string{"https://8333.space:3338"},
			Transports: []Transport{
				{Type: TransportPost, Target: "https://example.com/v1/payment"},
			},
		},
		{
			PaymentId:   "f2b3c1d0",
			Unit:        "sat",
			SingleUse:   true,
			Description: "topup",
			Transports: []Transport{
				{
					Type:   TransportNostr,
					Target: "nprofile1qy28wumn8ghj7un9d3shjtnyv9kh2uewd9hsz9mhwden5te0wfjkccte9curxven9eehqctrv5hszrthwden5te0dehhxtnvdakqqgydaqy7curk439ykptkysv7udhdhu68sucm295akqefdehkf0d495cwunl5",
					Tags:   [][]string{{"n", "17"}},
				},
			},
		},
	}

	for _, request := range tests {
		encoded, err := request.Encode()
		if err != nil {
			t.Fatalf("error encoding payment request: %v", err)
		}
		if !strings.HasPrefix(encoded, "creqA") {
			t.Errorf("expected 'creqA' prefix but got '%v' instead", encoded[:5])
		}

		decoded, err := DecodePaymentRequest(encoded)
		if err != nil {
			t.Fatalf("error decoding payment request: %v", err)
		}

		if !reflect.DeepEqual(*decoded, request) {
			t.Errorf("expected '%+v' but got '%+v' instead", request, *decoded)
		}
	}
}

func TestDecodePaymentRequestInvalid(t *testing.T) {
	tests := []string{
		"",
		"creq",
		"creqB2Fh",
		"cashuA1234",
	}

	for _, request := range tests {
		if _, err := DecodePaymentRequest(request); err == nil {
			t.Errorf("expected error decoding '%v'", request)
		}
	}
}

func TestDecodePaymentRequestBadEncoding(t *testing.T) {
	if _, err := DecodePaymentRequest("creqA!!!not-base64!!!"); err == nil {
		t.Error("expected error decoding request with invalid base64")
	}

	if _, err := DecodePaymentRequest("creq"); !errors.Is(err, ErrInvalidPaymentRequest) {
		t.Errorf("expected '%v'", ErrInvalidPaymentRequest)
	}
}
