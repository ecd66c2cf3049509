package lightning

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	macaroon "gopkg.in/macaroon.v2"
)

const InvoiceExpiryMins = 10

type LndConfig struct {
	GRPCHost     string
	TLSCertPath  string
	MacaroonPath string
}

type LndClient struct {
	grpcClient lnrpc.LightningClient
}

func SetupLndClient(config LndConfig) (*LndClient, error) {
	if config.GRPCHost == "" {
		return nil, errors.New("LND gRPC host cannot be empty")
	}

	creds, err := credentials.NewClientTLSFromFile(config.TLSCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("error reading tls cert: %v", err)
	}

	macaroonBytes, err := os.ReadFile(config.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("error reading macaroon: %v", err)
	}

	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macaroonBytes); err != nil {
		return nil, fmt.Errorf("error parsing macaroon: %v", err)
	}

	conn, err := grpc.NewClient(
		config.GRPCHost,
		grpc.WithTransportCredentials(creds),
		grpc.WithPerRPCCredentials(macaroonCredential{macaroon: mac}),
	)
	if err != nil {
		return nil, fmt.Errorf("error setting up grpc client: %v", err)
	}

	return &LndClient{grpcClient: lnrpc.NewLightningClient(conn)}, nil
}

func (lnd *LndClient) CreateInvoice(ctx context.Context, amount uint64) (Invoice, error) {
	invoiceRequest := &lnrpc.Invoice{
		Value:  int64(amount),
		Expiry: InvoiceExpiryMins * 60,
	}

	addInvoiceResponse, err := lnd.grpcClient.AddInvoice(ctx, invoiceRequest)
	if err != nil {
		return Invoice{}, err
	}

	invoice := Invoice{
		PaymentRequest: addInvoiceResponse.PaymentRequest,
		PaymentHash:    hex.EncodeToString(addInvoiceResponse.RHash),
		Amount:         amount,
		Expiry:         uint64(time.Now().Add(time.Minute * InvoiceExpiryMins).Unix()),
	}
	return invoice, nil
}

func (lnd *LndClient) InvoiceStatus(ctx context.Context, hash string) (Invoice, error) {
	hashBytes, err := hex.DecodeString(hash)
	if err != nil {
		return Invoice{}, fmt.Errorf("invalid payment hash: %v", err)
	}

	lookupInvoiceResponse, err := lnd.grpcClient.LookupInvoice(ctx, &lnrpc.PaymentHash{RHash: hashBytes})
	if err != nil {
		return Invoice{}, err
	}

	invoice := Invoice{
		PaymentRequest: lookupInvoiceResponse.PaymentRequest,
		PaymentHash:    hash,
		Settled:        lookupInvoiceResponse.State == lnrpc.Invoice_SETTLED,
		Amount:         uint64(lookupInvoiceResponse.Value),
		Expiry:         uint64(lookupInvoiceResponse.CreationDate + lookupInvoiceResponse.Expiry),
	}
	if lookupInvoiceResponse.State == lnrpc.Invoice_SETTLED {
		invoice.Preimage = hex.EncodeToString(lookupInvoiceResponse.RPreimage)
	}
	return invoice, nil
}

// macaroonCredential attaches the hex encoded macaroon
// to every grpc request.
type macaroonCredential struct {
	macaroon *macaroon.Macaroon
}

func (c macaroonCredential) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	macBytes, err := c.macaroon.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return map[string]string{"macaroon": hex.EncodeToString(macBytes)}, nil
}

func (c macaroonCredential) RequireTransportSecurity() bool {
	return true
}
