package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cashewallet/cashew/cashu"
	"github.com/cashewallet/cashew/lightning"
	"github.com/cashewallet/cashew/wallet"
	"github.com/cashewallet/cashew/wallet/storage"
	"github.com/cashewallet/cashew/wallet/storage/boltdb"
	"github.com/cashewallet/cashew/wallet/storage/sqlite"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var cashew *wallet.Wallet

func walletConfig() (wallet.Config, error) {
	path := setWalletPath()

	envPath := filepath.Join(path, ".env")
	if _, err := os.Stat(envPath); err != nil {
		wd, err := os.Getwd()
		if err != nil {
			envPath = ""
		} else {
			envPath = filepath.Join(wd, ".env")
		}
	}
	if len(envPath) > 0 {
		godotenv.Load(envPath)
	}

	config := wallet.Config{MintURL: "http://127.0.0.1:3338"}
	if mintURL := os.Getenv("MINT_URL"); len(mintURL) > 0 {
		config.MintURL = mintURL
	}

	store, err := setupStore(path)
	if err != nil {
		return config, err
	}
	config.Store = store

	lightningClient, err := setupLightning()
	if err != nil {
		return config, err
	}
	config.LightningClient = lightningClient

	return config, nil
}

func setWalletPath() string {
	homedir, err := os.UserHomeDir()
	if err != nil {
		log.Fatal(err)
	}

	path := filepath.Join(homedir, ".cashew", "wallet")
	err = os.MkdirAll(path, 0700)
	if err != nil {
		log.Fatal(err)
	}
	return path
}

func setupStore(path string) (storage.KeysetStore, error) {
	switch os.Getenv("WALLET_DB") {
	case "sqlite":
		return sqlite.InitSQLite(path)
	default:
		return boltdb.InitBolt(path)
	}
}

// setupLightning connects to lnd if configured. The wallet works
// without it, paying invoices is just unavailable.
func setupLightning() (lightning.Client, error) {
	grpcHost := os.Getenv("LND_GRPC_HOST")
	if len(grpcHost) == 0 {
		return nil, nil
	}

	config := lightning.LndConfig{
		GRPCHost:     grpcHost,
		TLSCertPath:  os.Getenv("LND_CERT_PATH"),
		MacaroonPath: os.Getenv("LND_MACAROON_PATH"),
	}
	return lightning.SetupLndClient(config)
}

func setupWallet(ctx *cli.Context) error {
	config, err := walletConfig()
	if err != nil {
		printErr(err)
	}

	cashew, err = wallet.New(config)
	if err != nil {
		printErr(err)
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:  "cashew",
		Usage: "cashu ecash wallet",
		Commands: []*cli.Command{
			decodeCmd,
			receiveCmd,
			payCmd,
			requestCmd,
			keysetsCmd,
			listenCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var decodeCmd = &cli.Command{
	Name:   "decode",
	Usage:  "Decode a cashu token and print its contents",
	Action: decode,
}

func decode(ctx *cli.Context) error {
	args := ctx.Args()
	if args.Len() < 1 {
		printErr(errors.New("cashu token not provided"))
	}

	token, err := cashu.DecodeToken(args.First())
	if err != nil {
		printErr(err)
	}

	simplified, err := cashu.SimplifyToken(token)
	if err != nil {
		printErr(err)
	}

	fmt.Printf("mint: %v\n", simplified.Mint)
	fmt.Printf("unit: %v\n", simplified.Unit)
	fmt.Printf("amount: %v\n", simplified.SumProofs)
	fmt.Printf("proofs: %v\n", len(simplified.Proofs))
	if len(simplified.Memo) > 0 {
		fmt.Printf("memo: %v\n", simplified.Memo)
	}
	return nil
}

var receiveCmd = &cli.Command{
	Name:   "receive",
	Usage:  "Redeem a cashu token with the mint",
	Before: setupWallet,
	Action: receive,
}

func receive(ctx *cli.Context) error {
	args := ctx.Args()
	if args.Len() < 1 {
		printErr(errors.New("cashu token not provided"))
	}

	token, err := cashu.DecodeToken(args.First())
	if err != nil {
		printErr(err)
	}

	simplified, err := cashu.SimplifyToken(token)
	if err != nil {
		printErr(err)
	}
	if simplified.Mint != cashew.MintURL() {
		printErr(errors.New("token is from a different mint"))
	}

	fee, err := swapFee(ctx, simplified.Proofs)
	if err != nil {
		printErr(err)
	}

	result, err := cashew.Receive(ctx.Context, simplified.Proofs, fee)
	if err != nil {
		printErr(err)
	}
	if !result.Success {
		printErr(result.Err)
	}

	fmt.Printf("%v sats received\n", result.Proofs.Amount())
	return nil
}

func swapFee(ctx *cli.Context, proofs cashu.Proofs) (uint64, error) {
	keysets, err := cashew.GetKeysets(ctx.Context)
	if err != nil {
		return 0, err
	}

	fees := make(map[string]uint, len(keysets))
	for _, keyset := range keysets {
		fees[keyset.Id] = keyset.InputFeePpk
	}
	return wallet.ComputeFee(proofs, fees), nil
}

const satRateFlag = "sat-rate"

var payCmd = &cli.Command{
	Name:  "pay",
	Usage: "Swap a cashu token for a Lightning payment",
	Flags: []cli.Flag{
		&cli.Float64Flag{
			Name:  satRateFlag,
			Usage: "Conversion rate from the token unit to sats",
			Value: 1,
		},
	},
	Before: setupWallet,
	Action: pay,
}

func pay(ctx *cli.Context) error {
	args := ctx.Args()
	if args.Len() < 1 {
		printErr(errors.New("cashu token not provided"))
	}

	token, err := cashu.DecodeToken(args.First())
	if err != nil {
		printErr(err)
	}

	quoteResult, err := cashew.CreateMeltQuote(ctx.Context, token, ctx.Float64(satRateFlag), nil)
	if err != nil {
		printErr(err)
	}
	if !quoteResult.Success {
		printErr(quoteResult.Err)
	}

	meltResult, err := cashew.Melt(ctx.Context, quoteResult.Quote, token.Proofs())
	if err != nil {
		printErr(err)
	}
	if !meltResult.Success {
		if meltResult.Err != nil {
			printErr(meltResult.Err)
		}
		printErr(errors.New("payment did not settle"))
	}

	fmt.Printf("invoice paid, preimage: %v\n", meltResult.Quote.Preimage)
	if change := meltResult.Change.Amount(); change > 0 {
		fmt.Printf("change: %v sats\n", change)
	}
	return nil
}

const (
	idFlag       = "id"
	endpointFlag = "endpoint"
)

var requestCmd = &cli.Command{
	Name:  "request",
	Usage: "Create an encoded payment request",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     idFlag,
			Usage:    "Payment id to correlate incoming payments",
			Required: true,
		},
		&cli.StringFlag{
			Name:     endpointFlag,
			Usage:    "HTTP endpoint the payer should post the ecash to",
			Required: true,
		},
	},
	Before: setupWallet,
	Action: request,
}

func request(ctx *cli.Context) error {
	var amount uint64
	if args := ctx.Args(); args.Len() > 0 {
		var err error
		amount, err = strconv.ParseUint(args.First(), 10, 64)
		if err != nil {
			printErr(errors.New("invalid amount"))
		}
	}

	paymentRequest, err := cashew.CreatePaymentRequest(amount, ctx.String(idFlag),
		ctx.String(endpointFlag), []string{cashew.MintURL()})
	if err != nil {
		printErr(err)
	}

	fmt.Printf("%v\n", paymentRequest)
	return nil
}

var keysetsCmd = &cli.Command{
	Name:   "keysets",
	Usage:  "List the mint's keysets",
	Before: setupWallet,
	Action: keysets,
}

func keysets(ctx *cli.Context) error {
	keysets, err := cashew.GetKeysets(ctx.Context)
	if err != nil {
		printErr(err)
	}

	for _, keyset := range keysets {
		fmt.Printf("%v\tunit: %v\tactive: %v\tfee ppk: %v\n",
			keyset.Id, keyset.Unit, keyset.Active, keyset.InputFeePpk)
	}
	return nil
}

const portFlag = "port"

var listenCmd = &cli.Command{
	Name:  "listen",
	Usage: "Serve an endpoint that redeems incoming ecash payments",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  portFlag,
			Value: "8338",
		},
	},
	Before: setupWallet,
	Action: listen,
}

func listen(ctx *cli.Context) error {
	listener := wallet.NewPaymentListener(cashew, func(payment wallet.ReceivedPayment) {
		fmt.Printf("received %v sats for payment id %v\n",
			payment.Proofs.Amount(), payment.Payload.Id)
	})

	fmt.Printf("listening on port %v\n", ctx.String(portFlag))
	return http.ListenAndServe(":"+ctx.String(portFlag), listener)
}

func printErr(msg error) {
	fmt.Println(msg.Error())
	os.Exit(1)
}
