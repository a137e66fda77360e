// payctl is the command-line surface of the payment engine: merchants create
// invoices, payers settle links, and anyone can check settlement status.
//
// Usage:
//
//	payctl create -amount 1500000 [-kind standard|multi|donation] [-asset primary|stable] [-memo text]
//	payctl pay -link 'URL' [-donation 250000] [-seed 2000000]
//	payctl status -link 'URL'
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"zkinvoice/config"
	"zkinvoice/internal/adapter/index"
	"zkinvoice/internal/adapter/ledger"
	"zkinvoice/internal/adapter/wallet"
	"zkinvoice/internal/core/domain"
	"zkinvoice/internal/link"
	"zkinvoice/internal/service"
	"zkinvoice/pkg/logger"
)

const linkBase = "web+zkpay://invoice"

type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	ledger   *ledger.Client
	index    *index.Client
	wallet   *wallet.LocalWallet
	selector *service.Selector
	proofs   *service.FreezeProofService
	resolver *service.ResolverChain
	policy   service.RetryPolicy
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "payctl: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	switch os.Args[1] {
	case "create":
		err = a.runCreate(ctx, os.Args[2:])
	case "pay":
		err = a.runPay(ctx, os.Args[2:])
	case "status":
		err = a.runStatus(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "payctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: payctl <create|pay|status> [flags]")
}

func newApp() (*app, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	ledgerClient := ledger.NewClient(cfg.Network.LedgerURL, cfg.Network.RequestTimeout, logger.Component(log, "ledger"))
	explorerClient := ledger.NewClient(cfg.Network.ExplorerURL, cfg.Network.RequestTimeout, logger.Component(log, "explorer"))
	indexClient := index.NewClient(cfg.Network.IndexURL, cfg.Network.RequestTimeout, logger.Component(log, "index"))

	backend := wallet.NewHTTPBackend(cfg.Network.LedgerURL, cfg.Network.RequestTimeout, ledgerClient)
	w, err := wallet.New(cfg.Wallet.KeyHex, cfg.Protocol, backend)
	if err != nil {
		return nil, fmt.Errorf("initializing wallet: %w", err)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		ledger:   ledgerClient,
		index:    indexClient,
		wallet:   w,
		selector: service.NewSelector(cfg.Protocol, w, logger.Component(log, "selector")),
		proofs:   service.NewFreezeProofService(cfg.Protocol, ledgerClient, logger.Component(log, "freezeproof")),
		resolver: service.NewResolverChain(logger.Component(log, "resolver"),
			service.DefaultResolvers(w, explorerClient, cfg.Polling.PropagationDelay)...),
		policy: service.PolicyFromConfig(cfg.Polling),
	}, nil
}

func (a *app) runCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	amount := fs.Uint64("amount", 0, "invoice amount in micro-units (ignored for donation)")
	kindFlag := fs.String("kind", "standard", "invoice kind: standard, multi, donation")
	assetFlag := fs.String("asset", "primary", "asset: primary, stable")
	memo := fs.String("memo", "", "free-form memo")
	if err := fs.Parse(args); err != nil {
		return err
	}

	kind, err := parseKind(*kindFlag)
	if err != nil {
		return err
	}
	asset, err := parseAsset(*assetFlag)
	if err != nil {
		return err
	}

	svc := service.NewInvoiceService(a.cfg.Protocol, a.wallet, a.index, a.resolver, a.policy, logger.Component(a.log, "invoice"))
	created, err := svc.CreateInvoice(ctx, service.CreateInvoiceRequest{
		Amount: *amount,
		Kind:   kind,
		Asset:  asset,
		Memo:   *memo,
	})
	if err != nil {
		return err
	}

	fmt.Printf("commitment: %s\n", created.Invoice.Commitment.String())
	fmt.Printf("transaction: %s\n", created.ConfirmedID)
	fmt.Printf("link: %s\n", created.Link.Encode(linkBase))
	return nil
}

func (a *app) runPay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pay", flag.ExitOnError)
	rawLink := fs.String("link", "", "invoice link to pay")
	donation := fs.Uint64("donation", 0, "amount for donation invoices, in micro-units")
	seed := fs.Uint64("seed", 0, "mint a private balance record of this value before paying (dev only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rawLink == "" {
		return fmt.Errorf("-link is required")
	}

	params, err := link.Parse(*rawLink)
	if err != nil {
		return err
	}

	if *seed > 0 {
		asset, err := params.Asset(a.cfg.Protocol.TokenProgram)
		if err != nil {
			return err
		}
		if _, err := a.wallet.MintRecord(*seed, asset); err != nil {
			return err
		}
	}

	controller := service.NewLifecycleController(
		a.cfg.Protocol, a.wallet, a.ledger, a.index,
		a.selector, a.proofs, a.resolver, a.policy,
		logger.Component(a.log, "lifecycle"),
		func(step domain.Step) { fmt.Printf("step: %s\n", step) },
	)

	outcome, err := controller.PayInvoice(ctx, service.PayRequest{Link: params, DonationAmount: *donation})
	if err != nil {
		return err
	}
	if outcome.AlreadyPaid {
		fmt.Println("invoice already settled; nothing to pay")
		return nil
	}

	fmt.Printf("transaction: %s\n", outcome.ConfirmedID)
	fmt.Printf("receipt: %s\n", outcome.Receipt.String())
	// The secret proves this specific payment later; it is shown once and
	// never stored by the engine.
	fmt.Printf("payment secret: %s\n", outcome.Secret.String())
	return nil
}

func (a *app) runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	rawLink := fs.String("link", "", "invoice link to inspect")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rawLink == "" {
		return fmt.Errorf("-link is required")
	}

	params, err := link.Parse(*rawLink)
	if err != nil {
		return err
	}

	controller := service.NewLifecycleController(
		a.cfg.Protocol, a.wallet, a.ledger, a.index,
		a.selector, a.proofs, a.resolver, a.policy,
		logger.Component(a.log, "lifecycle"), nil,
	)
	inv, err := controller.Verify(ctx, params)
	if err != nil {
		return err
	}

	fmt.Printf("commitment: %s\n", inv.Commitment.String())
	fmt.Printf("kind: %s\n", inv.Kind)
	fmt.Printf("asset: %s\n", inv.Asset)
	fmt.Printf("status: %s\n", inv.Status)

	if meta, err := a.index.Get(ctx, inv.Commitment.String()); err == nil && meta != nil {
		fmt.Printf("payments recorded: %d\n", len(meta.PaymentTxIDs))
	}
	return nil
}

func parseKind(s string) (domain.InvoiceKind, error) {
	switch s {
	case "standard":
		return domain.InvoiceStandard, nil
	case "multi":
		return domain.InvoiceMultiPay, nil
	case "donation":
		return domain.InvoiceDonation, nil
	default:
		return "", fmt.Errorf("unknown kind %q", s)
	}
}

func parseAsset(s string) (domain.AssetKind, error) {
	switch s {
	case "primary":
		return domain.AssetPrimary, nil
	case "stable":
		return domain.AssetWrappedStable, nil
	default:
		return "", fmt.Errorf("unknown asset %q", s)
	}
}
