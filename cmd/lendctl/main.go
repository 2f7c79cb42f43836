package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"lendledger/cmd/internal/passphrase"
	"lendledger/crypto"
	"lendledger/services/lendingd/server"
)

const (
	defaultServer = "http://127.0.0.1:8080"
	defaultPass   = "LENDCTL_PASS"
	defaultSecret = "LENDCTL_HMAC_SECRET"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `Usage: lendctl <command> [flags]

Keys and tokens:
  keygen      create an encrypted keystore and print its lend1 address
  address     print the address held in a keystore
  token       sign an API token for an account

Ledger (require -token unless noted):
  deposit     -amount N
  withdraw    -amount N
  open        -principal N -collateral N
  repay       -loan ID -amount N
  liquidate   -loan ID
  set-ratio   -bps N        (owner)
  set-rate    -bps N        (owner)
  pause       -module NAME  (owner)
  resume      -module NAME  (owner)

Queries:
  loan -id ID | due -id ID | account -id ACCOUNT | params | count | events | paused -module NAME`)
}

// run dispatches one command; it returns errors instead of exiting so the
// commands can be driven from tests.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		usage(os.Stderr)
		return errors.New("command required")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "keygen":
		return runKeygen(rest, stdout)
	case "address":
		return runAddress(rest, stdout)
	case "token":
		return runToken(rest, stdout)
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	}
	return runAPI(ctx, cmd, rest, stdout)
}

func runKeygen(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	out := fs.String("out", "lend.keystore", "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPass, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		return fmt.Errorf("keystore %s already exists; pass -force to overwrite", *out)
	}
	pass, err := passphrase.NewSource(*passEnv, "keystore passphrase").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return err
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return nil
}

func runAddress(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	path := fs.String("keystore", "lend.keystore", "Keystore file")
	passEnv := fs.String("pass-env", defaultPass, "Environment variable containing the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pass, err := passphrase.NewSource(*passEnv, "keystore passphrase").Get()
	if err != nil {
		return err
	}
	key, err := crypto.LoadFromKeystore(*path, pass)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return nil
}

func runToken(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "Account the token authenticates")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	issuer := fs.String("issuer", "", "Issuer claim")
	audience := fs.String("audience", "", "Audience claim")
	secretEnv := fs.String("secret-env", defaultSecret, "Environment variable containing the HMAC secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*subject) == "" {
		return errors.New("token: -subject required")
	}
	if *ttl <= 0 {
		return errors.New("token: -ttl must be positive")
	}
	secret, err := passphrase.NewSource(*secretEnv, "HMAC secret").Get()
	if err != nil {
		return err
	}
	tok, err := server.SignToken(secret, *issuer, *audience, strings.TrimSpace(*subject), *ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, tok)
	return nil
}

type apiFlags struct {
	fs         *flag.FlagSet
	server     *string
	token      *string
	amount     *uint64
	principal  *uint64
	collateral *uint64
	loan       *uint64
	bps        *uint64
	id         *string
	account    *string
	eventType  *string
	after      *uint64
	limit      *int
	module     *string
}

func newAPIFlags(cmd string) *apiFlags {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	baseURL := os.Getenv("LENDCTL_SERVER")
	if baseURL == "" {
		baseURL = defaultServer
	}
	return &apiFlags{
		fs:         fs,
		server:     fs.String("server", baseURL, "lendingd base URL (LENDCTL_SERVER)"),
		token:      fs.String("token", os.Getenv("LENDCTL_TOKEN"), "Bearer token (LENDCTL_TOKEN)"),
		amount:     fs.Uint64("amount", 0, "Amount in base units"),
		principal:  fs.Uint64("principal", 0, "Loan principal"),
		collateral: fs.Uint64("collateral", 0, "Loan collateral"),
		loan:       fs.Uint64("loan", 0, "Loan id"),
		bps:        fs.Uint64("bps", 0, "Basis points"),
		id:         fs.String("id", "", "Loan id or account"),
		account:    fs.String("account", "", "Filter events by account"),
		eventType:  fs.String("type", "", "Filter events by type"),
		after:      fs.Uint64("after", 0, "Return events after this sequence number"),
		limit:      fs.Int("limit", 0, "Maximum events to return"),
		module:     fs.String("module", "lending", "Module name"),
	}
}

func amountBody(v uint64) map[string]string {
	return map[string]string{"amount": strconv.FormatUint(v, 10)}
}

func runAPI(ctx context.Context, cmd string, args []string, stdout io.Writer) error {
	f := newAPIFlags(cmd)
	if err := f.fs.Parse(args); err != nil {
		return err
	}
	var (
		method = http.MethodGet
		path   string
		body   any
	)
	switch cmd {
	case "deposit", "withdraw":
		method, path, body = http.MethodPost, "/v1/"+cmd, amountBody(*f.amount)
	case "open":
		method, path = http.MethodPost, "/v1/loans"
		body = map[string]string{
			"principal":  strconv.FormatUint(*f.principal, 10),
			"collateral": strconv.FormatUint(*f.collateral, 10),
		}
	case "repay":
		method, path, body = http.MethodPost, fmt.Sprintf("/v1/loans/%d/repay", *f.loan), amountBody(*f.amount)
	case "liquidate":
		method, path = http.MethodPost, fmt.Sprintf("/v1/loans/%d/liquidate", *f.loan)
	case "set-ratio":
		method, path, body = http.MethodPut, "/v1/params/collateral-ratio", map[string]uint64{"bps": *f.bps}
	case "set-rate":
		method, path, body = http.MethodPut, "/v1/params/interest-rate", map[string]uint64{"bps": *f.bps}
	case "pause", "resume":
		method, path = http.MethodPut, "/v1/pauses/"+url.PathEscape(*f.module)
		body = map[string]bool{"paused": cmd == "pause"}
	case "paused":
		path = "/v1/pauses/" + url.PathEscape(*f.module)
	case "loan":
		path = "/v1/loans/" + url.PathEscape(*f.id)
	case "due":
		path = "/v1/loans/" + url.PathEscape(*f.id) + "/due"
	case "account":
		path = "/v1/accounts/" + url.PathEscape(*f.id)
	case "params":
		path = "/v1/params"
	case "count":
		path = "/v1/loans/count"
	case "events":
		q := url.Values{}
		if *f.loan != 0 {
			q.Set("loan", strconv.FormatUint(*f.loan, 10))
		}
		if *f.account != "" {
			q.Set("account", *f.account)
		}
		if *f.eventType != "" {
			q.Set("type", *f.eventType)
		}
		if *f.after != 0 {
			q.Set("after", strconv.FormatUint(*f.after, 10))
		}
		if *f.limit > 0 {
			q.Set("limit", strconv.Itoa(*f.limit))
		}
		path = "/v1/events"
		if encoded := q.Encode(); encoded != "" {
			path += "?" + encoded
		}
	default:
		usage(os.Stderr)
		return fmt.Errorf("unknown command %q", cmd)
	}
	if method != http.MethodGet && strings.TrimSpace(*f.token) == "" {
		return fmt.Errorf("%s: -token or LENDCTL_TOKEN required", cmd)
	}
	payload, err := newClient(*f.server, *f.token).do(ctx, method, path, body)
	if err != nil {
		return err
	}
	return printJSON(stdout, payload)
}
