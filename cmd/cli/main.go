// Command kg is a CLI client for the keygate account API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// ---- credentials store ----

type credentials struct {
	Email  string `json:"email"`
	APIKey string `json:"api_key"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "keygate")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "keygate")
}

func credsPath() string { return filepath.Join(cfgDir(), "credentials.json") }

func saveCreds(c credentials) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(credsPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

func loadCreds() (credentials, error) {
	var c credentials
	b, err := os.ReadFile(credsPath())
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, err
	}
	if c.APIKey == "" {
		return c, errors.New("no saved api key (login required)")
	}
	return c, nil
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

const usageText = `kg CLI
Usage:
  kg [-addr URL] [-timeout 30s] <cmd> [args]

Commands:
  version
  register         -e <email> -p <password> -k <activation api key>
  login            -e <email> -p <password>            (saves api key)
  verify           -e <email> -c <code>
  resend           -e <email> -p <password>
  change-key       -e <email> -k <new api key>         (updates saved key)
  change-password  -e <email> -old <password> -new <password>
  check            [-k <api key>]                      (defaults to saved key)
`

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches one subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	gfs := flag.NewFlagSet("kg", flag.ContinueOnError)
	gfs.SetOutput(stderr)
	addr := gfs.String("addr", envOr("KEYGATE_URL", "http://localhost:8000"), "server base URL")
	timeout := gfs.Duration("timeout", 30*time.Second, "request timeout")
	gfs.Usage = func() { fmt.Fprint(stderr, usageText) }
	if err := gfs.Parse(args); err != nil {
		return 2
	}
	if gfs.NArg() < 1 {
		gfs.Usage()
		return 2
	}
	cmd, rest := gfs.Arg(0), gfs.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	cli := newClient(*addr, *timeout)

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	email := fs.String("e", "", "email")
	password := fs.String("p", "", "password")
	key := fs.String("k", "", "api key")
	code := fs.String("c", "", "verification code")
	oldPw := fs.String("old", "", "current password")
	newPw := fs.String("new", "", "new password")
	if err := fs.Parse(rest); err != nil {
		return 2
	}
	need := func(vals ...string) bool {
		for _, v := range vals {
			if v == "" {
				fmt.Fprintf(stderr, "%s: missing required flag\n", cmd)
				return false
			}
		}
		return true
	}

	var (
		reply *apiReply
		err   error
	)
	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "kg %s (%s)\n", version, buildDate)
		return 0

	case "register":
		if !need(*email, *password, *key) {
			return 2
		}
		reply, err = cli.Register(ctx, *email, *password, *key)

	case "login":
		if !need(*email, *password) {
			return 2
		}
		reply, err = cli.Login(ctx, *email, *password)
		if err == nil {
			if serr := saveCreds(credentials{Email: *email, APIKey: reply.APIKey}); serr != nil {
				fmt.Fprintln(stderr, "save credentials:", serr)
				return 1
			}
		}

	case "verify":
		if !need(*email, *code) {
			return 2
		}
		reply, err = cli.Verify(ctx, *email, *code)

	case "resend":
		if !need(*email, *password) {
			return 2
		}
		reply, err = cli.Resend(ctx, *email, *password)

	case "change-key":
		if !need(*email, *key) {
			return 2
		}
		reply, err = cli.ChangeKey(ctx, *email, *key)
		if err == nil {
			if saved, lerr := loadCreds(); lerr == nil && saved.Email == *email {
				saved.APIKey = *key
				_ = saveCreds(saved)
			}
		}

	case "change-password":
		if !need(*email, *oldPw, *newPw) {
			return 2
		}
		reply, err = cli.ChangePassword(ctx, *email, *oldPw, *newPw)

	case "check":
		k := *key
		if k == "" {
			saved, lerr := loadCreds()
			if lerr != nil {
				fmt.Fprintln(stderr, lerr)
				return 1
			}
			k = saved.APIKey
		}
		reply, err = cli.Check(ctx, k)

	default:
		gfs.Usage()
		return 2
	}

	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	printJSON(stdout, reply)
	if !reply.Success {
		return 1
	}
	return 0
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
