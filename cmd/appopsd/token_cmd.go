package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Mindburn-Labs/appops/pkg/auth"
)

// runTokenCmd mints a signed caller token with APPOPS_JWT_SECRET, for
// development and test harnesses.
func runTokenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("token", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		uid    int
		pkg    string
		grants string
		ttl    time.Duration
		shell  bool
	)
	cmd.IntVar(&uid, "uid", -1, "Caller uid (REQUIRED unless -shell)")
	cmd.StringVar(&pkg, "package", "", "Caller package")
	cmd.StringVar(&grants, "grant", "", "Comma-separated permission grants")
	cmd.DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	cmd.BoolVar(&shell, "shell", false, "Mint a token for the shell identity")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	secret := os.Getenv("APPOPS_JWT_SECRET")
	if secret == "" {
		_, _ = fmt.Fprintln(stderr, "Error: APPOPS_JWT_SECRET is not set")
		return 2
	}

	var caller auth.Caller
	switch {
	case shell:
		caller = auth.Shell()
	case uid < 0:
		_, _ = fmt.Fprintln(stderr, "Error: -uid is required")
		return 2
	default:
		caller = auth.App(uid, pkg)
		for _, g := range strings.Split(grants, ",") {
			if g = strings.TrimSpace(g); g != "" {
				caller.Grants = append(caller.Grants, g)
			}
		}
	}

	tok, err := auth.SignToken([]byte(secret), caller, ttl, time.Now())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, tok)
	return 0
}
