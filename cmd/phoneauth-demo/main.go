// Package main runs a scripted phone sign-in against the development
// identity backend, then exits or keeps serving health checks.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aelexs/authkit/internal/auth"
	"github.com/aelexs/authkit/internal/domain"
	"github.com/aelexs/authkit/internal/server"
)

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return server.Run(ctx, server.Params{
		Name: "phoneauth-demo",
		Main: demo,
	}, nil)
}

func demo(ctx context.Context, deps server.Deps) (err error) {
	cfg := deps.Config

	a, err := setup(ctx, cfg, deps.Logger)
	if err != nil {
		return fmt.Errorf("phoneauth-demo setup: %w", err)
	}
	defer func() {
		err = errors.Join(err, a.close())
	}()
	deps.Ready()

	res, err := a.phoneLogin(ctx, cfg.Demo.Phone, cfg.Demo.Username, a.codeSource(os.Stdin, os.Stderr))
	if err != nil {
		return err
	}
	report(os.Stdout, res)

	if cfg.Demo.Serve {
		<-ctx.Done()
	}
	return nil
}

// report prints res without leaking the full token.
func report(w io.Writer, res auth.Result) {
	switch r := res.(type) {
	case auth.Success:
		fmt.Fprintf(w, "signed in: user=%s username=%q token=%s\n", r.UserID, r.Username, tokenPrefix(r.Token))
	case *auth.Error:
		fmt.Fprintf(w, "sign-in failed: %s%s\n", r.Error(), hint(r))
	case auth.Cancellation:
		fmt.Fprintln(w, "sign-in cancelled")
	}
}

func hint(e *auth.Error) string {
	switch {
	case domain.IsRetryable(e.Kind):
		return " (try again later)"
	case domain.IsClientError(e.Kind):
		return " (check the number and code)"
	default:
		return ""
	}
}

func tokenPrefix(token string) string {
	const shown = 16
	if len(token) <= shown {
		return token
	}
	return token[:shown] + "..."
}
