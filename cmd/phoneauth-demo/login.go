package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aelexs/authkit/internal/auth"
)

// codeReader yields the code the user would type.
type codeReader func(ctx context.Context) (string, error)

// codeSource reads codes from the outbox when delivery is in-process and
// prompts on out otherwise.
func (a *app) codeSource(in io.Reader, out io.Writer) codeReader {
	if a.outbox != nil {
		return func(ctx context.Context) (string, error) {
			msg, err := a.outbox.Next(ctx)
			return msg.Code, err
		}
	}
	return promptCodes(in, out)
}

// promptCodes reads one code per line from in. The scanner goroutine lives
// until in is exhausted.
func promptCodes(in io.Reader, out io.Writer) codeReader {
	lines := make(chan string)
	var start sync.Once
	return func(ctx context.Context) (string, error) {
		start.Do(func() {
			go func() {
				defer close(lines)
				scanner := bufio.NewScanner(in)
				for scanner.Scan() {
					lines <- strings.TrimSpace(scanner.Text())
				}
			}()
		})

		fmt.Fprint(out, "verification code: ")
		select {
		case line, ok := <-lines:
			if !ok {
				return "", io.EOF
			}
			return line, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// phoneLogin runs one phone sign-in through the registry and returns its
// terminal result. The code is read once the engine reports it sent; test
// numbers complete without one.
func (a *app) phoneLogin(ctx context.Context, number, username string, next codeReader) (auth.Result, error) {
	results := a.registry.Results().Subscribe()
	defer results.Close()

	sent := make(chan struct{}, 1)
	a.phone.Init(auth.InitConfig{SMSListener: auth.SMSListenerFuncs{
		Sent: func() {
			select {
			case sent <- struct{}{}:
			default:
			}
		},
		Received: func(string) {
			a.logger.InfoContext(ctx, "verification code retrieved automatically")
		},
	}})
	if _, auto := a.testNumbers[number]; auto {
		sent = nil
	}

	readCtx, stopReading := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer stopReading()

	codes := make(chan string, 1)
	readErrs := make(chan error, 1)

	a.phone.Login(ctx, auth.SendCode{Phone: number, Username: username})

	for {
		select {
		case res := <-results.C():
			return res, nil
		case <-sent:
			sent = nil
			wg.Add(1)
			go func() {
				defer wg.Done()
				code, err := next(readCtx)
				if err != nil {
					readErrs <- err
					return
				}
				codes <- code
			}()
		case code := <-codes:
			a.phone.Login(ctx, auth.ConfirmCode{Code: code})
		case err := <-readErrs:
			return nil, fmt.Errorf("read verification code: %w", err)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
