// Command thesisadmin is the administrative client for the lock service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"

	"github.com/glykeria-rk/thesisadmincli/internal/client"
)

const (
	defaultServer = "http://127.0.0.1:8080/"
	serverEnv     = "THESISLOCK_URL"
)

var (
	// errUsage is returned after usage has already been printed.
	errUsage = errors.New("usage")
	// errNotGranted fails verify-rfid-id-access after the decision is shown.
	errNotGranted = errors.New("not granted")
)

type app struct {
	stdout io.Writer
	stderr io.Writer
	client *client.Client
	loc    *time.Location
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	server := os.Getenv(serverEnv)
	if server == "" {
		server = defaultServer
	}

	global := pflag.NewFlagSet("thesisadmin", pflag.ContinueOnError)
	global.SetOutput(stderr)
	global.SetInterspersed(false)
	global.StringVar(&server, "server", server, "lock service base URL (env "+serverEnv+")")
	tz := global.String("timezone", "Local", "zone in which rule datetimes are given")
	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		fmt.Fprintf(stderr, "Error: timezone %q: %v\n", *tz, err)
		return 2
	}
	c, err := client.New(server, nil)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 2
	}

	a := &app{stdout: stdout, stderr: stderr, client: c, loc: loc}
	registry := NewCommandRegistry()
	registerCommands(registry)

	err = registry.Execute(ctx, a, global.Args())
	var apiErr *client.APIError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, errNotGranted):
		return 1
	case errors.As(err, &apiErr):
		fmt.Fprintln(stderr, apiErr.Message)
		return 1
	default:
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
}
