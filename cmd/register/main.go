package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"debt-tracker/internal/api"
	"debt-tracker/internal/forms"
	"debt-tracker/pkg/logging"
)

const defaultAPI = "http://localhost:8000"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(stderr)

	username := fs.String("user", "", "Username")
	email := fs.String("email", "", "Email (optional)")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	apiURL := fs.String("api", defaultAPI, "Base URL of the debts backend")
	timeout := fs.Duration("timeout", 15*time.Second, "Request timeout")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *username == "" {
		fmt.Fprintln(stdout, "Usage: register -user <username> [-email <email>] [-password <password>] [-api <url>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: user")
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout) // Print newline after password input
	}

	f := forms.RegisterForm{Username: *username, Email: *email, Password: password}
	if err := f.Validate(); err != nil {
		return err
	}

	// Allow overriding the backend via env var if not explicitly set via flag
	if u := os.Getenv("API_BASE_URL"); u != "" && *apiURL == defaultAPI {
		*apiURL = u
	}

	client := api.New(*apiURL, api.WithTimeout(*timeout), api.WithLogger(logging.New(stderr, logging.ParseLevel(os.Getenv("LOG_LEVEL")))))
	if err := client.Register(context.Background(), f.Username, f.Email, f.Password); err != nil {
		if errors.Is(err, api.ErrUnavailable) {
			return fmt.Errorf("backend unreachable at %s: %w", *apiURL, err)
		}
		return fmt.Errorf("registration failed: %s", api.Message(err, err.Error()))
	}

	fmt.Fprintf(stdout, "User %s registered successfully\n", f.Username)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Fallback for non-terminal (e.g. tests, pipes)
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
