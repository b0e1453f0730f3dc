package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joshp123/gobike/internal/agenix"
	"github.com/joshp123/gobike/internal/config"
	"github.com/joshp123/gobike/internal/session"
	"github.com/joshp123/gobike/mysmartbike"
)

type loginOutput struct {
	Email           string `json:"email"`
	BootstrapPath   string `json:"bootstrap_path"`
	StatePath       string `json:"state_path"`
	BlobPersisted   bool   `json:"blob_persisted,omitempty"`
	AgenixPersisted bool   `json:"agenix_persisted,omitempty"`
	AgenixPath      string `json:"agenix_path,omitempty"`
}

func loginMain(args []string) {
	flags := flag.NewFlagSet("login", flag.ExitOnError)
	email := flags.String("email", "", "MySmartBike account email")
	passwordFile := flags.String("password-file", "", "Read the password from a file (otherwise prompt)")
	configPath := flags.String("config", "", "Path to config.yaml (default: search path)")
	bootstrapFile := flags.String("bootstrap-file", "", "Override bootstrap file path")
	stateFile := flags.String("state-file", "", "Override session state file path")
	skipBlob := flags.Bool("skip-blob", false, "Skip blob storage persistence")
	jsonOut := flags.Bool("json", false, "Output JSON to stdout")
	persistAgenix := flags.Bool("persist-agenix", false, "Persist bootstrap secret via agenix")
	agenixRepo := flags.String("agenix-repo", defaultAgenixRepo(), "Path to nix-secrets repo")
	agenixSecret := flags.String("agenix-secret", "", "Override agenix secret name")
	agenixRecipients := flags.String("agenix-recipients", "", "Space-separated recipient override")
	timeout := flags.Duration("timeout", 2*time.Minute, "Timeout for the login flow")
	_ = flags.Parse(args)

	if *email == "" {
		fatal("login", fmt.Errorf("--email is required"))
	}

	cfg, cfgErr := config.Load(*configPath)
	if cfgErr != nil && (*bootstrapFile == "" || *stateFile == "") {
		fatal("login", fmt.Errorf("config unavailable (%v); pass --bootstrap-file and --state-file to run without one", cfgErr))
	}

	bootstrapPath := *bootstrapFile
	if bootstrapPath == "" {
		bootstrapPath = cfg.MySmartBike.BootstrapFile
	}
	statePath := *stateFile
	if statePath == "" {
		statePath = cfg.MySmartBike.StateFile
	}
	baseURL := cfg.MySmartBike.BaseURL
	if baseURL == "" {
		baseURL = mysmartbike.DefaultBaseURL
	}

	password, err := readPassword(*passwordFile, *jsonOut)
	if err != nil {
		fatal("login", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	httpClient := &http.Client{Timeout: 15 * time.Second}
	token, err := mysmartbike.Login(ctx, httpClient, baseURL, *email, password)
	if err != nil {
		fatal("login", err)
	}

	bootstrap := session.Bootstrap{Email: *email, Password: password}
	if err := session.WriteBootstrap(bootstrapPath, bootstrap); err != nil {
		fatal("login", err)
	}

	state := session.State{
		SchemaVersion: session.SchemaVersion,
		Email:         *email,
		Token:         token,
		ObtainedAt:    time.Now().UTC(),
	}
	if err := session.WriteState(statePath, state); err != nil {
		fatal("login", err)
	}

	output := loginOutput{
		Email:         *email,
		BootstrapPath: bootstrapPath,
		StatePath:     statePath,
	}

	if !*skipBlob && cfgErr == nil && cfg.Blob.Configured() {
		store, err := session.NewS3Store(cfg.Blob)
		if err != nil {
			fatal("login", err)
		}
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			fatal("login", err)
		}
		if err := store.Save(ctx, session.Provider, data); err != nil {
			fatal("login", err)
		}
		output.BlobPersisted = true
	}

	if *persistAgenix {
		agenixPath, err := persistAgenixBootstrap(ctx, bootstrap, *agenixRepo, *agenixSecret, strings.Fields(*agenixRecipients))
		if err != nil {
			fatal("login", err)
		}
		output.AgenixPersisted = true
		output.AgenixPath = agenixPath
	}

	emitLoginOutput(output, *jsonOut)
}

func readPassword(passwordFile string, jsonOut bool) (string, error) {
	if passwordFile != "" {
		data, err := os.ReadFile(passwordFile)
		if err != nil {
			return "", err
		}
		password := strings.TrimSpace(string(data))
		if password == "" {
			return "", fmt.Errorf("password file %s is empty", passwordFile)
		}
		return password, nil
	}

	prompt := os.Stdout
	if jsonOut {
		prompt = os.Stderr
	}
	fmt.Fprint(prompt, "Password: ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	password := strings.TrimSpace(line)
	if password == "" {
		return "", fmt.Errorf("no password provided")
	}
	return password, nil
}

func persistAgenixBootstrap(ctx context.Context, bootstrap session.Bootstrap, repo, secret string, recipients []string) (string, error) {
	repo = strings.TrimSpace(repo)
	if repo == "" {
		return "", fmt.Errorf("agenix repo not configured")
	}
	if secret == "" {
		secret = fmt.Sprintf("gobike-%s-bootstrap.age", session.Provider)
	}
	payload, err := json.MarshalIndent(bootstrap, "", "  ")
	if err != nil {
		return "", err
	}
	writer := agenix.Writer{
		RepoPath:   repo,
		SecretName: secret,
		Recipients: recipients,
	}
	return writer.Write(ctx, payload)
}

func emitLoginOutput(output loginOutput, jsonOut bool) {
	if jsonOut {
		payload, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			fatal("login", err)
		}
		fmt.Fprintln(os.Stdout, string(payload))
		return
	}

	fmt.Printf("Login verified for %s\n", output.Email)
	fmt.Printf("Bootstrap file: %s\n", output.BootstrapPath)
	fmt.Printf("State file: %s\n", output.StatePath)
	fmt.Printf("Blob persisted: %t\n", output.BlobPersisted)
	if output.AgenixPersisted {
		fmt.Printf("Agenix secret: %s\n", output.AgenixPath)
	}
}

func defaultAgenixRepo() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	repo := filepath.Join(home, "code", "nix", "nix-secrets")
	info, err := os.Stat(repo)
	if err != nil || !info.IsDir() {
		return ""
	}
	return repo
}
