package main

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/oauth2"

	"bank-txn-monitor/internal/config"
	"bank-txn-monitor/internal/mailbox"
)

// Authorizes Gmail read-only access from a terminal and writes the token
// file the service resumes from.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Unable to load configuration: %v", err)
	}

	oauthCfg, err := mailbox.LoadOAuthConfig(cfg.Gmail.CredentialsFile, cfg.Gmail.RedirectURL)
	if err != nil {
		log.Fatalf("Unable to read client secret file: %v", err)
	}

	authURL := oauthCfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Printf("Go to the following link in your browser: %v\n", authURL)
	fmt.Println("\nAfter authorization, you'll be redirected to a URL. Copy the 'code' parameter from that URL.")

	var authCode string
	fmt.Print("\nEnter the authorization code: ")
	if _, err := fmt.Scan(&authCode); err != nil {
		log.Fatalf("Unable to read authorization code: %v", err)
	}

	tok, err := oauthCfg.Exchange(context.Background(), authCode)
	if err != nil {
		log.Fatalf("Unable to retrieve token from web: %v", err)
	}

	if err := mailbox.NewFileTokenStore(cfg.Gmail.TokenFile).Save(tok); err != nil {
		log.Fatalf("Unable to save token: %v", err)
	}

	fmt.Printf("\nToken saved to %s (expires %v)\n", cfg.Gmail.TokenFile, tok.Expiry)
	if tok.RefreshToken == "" {
		fmt.Println("Warning: no refresh token was issued; revoke the app's access and authorize again.")
	}
}
