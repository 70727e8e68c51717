package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kperson/fire-sync/internal/identity"
)

func main() {
	keyB64 := flag.String("key", os.Getenv("TOKEN_SIGNING_KEY"), "Base64-encoded signing key (default $TOKEN_SIGNING_KEY)")
	namespace := flag.String("namespace", "", "Namespace the token is valid in")
	memberID := flag.String("member", "", "Member ID")
	ttl := flag.Duration("ttl", time.Hour, "Token lifetime")
	flag.Parse()

	if *keyB64 == "" || *namespace == "" || *memberID == "" {
		fmt.Fprintln(os.Stderr, "Usage: mint -key <signing-key-base64> -namespace <ns> -member <member-id> [-ttl 1h]")
		os.Exit(1)
	}

	issuer, err := identity.NewJWTIssuer(*keyB64, "fire-sync", *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid signing key: %v\n", err)
		os.Exit(1)
	}

	token, err := issuer.IssueToken(context.Background(), *namespace, *memberID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to mint token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
