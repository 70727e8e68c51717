package main

import (
	"fmt"

	"github.com/kperson/fire-sync/internal/crypto"
)

func main() {
	key, err := crypto.GenerateSigningKey()
	if err != nil {
		panic(err)
	}

	fmt.Printf("TOKEN_SIGNING_KEY=%s\n", key)
}
