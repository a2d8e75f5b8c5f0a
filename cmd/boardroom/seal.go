package main

import (
	"fmt"
	"os"

	"boardroom/internal/vault"
)

// runSeal encrypts a plaintext value with the vault passphrase so it
// can live in the config file as api_key_sealed.
func runSeal(args []string) error {
	passphrase := os.Getenv("BOARDROOM_VAULT_PASSPHRASE")
	if passphrase == "" {
		return fmt.Errorf("BOARDROOM_VAULT_PASSPHRASE environment variable is required")
	}

	var plaintext string
	switch {
	case len(args) >= 1 && args[0] != "":
		plaintext = args[0]
	case os.Getenv("ANTHROPIC_API_KEY") != "":
		plaintext = os.Getenv("ANTHROPIC_API_KEY")
	default:
		fmt.Fprintf(os.Stderr, "Usage: boardroom seal <value>\n\nReads ANTHROPIC_API_KEY when no value is given.\n")
		return fmt.Errorf("nothing to seal")
	}

	sealed, err := vault.New(passphrase).Seal(plaintext)
	if err != nil {
		return fmt.Errorf("seal value: %w", err)
	}

	fmt.Println(sealed)
	return nil
}
