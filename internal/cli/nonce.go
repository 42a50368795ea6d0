package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/strongdm/devpulse-go/pkg/devpulse"
)

var (
	nonceSubject string
	nonceTTL     time.Duration
)

func init() {
	rootCmd.AddCommand(nonceCmd)
	nonceCmd.Flags().StringVarP(&nonceSubject, "subject", "s", "", "Identity the nonce is bound to (required)")
	nonceCmd.Flags().DurationVar(&nonceTTL, "ttl", devpulse.DefaultNonceTTL, "Validity period")
	_ = nonceCmd.MarkFlagRequired("subject")
}

var nonceCmd = &cobra.Command{
	Use:   "nonce",
	Short: "Mint a connection-test nonce",
	Long:  "Signs a nonce for the " + devpulse.TestAction + " action. The secret is read from nonce_secret\nor prompted for when stdin is a terminal.",
	Args:  cobra.NoArgs,
	RunE:  runNonce,
}

func runNonce(cmd *cobra.Command, args []string) error {
	secret := cfg.NonceSecret
	if secret == "" {
		s, err := promptSecret()
		if err != nil {
			return err
		}
		secret = s
	}

	m, err := devpulse.NewNonceManager([]byte(secret), nonceTTL)
	if err != nil {
		return err
	}
	token, err := m.Create(devpulse.TestAction, nonceSubject)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func promptSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("nonce_secret is not set and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Nonce secret: ")
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}
