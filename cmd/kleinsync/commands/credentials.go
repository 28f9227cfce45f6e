package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Encrypt or check stored passwords",
}

var credentialsEncryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt the password read from stdin",
	Long: `Encrypt the first line of stdin with ENCRYPTION_KEY and print the
ciphertext, ready for the password column of the accounts table.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cipher, err := newCipher(cfg)
		if err != nil {
			return err
		}
		plaintext, err := readSecret(cmd.InOrStdin())
		if err != nil {
			return err
		}
		ciphertext, err := cipher.Encrypt(plaintext)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ciphertext)
		return nil
	},
}

var credentialsVerifyCmd = &cobra.Command{
	Use:   "verify <ciphertext>",
	Short: "Check that a ciphertext decrypts with ENCRYPTION_KEY",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cipher, err := newCipher(cfg)
		if err != nil {
			return err
		}
		if !cipher.Verify(args[0]) {
			return errors.New("ciphertext does not decrypt with the configured key")
		}
		logInfo("ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(credentialsEncryptCmd, credentialsVerifyCmd)
}
