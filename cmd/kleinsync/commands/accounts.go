package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/kleinsync/internal/domain"
	"github.com/jmylchreest/kleinsync/internal/logger"
	"github.com/jmylchreest/kleinsync/internal/output"
	"github.com/jmylchreest/kleinsync/internal/store"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage classifieds accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts with their last sync",
	Args:  cobra.NoArgs,
	RunE:  runAccountsList,
}

var accountsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an account",
	Long: `Add an account. The password is read from the first line of stdin
and stored encrypted with ENCRYPTION_KEY.

Example:
  printf '%s\n' "$PASSWORD" | kleinsync accounts add --name Shop --email seller@example.com`,
	Args: cobra.NoArgs,
	RunE: runAccountsAdd,
}

var accountsEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Include an account in batch syncs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAccountActive(args[0], true)
	},
}

var accountsDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Exclude an account from syncs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAccountActive(args[0], false)
	},
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsListCmd, accountsAddCmd, accountsEnableCmd, accountsDisableCmd)

	addFormatFlag(accountsListCmd, output.FormatText)

	flags := accountsAddCmd.Flags()
	flags.String("name", "", "display name (required)")
	flags.String("email", "", "login email (required)")
	flags.Bool("inactive", false, "add the account deactivated")
	_ = accountsAddCmd.MarkFlagRequired("name")
	_ = accountsAddCmd.MarkFlagRequired("email")
}

type newAccount struct {
	Name     string `validate:"required,min=1,max=100"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	accounts, err := st.ListAccounts(ctx)
	if err != nil {
		return err
	}

	w, closeFn, err := openWriter(cmd)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		row := accountRow{Account: a}
		latest, err := st.LatestSyncLog(ctx, a.ID)
		switch {
		case err == nil:
			row.LastStatus = latest.Status
			row.LastError = latest.ErrorMessage
		case !errors.Is(err, domain.ErrNotFound):
			logger.Warn("failed to read sync log", "account", a.ID, "error", err)
		}
		if err := w.Write(row); err != nil {
			_ = closeFn()
			return err
		}
	}
	return closeFn()
}

func runAccountsAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	password, err := readSecret(cmd.InOrStdin())
	if err != nil {
		return err
	}

	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	in := newAccount{
		Name:     strings.TrimSpace(name),
		Email:    strings.TrimSpace(email),
		Password: password,
	}
	if err := validator.New().Struct(in); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}

	cipher, err := newCipher(cfg)
	if err != nil {
		return err
	}
	encrypted, err := cipher.Encrypt(in.Password)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	inactive, _ := cmd.Flags().GetBool("inactive")
	account, err := st.CreateAccount(ctx, domain.Account{
		Name:              in.Name,
		Email:             in.Email,
		EncryptedPassword: encrypted,
		Active:            !inactive,
	})
	if err != nil {
		logger.Error("failed to create account", "email", in.Email, "error", err)
		return err
	}

	logInfo("Added account %s (%s)", account.Name, account.Email)
	fmt.Fprintln(cmd.OutOrStdout(), account.ID)
	return nil
}

func setAccountActive(id string, active bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	return toggleAccount(ctx, st, id, active)
}

func toggleAccount(ctx context.Context, st store.Store, id string, active bool) error {
	if err := st.SetAccountActive(ctx, id, active); err != nil {
		return err
	}
	state := "disabled"
	if active {
		state = "enabled"
	}
	logInfo("Account %s %s", id, state)
	return nil
}

// readSecret reads the first line of r without its line ending.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no secret on stdin")
	}
	return line, nil
}
