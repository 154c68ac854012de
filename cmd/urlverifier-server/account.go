package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/urlverifier/internal/config"
	"github.com/pendergraft/urlverifier/internal/genlayer"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage the signing account used for submissions",
		Long: `Without ACCOUNT_PRIVATE_KEY or ACCOUNT_KEY_FILE the server signs with a
fresh account on every initialization. Create a key file to keep one identity
across restarts.`,
	}

	cmd.AddCommand(newAccountCreateCmd())
	cmd.AddCommand(newAccountShowCmd())

	return cmd
}

func newAccountCreateCmd() *cobra.Command {
	var output string
	var force bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate an account and write it to a key file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}

			account, err := genlayer.NewAccount()
			if err != nil {
				return err
			}
			if err := genlayer.SaveAccountFile(output, account); err != nil {
				return err
			}

			fmt.Printf("Account created: %s\n", account.Address())
			fmt.Printf("   Written to: %s (mode 0600)\n", output)
			fmt.Println()
			fmt.Println("   Usage:")
			fmt.Println("     export ACCOUNT_KEY_FILE=" + output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "./urlverifier-account.yaml", "key file path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")

	return cmd
}

func newAccountShowCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the address of the configured signing account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			keyFile := cfg.Account.KeyFile
			if file != "" {
				keyFile = file
			}
			if cfg.Account.PrivateKey == "" && keyFile == "" {
				fmt.Println("No account configured; a fresh account is generated on each initialization.")
				return nil
			}

			account, err := genlayer.AccountSource(cfg.Account.PrivateKey, keyFile)()
			if err != nil {
				return err
			}
			fmt.Println(account.Address())
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "key file to read instead of ACCOUNT_KEY_FILE")

	return cmd
}
