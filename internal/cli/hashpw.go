package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"scrabble-bot/internal/identity"
)

func newHashPasswordCmd() *cobra.Command {
	var (
		cost  int
		email string
	)

	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for ADMIN_ACCOUNTS",
		Long: `hash-password hashes an admin password. The password is read from the
first argument or, when omitted, from the first line of stdin.

With --email the output is a ready-to-paste ADMIN_ACCOUNTS entry.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pw string
			if len(args) == 1 {
				pw = args[0]
			} else {
				sc := bufio.NewScanner(cmd.InOrStdin())
				if sc.Scan() {
					pw = strings.TrimRight(sc.Text(), "\r")
				}
				if err := sc.Err(); err != nil {
					return err
				}
			}
			if pw == "" {
				return errors.New("empty password")
			}

			hash, err := identity.HashPassword(pw, cost)
			if err != nil {
				return err
			}
			if email != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s:%s\n", strings.ToLower(strings.TrimSpace(email)), hash)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	cmd.Flags().StringVar(&email, "email", "", "admin email to prefix the hash with")
	return cmd
}
