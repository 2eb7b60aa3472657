package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmerrifield20/profilehub/internal/users"
)

func (c *cli) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect and remove accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <username>",
		Short: "Print an account as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			acct, err := a.Users.GetByUsername(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(users.SerializeAccount(acct, a.Media.URL))
		},
	})

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			accts, err := a.Users.List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "USERNAME\tEMAIL\tVERIFIED\tCREATED")
			for _, acct := range accts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					acct.Username, acct.Email, strconv.FormatBool(acct.Profile.IsVerified),
					acct.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of accounts")
	list.Flags().IntVar(&offset, "offset", 0, "number of accounts to skip")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <username>",
		Short: "Delete an account, its profile and its images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Users.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})
	return cmd
}
