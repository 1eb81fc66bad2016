package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ning0612/davpush/internal/config"
)

func newKeyringCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyring",
		Short: "Manage the password stored in the OS keyring",
	}

	var username string

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store the WebDAV password in the OS keyring",
		Long: `Reads the password from standard input and stores it in the OS keyring.
It is used whenever password is left empty in the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", username)
			password, err := readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if password == "" {
				return fmt.Errorf("password cannot be empty")
			}
			if err := config.SetPassword(username, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password for %s stored.\n", username)
			return nil
		},
	}
	setCmd.Flags().StringVarP(&username, "username", "u", "", "WebDAV user name")
	setCmd.MarkFlagRequired("username")

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.DeletePassword(username); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password for %s removed.\n", username)
			return nil
		},
	}
	deleteCmd.Flags().StringVarP(&username, "username", "u", "", "WebDAV user name")
	deleteCmd.MarkFlagRequired("username")

	cmd.AddCommand(setCmd, deleteCmd)
	return cmd
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
