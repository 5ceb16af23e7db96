package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// NewCredentialCmd создаёт группу команд для управления credentials.
func NewCredentialCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage credentials",
	}

	cmd.AddCommand(
		newCredentialPutCmd(clientFn, outputFn),
		newCredentialListCmd(clientFn, outputFn),
		newCredentialDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

func newCredentialPutCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name string
	var value string
	var valueFile string

	cmd := &cobra.Command{
		Use:   "put REF",
		Short: "Store or update a credential",
		Long: "Store or update a credential. The secret value is taken from --value,\n" +
			"--value-file or the FLOWLINE_CREDENTIAL_VALUE environment variable.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			secret, err := resolveSecretValue(value, valueFile)
			if err != nil {
				return err
			}

			cred, err := client.PutCredential(PutCredentialRequest{
				Ref:   args[0],
				Name:  name,
				Value: secret,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Credential stored: %s", cred.Ref))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Human-readable credential name")
	cmd.Flags().StringVar(&value, "value", "", "Secret value")
	cmd.Flags().StringVar(&valueFile, "value-file", "", "Read secret value from file")

	return cmd
}

func newCredentialListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List credentials (values are never shown)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			creds, err := client.ListCredentials()
			if err != nil {
				return err
			}

			headers := []string{"REF", "NAME", "UPDATED"}
			rows := make([][]string, len(creds))
			for i, c := range creds {
				rows[i] = []string{c.Ref, c.Name, c.UpdatedAt}
			}

			out.Print(headers, rows, creds)
			return nil
		},
	}
}

func newCredentialDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete REF",
		Short: "Delete a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteCredential(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Credential deleted: %s", args[0]))
			return nil
		},
	}
}

// resolveSecretValue берёт значение секрета из флага, файла или окружения.
func resolveSecretValue(value, valueFile string) (string, error) {
	if value != "" {
		return value, nil
	}
	if valueFile != "" {
		data, err := os.ReadFile(valueFile)
		if err != nil {
			return "", fmt.Errorf("failed to read value file: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	}
	if env := os.Getenv("FLOWLINE_CREDENTIAL_VALUE"); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("secret value is required (--value, --value-file or FLOWLINE_CREDENTIAL_VALUE)")
}
