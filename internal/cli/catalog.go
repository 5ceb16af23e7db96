package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewCatalogCmd создаёт группу команд для просмотра каталога узлов.
func NewCatalogCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the node catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available node kinds",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			templates, err := client.GetCatalog()
			if err != nil {
				return err
			}

			headers := []string{"KIND", "LABEL", "CATEGORY", "TRIGGER"}
			rows := make([][]string, len(templates))
			for i, t := range templates {
				rows[i] = []string{t.Kind, t.Label, t.Category, strconv.FormatBool(t.IsTrigger)}
			}

			out.Print(headers, rows, templates)
			return nil
		},
	})

	return cmd
}
