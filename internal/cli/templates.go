package cli

import (
	"fmt"
	"io"
	"os"

	"checklist/api/internal/templatetext"
	"github.com/spf13/cobra"
)

func newTemplatesCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"template", "tpl"},
		Short:   "Manage checklist templates",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List templates",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				templates, err := e.client.ListTemplates(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTemplateList(templates))
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <name>",
			Short: "Show a template's items",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				tpl, err := e.client.GetTemplate(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTemplate(tpl))
				return nil
			},
		},
		newTemplateSaveCommand(e),
		&cobra.Command{
			Use:   "import <file.yaml>",
			Short: "Create or replace a template from a YAML file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				raw, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("read %s: %w", args[0], err)
				}
				file, err := templatetext.ParseYAML(raw)
				if err != nil {
					return err
				}
				items, mandatory := file.Split()
				tpl, err := e.client.UpsertTemplate(cmd.Context(), file.Name, items, mandatory)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved template %q with %d items\n", tpl.Name, len(tpl.Items))
				return nil
			},
		},
		&cobra.Command{
			Use:   "export <name>",
			Short: "Print a template as YAML",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				tpl, err := e.client.GetTemplate(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				raw, err := templatetext.MarshalYAML(tpl.Name, tpl.Items, tpl.Mandatory)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(raw)
				return err
			},
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete a template",
			Long:  "Delete a template. Sessions already started from it keep their own copy of the items.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := e.client.DeleteTemplate(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted template %q\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func newTemplateSaveCommand(e *env) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Create or replace a template from text",
		Long: `Create or replace a template from text, one item per line.
Lines starting with "?" are optional items; all other lines are mandatory.
Reads standard input unless --file is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			if file == "" || file == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("read template text: %w", err)
			}
			items, mandatory := templatetext.Parse(string(raw))
			tpl, err := e.client.UpsertTemplate(cmd.Context(), args[0], items, mandatory)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved template %q with %d items\n", tpl.Name, len(tpl.Items))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read items from file instead of stdin")
	return cmd
}
