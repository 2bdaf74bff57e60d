package cli

import (
	"fmt"
	"strings"
	"time"

	"checklist/api/internal/checklist"
	"github.com/spf13/cobra"
)

func newStartCommand(e *env) *cobra.Command {
	var templateName string
	cmd := &cobra.Command{
		Use:   "start <session-name>",
		Short: "Start a session from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := e.client.CreateSession(cmd.Context(), args[0], templateName)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started session %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&templateName, "template", "t", "", "template to start from")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func newListCommand(e *env) *cobra.Command {
	var completed bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions, err := e.client.ListSessions(cmd.Context(), completed)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSessionList(sessions, time.Now()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&completed, "completed", false, "list completed sessions instead")
	return cmd
}

func newShowCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := e.client.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSession(view))
			return nil
		},
	}
}

func newCheckCommand(e *env, checked bool) *cobra.Command {
	use, short, verb := "check", "Check an item", "Checked"
	if !checked {
		use, short, verb = "uncheck", "Uncheck an item", "Unchecked"
	}
	return &cobra.Command{
		Use:   use + " <session-id> <item-number>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseItemNumber(args[1])
			if err != nil {
				return err
			}
			progress, err := e.client.ApplyItemUpdate(cmd.Context(), args[0], index, checklist.ItemUpdate{Checked: &checked})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s item %d  %s\n", verb, index+1, summarizeProgress(progress))
			return nil
		},
	}
}

func newCommentCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "comment <session-id> <item-number> <text...>",
		Short: "Set the comment on an item (empty text clears it)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseItemNumber(args[1])
			if err != nil {
				return err
			}
			text := strings.Join(args[2:], " ")
			progress, err := e.client.ApplyItemUpdate(cmd.Context(), args[0], index, checklist.ItemUpdate{Comment: &text})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Commented on item %d  %s\n", index+1, summarizeProgress(progress))
			return nil
		},
	}
}

func newCompleteCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <session-id>",
		Short: "Complete a session once every mandatory item is checked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := e.client.CompleteSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSession(view))
			return nil
		},
	}
}

func summarizeProgress(p checklist.Progress) string {
	return mutedStyle.Render(fmt.Sprintf("(%d/%d checked, mandatory %d/%d)",
		p.CheckedCount, p.Total, p.CheckedMandatoryCount, p.MandatoryCount))
}
