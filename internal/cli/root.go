// Package cli implements the checklist command-line client: template and
// session management plus a live session view driven by the poller.
package cli

import (
	"fmt"
	"strconv"

	"checklist/api/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type env struct {
	v        *viper.Viper
	cfgFile  string
	settings Settings
	client   *client.Client
}

// NewRootCommand builds the command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	e := &env{v: viper.New()}

	root := &cobra.Command{
		Use:   "checklist",
		Short: "Collaborative checklist client",
		Long: `checklist talks to a checklist server: manage templates, start sessions
from them, check items off together and watch a session update live.`,
		SilenceUsage:      true,
		PersistentPreRunE: e.load,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&e.cfgFile, "config", "c", "", "config file (default is $HOME/.config/checklist/config.yaml)")
	flags.String("server", "", "checklist server URL")
	flags.StringP("user", "u", "", "name recorded when you check items")
	flags.Duration("poll-interval", 0, "refresh cadence for watch")
	flags.Duration("timeout", 0, "per-request timeout")
	_ = e.v.BindPFlag(keyServer, flags.Lookup("server"))
	_ = e.v.BindPFlag(keyUser, flags.Lookup("user"))
	_ = e.v.BindPFlag(keyPollInterval, flags.Lookup("poll-interval"))
	_ = e.v.BindPFlag(keyRequestTimeout, flags.Lookup("timeout"))

	root.AddCommand(
		newTemplatesCommand(e),
		newStartCommand(e),
		newListCommand(e),
		newShowCommand(e),
		newCheckCommand(e, true),
		newCheckCommand(e, false),
		newCommentCommand(e),
		newCompleteCommand(e),
		newWatchCommand(e),
	)
	return root
}

func (e *env) load(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings(e.v, e.cfgFile)
	if err != nil {
		return err
	}
	e.settings = settings
	e.client = client.New(settings.Server, settings.User, settings.RequestTimeout)
	return nil
}

// parseItemNumber converts a 1-based item number into an index.
func parseItemNumber(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("item number must be a positive integer, got %q", arg)
	}
	return n - 1, nil
}
