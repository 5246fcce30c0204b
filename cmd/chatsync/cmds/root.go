package cmds

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewRootCommand(app *App) *cobra.Command {
	v := viper.New()
	var configPath string

	root := &cobra.Command{
		Use:           "chatsync",
		Short:         "chatsync talks to the USS assistant backend from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(v, configPath)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default chatsync.yaml in ., $HOME/.chatsync or the user config dir)")
	flags.String("api-url", "", "backend base URL")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.StringVarP(&app.output, "output", "o", "table", "output format: table or yaml")
	cobra.CheckErr(v.BindPFlag("api.base_url", flags.Lookup("api-url")))
	cobra.CheckErr(v.BindPFlag("log.level", flags.Lookup("log-level")))

	root.AddCommand(
		newLoginCommand(app),
		newLogoutCommand(app),
		newRegisterCommand(app),
		newConversationsCommand(app),
		newMessagesCommand(app),
		newSendCommand(app),
		newChatCommand(app),
		newChatbotsCommand(app),
		newUploadCommand(app),
		newReportCommand(app),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	app := &App{}
	err := NewRootCommand(app).Execute()
	if cerr := app.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
