package cli

import (
	"github.com/spf13/cobra"

	"github.com/soocke/pixel-scroll-go/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve scroll-capture tools over MCP on stdio",
	Long: `Run an MCP server on stdin/stdout exposing the scroll session as tools:
scroll_init, scroll_capture, scroll_handle_image, scroll_get_size,
scroll_get_image_data, scroll_save_to_file, scroll_save_to_clipboard,
scroll_finish, scroll_clear and scroll_stats. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setup(cmd)
		if err != nil {
			return err
		}
		c.Logger.Info("mcp server starting", "name", app.ServerName, "version", app.ServerVersion)
		return app.NewMCPServer(c).Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
