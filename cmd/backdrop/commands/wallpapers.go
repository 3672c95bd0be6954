package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/bryanchriswhite/backdrop/internal/config"
	"github.com/spf13/cobra"
)

var wallpapersCmd = &cobra.Command{
	Use:   "wallpapers",
	Short: "Manage the wallpaper catalog",
}

var wallpapersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List selectable wallpapers",
	Example: `  # List wallpapers as a table (default)
  backdrop wallpapers list

  # List wallpapers as JSON
  backdrop wallpapers list --format json`,
	RunE: runWallpapersList,
}

var wallpapersFormat string

func init() {
	rootCmd.AddCommand(wallpapersCmd)
	wallpapersCmd.AddCommand(wallpapersListCmd)

	wallpapersListCmd.Flags().StringVarP(&wallpapersFormat, "format", "f", "table", "output format (table or json)")
}

func runWallpapersList(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configMgr.Get()
	return printWallpapers(cmd.OutOrStdout(), cfg.Wallpapers, cfg.Background, wallpapersFormat)
}

func printWallpapers(w io.Writer, wallpapers []config.Wallpaper, current config.BackgroundConfig, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(wallpapers)
	case "table":
		if len(wallpapers) == 0 {
			fmt.Fprintln(w, "No wallpapers configured")
			return nil
		}
		rows := make([][]string, 0, len(wallpapers))
		for _, wp := range wallpapers {
			marker := ""
			if current.Mode == "wallpaper" && current.WallpaperID == wp.ID {
				marker = "*"
			}
			rows = append(rows, []string{marker, wp.ID, wp.Name, wp.URL})
		}
		fmt.Fprintln(w, renderTable([]string{"", "ID", "NAME", "URL"}, rows))
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", format)
	}
}
