package commands

import (
	"fmt"

	"github.com/bryanchriswhite/backdrop/internal/background"
	"github.com/bryanchriswhite/backdrop/internal/config"
	"github.com/spf13/cobra"
)

var backgroundCmd = &cobra.Command{
	Use:   "background",
	Short: "Manage the startup background mode",
}

var backgroundSetCmd = &cobra.Command{
	Use:   "set MODE [WALLPAPER_ID]",
	Short: "Set the background mode restored at startup",
	Long: `Persist the background mode the server starts in.

A running server is not affected; use PUT /api/background for that.`,
	Example: `  # Disable background effects
  backdrop background set off

  # Blur the background
  backdrop background set blur

  # Use a wallpaper from the catalog
  backdrop background set wallpaper beach`,
	Args:      cobra.RangeArgs(1, 2),
	ValidArgs: []string{string(background.KindOff), string(background.KindBlur), string(background.KindWallpaper)},
	RunE:      runBackgroundSet,
}

func init() {
	rootCmd.AddCommand(backgroundCmd)
	backgroundCmd.AddCommand(backgroundSetCmd)
}

func runBackgroundSet(cmd *cobra.Command, args []string) error {
	id := ""
	if len(args) > 1 {
		id = args[1]
	}

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	mode, err := setBackground(configMgr, args[0], id)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Background set to %s\n", mode)
	return nil
}

func setBackground(configMgr *config.Manager, kind, id string) (background.Mode, error) {
	mode, err := background.ParseMode(kind, id)
	if err != nil {
		return background.Mode{}, err
	}

	if mode.Kind == background.KindWallpaper {
		catalog, err := background.NewCatalog(configMgr.Get().Wallpapers)
		if err != nil {
			return background.Mode{}, err
		}
		if _, err := catalog.Lookup(mode.WallpaperID); err != nil {
			return background.Mode{}, err
		}
	}

	if err := configMgr.SetBackground(string(mode.Kind), mode.WallpaperID); err != nil {
		return background.Mode{}, fmt.Errorf("failed to save config: %w", err)
	}
	return mode, nil
}
