package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	configcmd "github.com/xfrag/webrtc/cmd/config"
	"github.com/xfrag/webrtc/cmd/info"
	"github.com/xfrag/webrtc/cmd/run"
	"github.com/xfrag/webrtc/internal/buildinfo"
	"github.com/xfrag/webrtc/internal/conf"
	"github.com/xfrag/webrtc/internal/logging"
)

// RootCommand creates and returns the root command. settings is filled from
// the configuration file, the environment and the flags before a subcommand
// that needs it runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "webrtc-adm",
		Short:         "WebRTC audio device adapter",
		Version:       build.Version(),
		SilenceUsage:  true,
		SilenceErrors: true, // main logs the error
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to the configuration file")
	if err := setupFlags(rootCmd); err != nil {
		panic(err)
	}

	infoCmd := info.Command(build)
	configCmd := configcmd.Command(settings)
	rootCmd.AddCommand(run.Command(settings, build), infoCmd, configCmd)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// info and config init must work without a readable configuration
		if cmd == infoCmd || (cmd.Parent() == configCmd && cmd.Name() == "init") {
			return nil
		}

		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded

		level := logging.ParseLevel(settings.Main.Log.Level)
		if settings.Debug && level > slog.LevelDebug {
			level = slog.LevelDebug
		}
		logging.SetLevel(level)
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command) error {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().String("loglevel", "", "Log level: trace, debug, info, warn or error")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("main.log.level", rootCmd.PersistentFlags().Lookup("loglevel")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
