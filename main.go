package main

import (
	"context"
	"os"

	"github.com/xfrag/webrtc/cmd"
	"github.com/xfrag/webrtc/internal/buildinfo"
	"github.com/xfrag/webrtc/internal/conf"
	"github.com/xfrag/webrtc/internal/logging"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   string
	buildDate string
)

func main() {
	logging.Init()

	settings := &conf.Settings{}
	rootCmd := cmd.RootCommand(settings, buildinfo.NewContext(version, buildDate))
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logging.HumanReadable().Error("command failed", "error", err)
		os.Exit(1)
	}
}
