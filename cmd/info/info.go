package info

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xfrag/webrtc/internal/buildinfo"
	"github.com/xfrag/webrtc/internal/session"
	"github.com/xfrag/webrtc/internal/sysinfo"
)

// Command creates the info command.
func Command(build *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print build, host and backend information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, errs := sysinfo.Collect(cmd.Context())
			for _, err := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			writeInfo(cmd.OutOrStdout(), build, &info)
			return nil
		},
	}
}

func writeInfo(w io.Writer, build *buildinfo.Context, info *sysinfo.Info) {
	fmt.Fprintf(w, "Version:     %s (built %s)\n", build.Version(), build.BuildDate())
	fmt.Fprintf(w, "Go:          %s %s/%s\n", info.GoVersion, info.OS, info.Architecture)
	if info.Platform != "" {
		fmt.Fprintf(w, "Platform:    %s %s, kernel %s\n", info.Platform, info.PlatformVer, info.KernelVersion)
	}
	fmt.Fprintf(w, "CPU:         %s\n", info.CPU.BrandName)
	fmt.Fprintf(w, "Cores:       %d physical, %d logical\n", info.CPU.PhysicalCores, info.CPU.LogicalCores)
	if len(info.CPU.SIMD) > 0 {
		fmt.Fprintf(w, "SIMD:        %s\n", strings.Join(info.CPU.SIMD, " "))
	}
	if info.MemoryTotal > 0 {
		fmt.Fprintf(w, "Memory:      %d MiB total, %d MiB available (%.1f%% used)\n",
			info.MemoryTotal>>20, info.MemoryAvailable>>20, info.MemoryUsedPct)
	}
	fmt.Fprintf(w, "Load:        %.2f %.2f %.2f\n", info.Load1, info.Load5, info.Load15)
	fmt.Fprintf(w, "Backends:    %s\n", strings.Join(session.Backends, ", "))
}
