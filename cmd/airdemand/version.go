package main

import (
	"fmt"
	rdebug "runtime/debug"

	"github.com/spf13/cobra"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the airdemand build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("airdemand %s%s\n", version, revision())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// revision returns " (<short commit>)" when the binary carries VCS info.
func revision() string {
	info, ok := rdebug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return " (" + s.Value[:7] + ")"
		}
	}
	return ""
}
