package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/lazypower/attention/internal/store"
)

// Set via -ldflags at build time. Left unset, they fall back to the module
// build info recorded by `go install`.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		v, commit := buildVersion()
		fmt.Fprintf(cmd.OutOrStdout(), "attention %s (commit: %s, built: %s, schema: v%d)\n",
			v, commit, BuildDate, store.LatestSchemaVersion())
	},
}

// VersionString is the version reported by the API health check.
func VersionString() string {
	v, commit := buildVersion()
	return fmt.Sprintf("%s (%s)", v, commit)
}

func buildVersion() (string, string) {
	info, _ := debug.ReadBuildInfo()
	return versionFrom(info)
}

func versionFrom(info *debug.BuildInfo) (string, string) {
	v, commit := Version, Commit
	if info == nil {
		return v, commit
	}
	if v == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		v = info.Main.Version
	}
	if commit == "unknown" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				commit = s.Value
				if len(commit) > 12 {
					commit = commit[:12]
				}
			}
		}
	}
	return v, commit
}
