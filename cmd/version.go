package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/killallgit/sensitive-data-api/api/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build and runtime information",
	Long: `Print the classifier's version, the commit and build date it was
stamped with at link time, and the Go runtime it runs on.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if short, _ := cmd.Flags().GetBool("short"); short {
			fmt.Fprintf(out, "v%s\n", version.Version)
			return
		}

		rule := strings.Repeat("-", 40)
		fmt.Fprintf(out, "Sensitive Data Classifier API\n%s\n", rule)
		for _, row := range [][2]string{
			{"Version", "v" + version.Version},
			{"Git Commit", version.Commit},
			{"Build Time", version.BuildDate},
			{"Go Version", runtime.Version()},
			{"OS/Arch", runtime.GOOS + "/" + runtime.GOARCH},
		} {
			fmt.Fprintf(out, "%-13s %s\n", row[0]+":", row[1])
		}
		fmt.Fprintln(out, rule)
	},
}

func init() {
	versionCmd.Flags().BoolP("short", "s", false, "print only the version number")
	rootCmd.AddCommand(versionCmd)
}
