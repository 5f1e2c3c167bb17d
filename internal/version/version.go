// Package version holds build information for the modscan CLI.
package version

import "github.com/fatih/color"

// These variables can be overridden at build time via -ldflags.
var (
	// Version is the semantic version of the CLI.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

var (
	nameColor    = color.New(color.FgCyan, color.Bold)
	versionColor = color.New(color.FgGreen, color.Bold)
	dimColor     = color.New(color.Faint)
)

// Info is the build information printed by `modscan version`.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
}

// Current returns the build information of this binary.
func Current() Info {
	return Info{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate}
}

// String renders the info on one line, colored when useColor is set.
func (i Info) String(useColor bool) string {
	for _, c := range []*color.Color{nameColor, versionColor, dimColor} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	out := nameColor.Sprint("modscan") + " " + versionColor.Sprint(i.Version)
	if i.GitCommit != "" {
		out += " " + dimColor.Sprintf("(%s)", i.GitCommit)
	}
	if i.BuildDate != "" {
		out += " " + dimColor.Sprintf("built %s", i.BuildDate)
	}
	return out
}
