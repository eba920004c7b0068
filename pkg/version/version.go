// Package version derives the build's identity, reported on the health
// endpoint and sent as the client name in MCP handshakes.
package version

import "runtime/debug"

// AppName identifies this server in version strings and handshakes.
const AppName = "agentworld"

// gitCommitOverride is injected with -ldflags for builds where no .git
// directory is available, e.g. container image builds from a source tarball.
var gitCommitOverride string

// GitCommit is the short commit hash the binary was built from. Resolution
// order: the -ldflags override, the vcs.revision stamped by the toolchain,
// then "dev" (`go test`, builds outside a checkout).
var GitCommit = resolveCommit()

func resolveCommit() string {
	if gitCommitOverride != "" {
		return shorten(gitCommitOverride)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return shorten(s.Value)
			}
		}
	}
	return "dev"
}

func shorten(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "agentworld/<commit>", suitable for user-agent strings.
func Full() string {
	return AppName + "/" + GitCommit
}
