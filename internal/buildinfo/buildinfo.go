// Package buildinfo holds build-time metadata injected via -ldflags.
package buildinfo

// Version is the semantic version or tag for this build.
// Inject via: -X github.com/garyellow/kmutt-form-bot/internal/buildinfo.Version=...
var Version = ""

// Commit is the git commit SHA for this build.
// Inject via: -X github.com/garyellow/kmutt-form-bot/internal/buildinfo.Commit=...
var Commit = ""

// Release names the build for error tracking and /readyz: the version when
// set, else a short commit, else "dev".
func Release() string {
	switch {
	case Version != "":
		return Version
	case len(Commit) > 7:
		return Commit[:7]
	case Commit != "":
		return Commit
	}
	return "dev"
}
