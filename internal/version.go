package internal

// set via -ldflags at release time
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func FullVersion() string {
	if Version == "dev" && GitCommit != "unknown" {
		return "dev+" + GitCommit[:8]
	}
	return Version
}

func ShortVersion() string {
	return Version
}
