package internal

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

var (
	Branch = "main"
	// {x-release-please-start-version}
	Version = "0.3.0"
	// {x-release-please-end}
	Prerelease = ""
	Metadata   = "dev"
	Commit     = ""
	Date       = ""
)

// FullVersion returns the full semver version string. The patch version is
// incremented on dev builds because the release tooling keeps Version at the
// last released version, not the upcoming one.
func FullVersion() string {
	v, err := semver.NewVersion(Version)
	if err != nil {
		panic(fmt.Sprintf("invalid version %v: %v", Version, err))
	}

	if Metadata == "dev" {
		*v = v.IncPatch()
	}

	nv, err := v.SetPrerelease(Prerelease)
	if err != nil {
		panic(fmt.Sprintf("invalid prerelease %v: %v", Prerelease, err))
	}

	nv, err = nv.SetMetadata(Metadata)
	if err != nil {
		panic(fmt.Sprintf("invalid metadata %v: %v", Metadata, err))
	}

	return nv.String()
}
