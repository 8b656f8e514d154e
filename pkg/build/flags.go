// SPDX-License-Identifier: MIT
//
// Package build provides functionality to manage and retrieve build information
// for the ppgbpm binary. Metadata such as the application name, build timestamp,
// Git commit hash and semantic version is embedded at compile time using linker
// flags, for example:
//
//	go build -ldflags "-X ppgbpm/pkg/build.buildVersion=0.3.0 -X ppgbpm/pkg/build.buildCommit=$(git rev-parse --short HEAD)"
package build

import (
	"errors"
	"fmt"
)

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String formats the information for the version command.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Package-level variables for build information. These are populated by -ldflags
// during compilation. Development builds keep the defaults in buildFlags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &Info{
		Name:        "ppgbpm",
		Description: "Heart rate estimation from a PPG sensor",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// Initialize copies the ldflags variables that were set into the build
// information. It returns an error naming every flag that was not set; the
// defaults remain in place for those, so a development build can continue.
func Initialize() error {
	var errs []error
	set := func(name, value string, dst *string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
			return
		}
		*dst = value
	}

	set("BuildName", buildName, &buildFlags.Name)
	set("BuildTime", buildTime, &buildFlags.Time)
	set("BuildCommit", buildCommit, &buildFlags.Commit)
	set("BuildVersion", buildVersion, &buildFlags.Version)

	return errors.Join(errs...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	return buildFlags
}
