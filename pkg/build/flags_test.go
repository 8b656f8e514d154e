// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"strings"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origFlags   Info
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	if buildFlags != nil {
		origFlags = *buildFlags
	}

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	if buildFlags != nil {
		*buildFlags = origFlags
	}

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrMsg  string
	}{
		{"Missing BuildName", "", "2025-04-13", "abcdef123", "v1.0.0", "BuildName is required"},
		{"Missing BuildTime", "ppgbpm", "", "abcdef123", "v1.0.0", "BuildTime is required"},
		{"Missing BuildCommit", "ppgbpm", "2025-04-13", "", "v1.0.0", "BuildCommit is required"},
		{"Missing BuildVersion", "ppgbpm", "2025-04-13", "abcdef123", "", "BuildVersion is required"},
		{"Success Case", "ppgbpm", "2025-04-13", "abcdef123", "v1.0.0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			*buildFlags = origFlags

			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if tt.wantErrMsg != "" {
				if err == nil {
					t.Fatalf("Initialize() expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.wantErrMsg) {
					t.Errorf("Initialize() error = %v, want %v", err, tt.wantErrMsg)
				}
				return
			}

			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}
			if buildFlags.Version != tt.buildVer || buildFlags.Commit != tt.buildCommit {
				t.Errorf("buildFlags = %+v", *buildFlags)
			}
		})
	}
}

func TestInitializeKeepsDefaults(t *testing.T) {
	*buildFlags = origFlags
	buildName, buildTime, buildCommit, buildVersion = "", "", "", "1.2.3"

	err := Initialize()
	if err == nil {
		t.Fatal("expected error for missing flags")
	}
	for _, flag := range []string{"BuildName", "BuildTime", "BuildCommit"} {
		if !strings.Contains(err.Error(), flag) {
			t.Errorf("error %q does not name %s", err, flag)
		}
	}
	if buildFlags.Name != origFlags.Name || buildFlags.Version != "1.2.3" {
		t.Errorf("buildFlags = %+v", *buildFlags)
	}
}

func TestInfoString(t *testing.T) {
	info := Info{Name: "ppgbpm", Version: "v1.0.0", Commit: "abcdef1", Time: "2025-04-13"}
	if got, want := info.String(), "ppgbpm v1.0.0 (commit abcdef1, built 2025-04-13)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
