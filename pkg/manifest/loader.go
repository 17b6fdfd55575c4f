package manifest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/stracadev/straca/pkg/semver"
)

const logPrefix = "manifest:loader"

// EnvFile names the environment variable holding a manifest path.
const EnvFile = "MANIFEST_FILE"

// Load reads the first readable and parseable manifest. Explicit paths are
// tried first, then MANIFEST_FILE, then config/manifest.json and manifest.json.
// Fields missing from the file are filled from Default; when no file is found
// Default itself is returned.
func Load(paths ...string) *Manifest {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/manifest.json", "manifest.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse manifest %s: %v", logPrefix, p, err))
			continue
		}
		if m.Version != "" {
			if _, err := semver.ValidateVersion(m.Version); err != nil {
				slog.Warn(fmt.Sprintf("%s - Manifest %s has a non-semver version %q", logPrefix, p, m.Version))
			}
		}

		slog.Info(fmt.Sprintf("%s - Loaded manifest from %s", logPrefix, p))
		return Merge(Default(), &m)
	}

	slog.Info(fmt.Sprintf("%s - Using default manifest", logPrefix))
	return Default()
}

// Default returns the built-in manifest.
func Default() *Manifest {
	return &Manifest{
		Author:    "straca",
		ShortName: "straca",
		AppID:     "straca",
		Name:      "Straca",
		Version:   "1.0.0",
		Icons:     []Icon{},
	}
}

// Merge returns base overridden by every non-empty field of override.
func Merge(base, override *Manifest) *Manifest {
	merged := *base
	if override.Author != "" {
		merged.Author = override.Author
	}
	if override.ShortName != "" {
		merged.ShortName = override.ShortName
	}
	if override.AppID != "" {
		merged.AppID = override.AppID
	}
	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	if len(override.Icons) > 0 {
		merged.Icons = append([]Icon(nil), override.Icons...)
	}
	return &merged
}
