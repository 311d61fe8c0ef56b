package acpsdk

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Profile is a named agent launch configuration loaded from disk, so hosts
// can switch agents without recompiling.
type Profile struct {
	Executable string            `yaml:"executable"`
	Args       []string          `yaml:"args"`
	Env        map[string]string `yaml:"env"`
	Cwd        string            `yaml:"cwd"`
}

type profileFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// profilePaths returns the candidate config files, global first so the
// project-local file wins field by field.
func profilePaths() []string {
	var paths []string

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "acp-sdk", "profiles.yaml"))
	}

	paths = append(paths, ".acp-profiles.yaml")

	return paths
}

// LoadProfile looks up a named profile, merging the global config file
// under the user's config dir with a project-local .acp-profiles.yaml.
// Fields set in the project file override the global ones.
func LoadProfile(name string) (*Profile, error) {
	var (
		merged *Profile
		read   int
	)

	for _, path := range profilePaths() {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return nil, fmt.Errorf("read profile file %s: %w", path, err)
		}

		read++

		var file profileFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse profile file %s: %w", path, err)
		}

		p, ok := file.Profiles[name]
		if !ok {
			continue
		}

		if merged == nil {
			merged = &Profile{}
		}

		merged.overlay(&p)
	}

	if read == 0 {
		return nil, fmt.Errorf("no profile config file found")
	}

	if merged == nil {
		return nil, fmt.Errorf("profile %q not defined", name)
	}

	return merged, nil
}

func (p *Profile) overlay(other *Profile) {
	if other.Executable != "" {
		p.Executable = other.Executable
	}

	if len(other.Args) > 0 {
		p.Args = other.Args
	}

	if len(other.Env) > 0 {
		if p.Env == nil {
			p.Env = make(map[string]string, len(other.Env))
		}

		for k, v := range other.Env {
			p.Env[k] = v
		}
	}

	if other.Cwd != "" {
		p.Cwd = other.Cwd
	}
}
