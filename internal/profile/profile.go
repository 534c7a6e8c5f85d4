// Package profile stores named database connection profiles in the user
// config directory. The file holds connection strings, so it is written
// 0600 inside a 0700 directory.
package profile

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const storeFileName = "profiles.yaml"

// configDirFunc is swapped in tests to point the store at a temp dir.
var configDirFunc = configDir

type Profile struct {
	Name    string `yaml:"name"`
	ConnStr string `yaml:"conn_str"`

	// ConnectTimeout bounds connection establishment, in seconds.
	// Zero means no explicit bound.
	ConnectTimeout int `yaml:"connect_timeout,omitempty"`
}

type store struct {
	Default  string    `yaml:"default,omitempty"`
	Profiles []Profile `yaml:"profiles"`
}

// Resolve looks up a profile by name.
func Resolve(name string) (Profile, error) {
	s, err := load()
	if err != nil {
		if os.IsNotExist(err) {
			return Profile{}, fmt.Errorf("no profiles configured")
		}
		return Profile{}, err
	}
	for _, p := range s.Profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("profile %q not found", name)
}

// ResolveConnection picks the connection to use: an explicit connection
// string wins, then a named profile, then the stored default. An empty
// result with nil error means no connection is configured; the caller
// decides whether that is an error.
func ResolveConnection(db, profileName string) (Profile, error) {
	if db != "" {
		return Profile{ConnStr: db}, nil
	}
	if profileName != "" {
		return Resolve(profileName)
	}

	s, err := load()
	if err != nil {
		if os.IsNotExist(err) {
			return Profile{}, nil
		}
		return Profile{}, err
	}
	if s.Default != "" {
		return Resolve(s.Default)
	}
	return Profile{}, nil
}

func List() ([]Profile, error) {
	s, err := load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return s.Profiles, nil
}

// DefaultName returns the stored default profile name, empty when unset.
func DefaultName() (string, error) {
	s, err := load()
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return s.Default, nil
}

// Add creates or updates a profile in place.
func Add(p Profile) error {
	s, err := load()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if s == nil {
		s = &store{}
	}

	for i, existing := range s.Profiles {
		if existing.Name == p.Name {
			s.Profiles[i] = p
			return save(s)
		}
	}
	s.Profiles = append(s.Profiles, p)
	return save(s)
}

func Remove(name string) error {
	s, err := load()
	if err != nil {
		return err
	}

	for i, p := range s.Profiles {
		if p.Name == name {
			s.Profiles = append(s.Profiles[:i], s.Profiles[i+1:]...)
			if s.Default == name {
				s.Default = ""
			}
			return save(s)
		}
	}
	return fmt.Errorf("profile %q not found", name)
}

func SetDefault(name string) error {
	s, err := load()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if s == nil {
		s = &store{}
	}

	found := false
	for _, p := range s.Profiles {
		if p.Name == name {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("profile %q not found", name)
	}

	s.Default = name
	return save(s)
}

func ClearDefault() error {
	s, err := load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	s.Default = ""
	return save(s)
}

func load() (*store, error) {
	path, err := storePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s store
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing profiles %s: %w", path, err)
	}
	return &s, nil
}

func save(s *store) error {
	dir, err := configDirFunc()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	path := filepath.Join(dir, storeFileName)
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling profiles: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing profiles %s: %w", path, err)
	}
	return nil
}

func configDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("finding config directory: %w", err)
	}
	return filepath.Join(base, "pglens"), nil
}

func storePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, storeFileName), nil
}
