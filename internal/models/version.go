package models

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-version"
)

// Version is a comparable package version. The zero value is an unset
// version that sorts before every parsed one.
type Version struct {
	v *version.Version
}

// ParseVersion parses a dotted version string such as "1.2.3" or "4.1.0.20230815"
func ParseVersion(s string) (Version, error) {
	v, err := version.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return Version{v: v}, nil
}

// MustParseVersion is like ParseVersion but panics on error
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether the version is unset
func (v Version) IsZero() bool {
	return v.v == nil
}

// Compare returns -1, 0 or 1 depending on whether v is lower than, equal to
// or greater than o
func (v Version) Compare(o Version) int {
	switch {
	case v.v == nil && o.v == nil:
		return 0
	case v.v == nil:
		return -1
	case o.v == nil:
		return 1
	}
	return v.v.Compare(o.v)
}

// String returns the version as originally written
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.Original()
}

// MarshalJSON implements json.Marshaler
func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*v = Version{}
		return nil
	}
	parsed, err := ParseVersion(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
