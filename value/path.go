package value

import (
	"fmt"
	"strings"
)

// Path is a dotted field path into nested records, e.g. `profile.name`.
type Path []string

func ParsePath(path string) (Path, error) {
	if path == "" {
		return nil, fmt.Errorf("Empty path.")
	}
	parts := strings.Split(path, ".")
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("Path has an empty segment: %s", path)
		}
	}
	return Path(parts), nil
}

func RequirePath(path string) Path {
	p, err := ParsePath(path)
	if err != nil {
		panic(err)
	}
	return p
}

// Get projects the path out of `v`. Missing fields project to nil.
func (self Path) Get(v Value) Value {
	for _, key := range self {
		v = Get(v, key)
		if v == nil {
			return nil
		}
	}
	return v
}

func (self Path) String() string {
	return strings.Join(self, ".")
}

func GetPath(v Value, path string) Value {
	return RequirePath(path).Get(v)
}
