// Package manifest loads hook manifests: YAML files that declare which
// native functions to hook, in what order, and what CEL rules rewrite
// their arguments and return values.
//
//	hooks:
//	  - owner: godmode
//	    target: {type: libgame.so, name: Player_TakeDamage, params: [int32]}
//	    priority: 100
//	    follow: [logger]
//	    when: "args[1] > 100u"
//	    args: {1: "0u"}
package manifest

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/hookchain/internal/safe"
)

// MaxSize bounds manifest files.
const MaxSize = 1 << 20

// Manifest is a parsed hook manifest.
type Manifest struct {
	Hooks []Hook `yaml:"hooks"`
}

// TargetRef references a native member.
type TargetRef struct {
	// Type is the owner type identity: a library path, package or type.
	Type     string   `yaml:"type"`
	Name     string   `yaml:"name"`
	Params   []string `yaml:"params,omitempty"`
	Generics []string `yaml:"generics,omitempty"`
}

// String renders the reference the way resolved targets are named.
func (r TargetRef) String() string {
	var sb strings.Builder
	if r.Type != "" {
		sb.WriteString(r.Type)
		sb.WriteByte('.')
	}
	sb.WriteString(r.Name)
	if len(r.Generics) > 0 {
		sb.WriteString("<" + strings.Join(r.Generics, ", ") + ">")
	}
	sb.WriteString("(" + strings.Join(r.Params, ", ") + ")")
	return sb.String()
}

// Hook is one registration.
type Hook struct {
	Owner    string    `yaml:"owner"`
	Target   TargetRef `yaml:"target"`
	Priority int       `yaml:"priority"`
	Precede  []string  `yaml:"precede,omitempty"`
	Follow   []string  `yaml:"follow,omitempty"`

	// When gates the rule; the hook does nothing when it evaluates false.
	When string `yaml:"when,omitempty"`
	// Args maps argument word positions to replacement expressions.
	Args map[int]string `yaml:"args,omitempty"`
	// Return replaces the return value.
	Return string `yaml:"return,omitempty"`
	// Detached keeps the registration without installing the redirection.
	Detached bool `yaml:"detached,omitempty"`
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := safe.ReadFile(path, &safe.ReadOptions{MaxSize: MaxSize})
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks every hook and returns all problems found.
func (m *Manifest) Validate() error {
	var errs []error
	for i, h := range m.Hooks {
		where := fmt.Sprintf("hooks[%d]", i)
		if h.Owner != "" {
			where += " (" + h.Owner + ")"
		}
		if h.Owner == "" {
			errs = append(errs, fmt.Errorf("%s: owner is required", where))
		}
		if h.Target.Name == "" {
			errs = append(errs, fmt.Errorf("%s: target.name is required", where))
		}
		for _, p := range h.Precede {
			for _, f := range h.Follow {
				if p == f {
					errs = append(errs, fmt.Errorf("%s: %q listed in both precede and follow", where, p))
				}
			}
		}
		for idx := range h.Args {
			if idx < 0 || idx > len(h.Target.Params)+1 {
				errs = append(errs, fmt.Errorf("%s: argument index %d out of range [0, %d]", where, idx, len(h.Target.Params)+1))
			}
		}
	}
	return errors.Join(errs...)
}
