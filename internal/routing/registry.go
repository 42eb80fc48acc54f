package routing

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// versionPattern is the discipline every engine version string follows.
var versionPattern = regexp.MustCompile(`^durian-\d+(\.\d+){0,2}(-dev)?$`)

// Constructor builds an engine instance with its resolved feature set.
type Constructor func(deps Deps, features map[string]bool) Router

type registration struct {
	version     string
	description string
	flags       []FeatureFlag
	ctor        Constructor
}

var (
	registryMu     sync.RWMutex
	registry       = make(map[string]*registration)
	registryOrder  []string
	defaultVersion string
)

// Register adds an engine to the process-wide registry. Called from
// engine init functions; panics on a malformed version or a duplicate,
// both of which are programming errors.
func Register(version, description string, flags []FeatureFlag, ctor Constructor) {
	if !versionPattern.MatchString(version) {
		panic(fmt.Sprintf("routing: invalid engine version %q", version))
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, dup := registry[version]; dup {
		panic(fmt.Sprintf("routing: engine %q registered twice", version))
	}
	registry[version] = &registration{
		version:     version,
		description: description,
		flags:       flags,
		ctor:        ctor,
	}
	registryOrder = append(registryOrder, version)
}

// SetDefaultVersion points the factory at an engine version when the
// config does not name one. Set by the active engine module at init.
func SetDefaultVersion(version string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	defaultVersion = version
}

// DefaultVersion returns the configured default, falling back to the
// first registered version.
func DefaultVersion() string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if defaultVersion != "" {
		return defaultVersion
	}
	if len(registryOrder) > 0 {
		return registryOrder[0]
	}
	return ""
}

// AvailableVersions lists registered engine versions, sorted.
func AvailableVersions() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	versions := make([]string, len(registryOrder))
	copy(versions, registryOrder)
	sort.Strings(versions)
	return versions
}

// NewRouter validates the requested engine and feature flags, then
// constructs the engine. An empty engine selects the registry default.
// Unknown engines and unknown features are configuration errors.
func NewRouter(engine string, features map[string]bool, deps Deps) (Router, error) {
	if engine == "" {
		engine = DefaultVersion()
	}
	if engine == "" {
		return nil, fmt.Errorf("no routing engines registered")
	}

	registryMu.RLock()
	reg, ok := registry[engine]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown routing engine %q (available: %s)",
			engine, strings.Join(AvailableVersions(), ", "))
	}

	if len(features) > 0 {
		known := make(map[string]bool, len(reg.flags))
		names := make([]string, 0, len(reg.flags))
		for _, f := range reg.flags {
			known[f.Name] = true
			names = append(names, f.Name)
		}
		for name := range features {
			if !known[name] {
				return nil, fmt.Errorf("engine %s does not accept feature %q (accepted: %s)",
					engine, name, strings.Join(names, ", "))
			}
		}
	}

	return reg.ctor(deps, features), nil
}
