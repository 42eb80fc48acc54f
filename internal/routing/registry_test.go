package routing

import (
	"strings"
	"testing"
)

func TestDefaultVersionIsCanonical(t *testing.T) {
	if got := DefaultVersion(); got != Durian06Version {
		t.Errorf("DefaultVersion = %q, want %q", got, Durian06Version)
	}
}

func TestAvailableVersions(t *testing.T) {
	versions := AvailableVersions()
	want := map[string]bool{Durian00Version: true, Durian05Version: true, Durian06Version: true}
	for _, v := range versions {
		delete(want, v)
	}
	if len(want) != 0 {
		t.Errorf("missing versions %v in %v", want, versions)
	}
}

func TestNewRouterDefaultsWhenEmpty(t *testing.T) {
	router, err := NewRouter("", nil, Deps{Store: engineFixture(t)})
	if err != nil {
		t.Fatal(err)
	}
	if router.Version() != Durian06Version {
		t.Errorf("Version = %q, want default", router.Version())
	}
}

func TestNewRouterUnknownEngine(t *testing.T) {
	_, err := NewRouter("durian-9.9", nil, Deps{Store: engineFixture(t)})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "available:") {
		t.Errorf("error should list available versions: %v", err)
	}
	if !strings.Contains(err.Error(), Durian06Version) {
		t.Errorf("error should name %s: %v", Durian06Version, err)
	}
}

func TestNewRouterUnknownFeature(t *testing.T) {
	_, err := NewRouter(Durian06Version, map[string]bool{"warp_drive": true}, Deps{Store: engineFixture(t)})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "warp_drive") || !strings.Contains(err.Error(), "accepted:") {
		t.Errorf("error should name the flag and list accepted ones: %v", err)
	}
}

func TestNewRouterFeatureOverride(t *testing.T) {
	router, err := NewRouter(Durian06Version, map[string]bool{FeatApprovalSuppression: false}, Deps{Store: engineFixture(t)})
	if err != nil {
		t.Fatal(err)
	}
	result := router.Route("Thanks!", nil, 5)
	if result.Analysis["suppressed"] == true {
		t.Error("suppression disabled via feature flag should not fire")
	}
}

func TestRegisterRejectsMalformedVersion(t *testing.T) {
	tests := []string{"durian", "0.6.2", "durian-a.b", "durian-1.2.3.4", "mango-1.0"}
	for _, version := range tests {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Register(%q) should panic", version)
				}
			}()
			Register(version, "bad", nil, func(Deps, map[string]bool) Router { return nil })
		}()
	}
}

func TestRegisterAcceptsDevSuffix(t *testing.T) {
	version := "durian-7.0-dev"
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Register(%q) panicked: %v", version, r)
		}
	}()
	Register(version, "scratch engine", nil, func(deps Deps, _ map[string]bool) Router {
		return &durian00{deps: deps}
	})

	found := false
	for _, v := range AvailableVersions() {
		if v == version {
			found = true
		}
	}
	if !found {
		t.Error("dev version not listed")
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("duplicate registration should panic")
		}
	}()
	Register(Durian06Version, "dup", nil, func(Deps, map[string]bool) Router { return nil })
}
