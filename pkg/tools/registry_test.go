package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func validManifest(name string, permissions ...string) *Manifest {
	return &Manifest{
		Name:        name,
		Version:     "1.0.0",
		Entrypoint:  name + ".py",
		Permissions: permissions,
	}
}

func TestRegisterAndGet(t *testing.T) {
	registry, err := NewRegistry(t.TempDir(), []string{"fs.read"})
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	if err := registry.Register(validManifest("formatter", "fs.read")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	got := registry.Get("formatter")
	if got == nil {
		t.Fatal("expected manifest after registration")
	}
	if got.Version != "1.0.0" {
		t.Errorf("version = %s", got.Version)
	}
	if registry.Get("unknown") != nil {
		t.Error("expected nil for unknown tool")
	}
}

func TestRegisterRejectsUnauthorizedPermissions(t *testing.T) {
	root := t.TempDir()
	registry, err := NewRegistry(root, []string{"fs.read"})
	if err != nil {
		t.Fatal(err)
	}

	err = registry.Register(validManifest("netcat", "net.raw"))
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("error = %v, want ErrPermissionDenied", err)
	}

	// Rejection must leave no partial state.
	if registry.Get("netcat") != nil {
		t.Error("rejected tool must not be registered")
	}
	if _, statErr := os.Stat(filepath.Join(root, "netcat")); !os.IsNotExist(statErr) {
		t.Error("rejected tool must not leave files on disk")
	}
}

func TestRegisterRejectsIncompleteManifest(t *testing.T) {
	registry, err := NewRegistry(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}

	for _, m := range []*Manifest{
		{Version: "1.0.0", Entrypoint: "x.py"},
		{Name: "x", Entrypoint: "x.py"},
		{Name: "x", Version: "1.0.0"},
	} {
		if err := registry.Register(m); err == nil {
			t.Errorf("expected validation error for %+v", m)
		}
	}
}

func TestLoadExistingSkipsInvalid(t *testing.T) {
	root := t.TempDir()

	// One valid tool.
	first, err := NewRegistry(root, []string{"fs.read"})
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Register(validManifest("good", "fs.read")); err != nil {
		t.Fatal(err)
	}

	// One corrupt manifest alongside it.
	badDir := filepath.Join(root, "bad")
	if err := os.MkdirAll(badDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(badDir, ManifestFileName), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewRegistry(root, []string{"fs.read"})
	if err != nil {
		t.Fatalf("reload must not fail on invalid manifests: %v", err)
	}
	if reloaded.Len() != 1 {
		t.Errorf("len = %d, want 1", reloaded.Len())
	}
	if reloaded.Get("good") == nil {
		t.Error("valid manifest should survive reload")
	}
}

func TestParseManifestRejectsUnknownFields(t *testing.T) {
	_, err := ParseManifest([]byte(`{"name":"x","version":"1","entrypoint":"x.py","extra":true}`))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestCapabilityBindAndInvoke(t *testing.T) {
	registry, err := NewRegistry(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := registry.Register(validManifest("echo")); err != nil {
		t.Fatal(err)
	}

	caps := NewCapabilityMap(registry)
	err = caps.Bind("echo", func(_ context.Context, args map[string]any) (map[string]any, error) {
		return map[string]any{"echo": args["msg"]}, nil
	})
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	result, err := caps.Invoke(context.Background(), "echo", map[string]any{"msg": "hi"})
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if result["echo"] != "hi" {
		t.Errorf("result = %v", result)
	}
}

func TestCapabilityToolNotFound(t *testing.T) {
	registry, err := NewRegistry(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	caps := NewCapabilityMap(registry)

	if err := caps.Bind("ghost", func(context.Context, map[string]any) (map[string]any, error) { return nil, nil }); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("bind error = %v, want ErrToolNotFound", err)
	}
	if _, err := caps.Invoke(context.Background(), "ghost", nil); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("invoke error = %v, want ErrToolNotFound", err)
	}
}

func TestCapabilityPanicIsCaptured(t *testing.T) {
	registry, err := NewRegistry(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := registry.Register(validManifest("boom")); err != nil {
		t.Fatal(err)
	}

	caps := NewCapabilityMap(registry)
	if err := caps.Bind("boom", func(context.Context, map[string]any) (map[string]any, error) {
		panic("kaboom")
	}); err != nil {
		t.Fatal(err)
	}

	_, err = caps.Invoke(context.Background(), "boom", nil)
	if err == nil {
		t.Fatal("expected error from panicking tool")
	}
}
