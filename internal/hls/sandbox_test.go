package hls

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestResolve(t *testing.T) {
	root := filepath.FromSlash("/srv/public/hls")

	got, err := Resolve(root, "cam1_1/index.m3u8")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := filepath.Join(root, "cam1_1", "index.m3u8"); got != want {
		t.Errorf("got %q want %q", got, want)
	}

	got, err = Resolve(root, "cam1_1/../cam2_1/index3.ts")
	if err != nil {
		t.Fatalf("Resolve with inner dot segment: %v", err)
	}
	if want := filepath.Join(root, "cam2_1", "index3.ts"); got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestResolve_rejects_escape(t *testing.T) {
	root := filepath.FromSlash("/srv/public/hls")
	for _, p := range []string{
		"../../etc/passwd",
		"../hls-other/secret",
		"cam1_1/../../x",
		"",
		".",
		"cam1_1/..",
		"cam1_1/\x00.ts",
	} {
		if _, err := Resolve(root, p); !errors.Is(err, ErrForbiddenPath) {
			t.Errorf("Resolve(%q): expected ErrForbiddenPath, got %v", p, err)
		}
	}
}
