package image

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jbweber/thinbox/internal/checksum"
	"github.com/jbweber/thinbox/internal/disk"
)

func TestListCatalog_Empty(t *testing.T) {
	m, _, _ := newTestManager(t)

	images, err := m.ListCatalog()
	if err != nil {
		t.Fatalf("ListCatalog() error = %v", err)
	}
	if images == nil || len(images) != 0 {
		t.Errorf("ListCatalog() = %#v, want empty non-nil slice", images)
	}
}

func TestListCatalog(t *testing.T) {
	m, cfg, _ := newTestManager(t)
	writeImage(t, cfg, "b.qcow2", "hello")
	writeImage(t, cfg, "a.qcow2", "hi")
	writeImage(t, cfg, "c.qcow2.part", "partial")
	if err := os.Mkdir(filepath.Join(cfg.BaseDir, "subdir"), 0755); err != nil {
		t.Fatal(err)
	}

	writeManifest(t, cfg, "b.qcow2", "SHA256SUM", "SHA256SUM\n"+helloSHA256+"  b.qcow2\n")
	writeManifest(t, cfg, "b.qcow2", "MD5SUM", "MD5SUM\n"+helloMD5+"  b.qcow2\n")
	if _, err := m.VerifyAll(context.Background(), "b.qcow2"); err != nil {
		t.Fatalf("VerifyAll() error = %v", err)
	}

	images, err := m.ListCatalog()
	if err != nil {
		t.Fatalf("ListCatalog() error = %v", err)
	}

	want := []BaseImage{
		{Name: "a.qcow2", SizeBytes: 2},
		{Name: "b.qcow2", SizeBytes: 5, VerifiedAlgorithms: []checksum.Algorithm{checksum.MD5, checksum.SHA256}},
	}
	if diff := cmp.Diff(want, images); diff != "" {
		t.Errorf("ListCatalog() mismatch (-want +got):\n%s", diff)
	}
}

func TestInspect(t *testing.T) {
	m, cfg, _ := newTestManager(t)
	qcow := append([]byte{0x51, 0x46, 0x49, 0xfb}, make([]byte, 508)...)
	if err := os.WriteFile(filepath.Join(cfg.BaseDir, "x.qcow2"), qcow, 0644); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, cfg, "x.qcow2", "SHA1SUM", "SHA1SUM\nabc  x.qcow2\n")

	info, err := m.Inspect("x.qcow2")
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.Format != disk.FormatQCOW2 {
		t.Errorf("Format = %q, want qcow2", info.Format)
	}
	if info.SizeBytes != 512 {
		t.Errorf("SizeBytes = %d, want 512", info.SizeBytes)
	}
	if diff := cmp.Diff([]checksum.Algorithm{checksum.SHA1}, info.Manifests); diff != "" {
		t.Errorf("Manifests mismatch (-want +got):\n%s", diff)
	}

	if _, err := m.Inspect("absent.qcow2"); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("Inspect(absent) error = %v, want ErrImageNotFound", err)
	}
}

func TestRemoveImage(t *testing.T) {
	m, cfg, _ := newTestManager(t)
	writeImage(t, cfg, "x.qcow2", "hello")
	writeImage(t, cfg, "y.qcow2", "hello")
	writeManifest(t, cfg, "x.qcow2", "SHA256SUM", "SHA256SUM\n"+helloSHA256+"  x.qcow2\n")
	if _, err := m.Verify(context.Background(), "x.qcow2", checksum.SHA256); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if err := m.RemoveImage("x.qcow2"); err != nil {
		t.Fatalf("RemoveImage() error = %v", err)
	}

	images, err := m.ListCatalog()
	if err != nil {
		t.Fatalf("ListCatalog() error = %v", err)
	}
	for _, img := range images {
		if img.Name == "x.qcow2" {
			t.Error("x.qcow2 still listed after removal")
		}
	}
	if len(images) != 1 {
		t.Errorf("ListCatalog() = %v, want only y.qcow2", images)
	}

	for _, p := range []string{
		filepath.Join(cfg.HashDir, "x.qcow2.SHA256SUM"),
		filepath.Join(cfg.HashDir, "x.qcow2.SHA256SUM.OK"),
	} {
		if fileExists(p) {
			t.Errorf("%s left behind", p)
		}
	}
}

func TestRemoveImage_NotFoundIsWarning(t *testing.T) {
	m, cfg, _ := newTestManager(t)
	// Orphaned marker without an image
	writeManifest(t, cfg, "gone.qcow2", "SHA256SUM.OK", "SHA256SUM (gone.qcow2)\n"+helloSHA256+"  gone.qcow2\n")

	err := m.RemoveImage("gone.qcow2")
	if !errors.Is(err, ErrImageNotFound) {
		t.Fatalf("RemoveImage() error = %v, want ErrImageNotFound", err)
	}
	if !IsWarning(err) {
		t.Errorf("IsWarning(%v) = false, want true", err)
	}
	if fileExists(filepath.Join(cfg.HashDir, "gone.qcow2.SHA256SUM.OK")) {
		t.Error("orphaned marker not cleaned up")
	}
}

func TestRemoveAllImages(t *testing.T) {
	m, cfg, _ := newTestManager(t)
	writeImage(t, cfg, "a.qcow2", "a")
	writeImage(t, cfg, "b.qcow2", "b")

	if err := m.RemoveAllImages(); err != nil {
		t.Fatalf("RemoveAllImages() error = %v", err)
	}

	images, err := m.ListCatalog()
	if err != nil {
		t.Fatalf("ListCatalog() error = %v", err)
	}
	if len(images) != 0 {
		t.Errorf("ListCatalog() = %v after RemoveAllImages", images)
	}
}

func TestRemoveImage_PartialDownloads(t *testing.T) {
	tests := []struct {
		name      string
		withImage bool
	}{
		{"alongside cached image", true},
		{"interrupted first download", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, cfg, _ := newTestManager(t)
			if tt.withImage {
				writeImage(t, cfg, "x.qcow2", "hello")
			}
			writeImage(t, cfg, "x.qcow2.part", "hel")
			writeManifest(t, cfg, "x.qcow2", "SHA256SUM.part", "SHA256SUM\n")
			writeManifest(t, cfg, "x.qcow2", "MD5SUM.part", "MD5SUM\n")

			err := m.RemoveImage("x.qcow2")
			if tt.withImage && err != nil {
				t.Fatalf("RemoveImage() error = %v", err)
			}
			if !tt.withImage && !IsWarning(err) {
				t.Fatalf("RemoveImage() error = %v, want a warning", err)
			}

			for _, p := range []string{
				filepath.Join(cfg.BaseDir, "x.qcow2.part"),
				filepath.Join(cfg.HashDir, "x.qcow2.SHA256SUM.part"),
				filepath.Join(cfg.HashDir, "x.qcow2.MD5SUM.part"),
			} {
				if fileExists(p) {
					t.Errorf("%s left behind", p)
				}
			}
		})
	}
}

func TestRemoveAllImages_PartialDownloads(t *testing.T) {
	m, cfg, _ := newTestManager(t)
	writeImage(t, cfg, "a.qcow2", "a")
	writeImage(t, cfg, "b.qcow2.part", "b")
	writeManifest(t, cfg, "b.qcow2", "SHA1SUM.part", "SHA1SUM\n")

	if err := m.RemoveAllImages(); err != nil {
		t.Fatalf("RemoveAllImages() error = %v", err)
	}

	entries, err := os.ReadDir(cfg.BaseDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("base dir still holds %d entries", len(entries))
	}
	if fileExists(filepath.Join(cfg.HashDir, "b.qcow2.SHA1SUM.part")) {
		t.Error("partial manifest left behind")
	}
}

func TestIsWarning(t *testing.T) {
	warn := &Warning{Err: &NotFoundError{Name: "x"}}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"warning", warn, true},
		{"wrapped warning", errors.Join(warn, warn), true},
		{"mixed", errors.Join(warn, errors.New("boom")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsWarning(tt.err); got != tt.want {
				t.Errorf("IsWarning() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewManager_FileInTheWay(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.BaseDir, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("NewManager() succeeded with a file at the base dir path")
	}
}
