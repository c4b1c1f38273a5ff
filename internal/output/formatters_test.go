package output

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/thinbox/internal/checksum"
	"github.com/jbweber/thinbox/internal/disk"
	"github.com/jbweber/thinbox/internal/image"
	"github.com/jbweber/thinbox/internal/vm"
)

func testImages() []image.BaseImage {
	return []image.BaseImage{
		{Name: "hello.qcow2", SizeBytes: 5, VerifiedAlgorithms: []checksum.Algorithm{checksum.SHA256}},
		{Name: "rhel-guest-image-8.9.qcow2", SizeBytes: 2_000_000_000, VerifiedAlgorithms: []checksum.Algorithm{checksum.MD5, checksum.SHA256}},
		{Name: "custom.qcow2", SizeBytes: 1536},
	}
}

func testVMs() []vm.Info {
	return []vm.Info{
		{Name: "db", State: vm.StateStopped},
		{Name: "web", State: vm.StateRunning, IP: "192.168.122.10", MAC: "52:54:00:aa:bb:cc", Image: "hello.qcow2"},
	}
}

func TestTableFormatter_FormatImageList(t *testing.T) {
	f := &TableFormatter{}
	out, err := f.FormatImageList(testImages())
	if err != nil {
		t.Fatalf("FormatImageList() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %d lines:\n%s", len(lines), out)
	}
	if fields := strings.Fields(lines[0]); !cmp.Equal(fields, []string{"IMAGE", "SIZE", "HASH"}) {
		t.Errorf("header = %v", fields)
	}

	tests := []struct {
		line int
		want []string
	}{
		{1, []string{"hello.qcow2", "5B", "SHA256SUM"}},
		{2, []string{"rhel-guest-image-8.9.qcow2", "2GB", "MD5SUM,SHA256SUM"}},
		{3, []string{"custom.qcow2", "1.536kB", NoHash}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, strings.Fields(lines[tt.line])); diff != "" {
			t.Errorf("row %d mismatch (-want +got):\n%s", tt.line, diff)
		}
	}
}

func TestTableFormatter_NoHeadersAndEmpty(t *testing.T) {
	f := &TableFormatter{NoHeaders: true}
	out, err := f.FormatImageList(testImages()[:1])
	if err != nil {
		t.Fatalf("FormatImageList() error = %v", err)
	}
	if strings.Contains(out, "IMAGE") {
		t.Errorf("header should be omitted:\n%s", out)
	}

	out, _ = f.FormatImageList(nil)
	if out != "No images found\n" {
		t.Errorf("empty catalog = %q", out)
	}
	out, _ = f.FormatVMList(nil)
	if out != "No VMs found\n" {
		t.Errorf("empty VM list = %q", out)
	}
}

func TestTableFormatter_FormatImage(t *testing.T) {
	f := &TableFormatter{}
	out, err := f.FormatImage(image.ImageInfo{
		BaseImage: image.BaseImage{Name: "hello.qcow2", SizeBytes: 5},
		Path:      "/cache/base/hello.qcow2",
		Format:    disk.FormatQCOW2,
		Manifests: []checksum.Algorithm{checksum.SHA256},
	})
	if err != nil {
		t.Fatalf("FormatImage() error = %v", err)
	}

	for _, want := range []string{"hello.qcow2", "/cache/base/hello.qcow2", "qcow2", "SHA256SUM", "Verified:", NoHash} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTableFormatter_FormatVMList(t *testing.T) {
	f := &TableFormatter{}
	out, err := f.FormatVMList(testVMs())
	if err != nil {
		t.Fatalf("FormatVMList() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	want := [][]string{
		{"NAME", "STATE", "IP", "IMAGE"},
		{"db", "stopped", "-", "-"},
		{"web", "running", "192.168.122.10", "hello.qcow2"},
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), out)
	}
	for i := range want {
		if diff := cmp.Diff(want[i], strings.Fields(lines[i])); diff != "" {
			t.Errorf("line %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestJSONFormatter(t *testing.T) {
	f := &JSONFormatter{}

	out, err := f.FormatImageList(testImages())
	if err != nil {
		t.Fatalf("FormatImageList() error = %v", err)
	}
	var images []image.BaseImage
	if err := json.Unmarshal([]byte(out), &images); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if diff := cmp.Diff(testImages(), images); diff != "" {
		t.Errorf("decoded images mismatch (-want +got):\n%s", diff)
	}

	out, err = f.FormatVMList(testVMs())
	if err != nil {
		t.Fatalf("FormatVMList() error = %v", err)
	}
	if !strings.Contains(out, `"ip": "192.168.122.10"`) {
		t.Errorf("VM JSON missing ip:\n%s", out)
	}
	if strings.Count(out, `"ip"`) != 1 {
		t.Errorf("empty ip should be omitted:\n%s", out)
	}

	for name, got := range map[string]func() (string, error){
		"images": func() (string, error) { return f.FormatImageList(nil) },
		"vms":    func() (string, error) { return f.FormatVMList(nil) },
	} {
		if out, _ := got(); out != "[]\n" {
			t.Errorf("empty %s = %q, want []", name, out)
		}
	}
}

func TestJSONFormatter_FormatImage(t *testing.T) {
	f := &JSONFormatter{}
	out, err := f.FormatImage(image.ImageInfo{
		BaseImage: image.BaseImage{Name: "hello.qcow2", SizeBytes: 5},
		Path:      "/cache/base/hello.qcow2",
	})
	if err != nil {
		t.Fatalf("FormatImage() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["name"] != "hello.qcow2" || decoded["path"] != "/cache/base/hello.qcow2" {
		t.Errorf("decoded = %v", decoded)
	}
	if _, ok := decoded["format"]; ok {
		t.Errorf("empty format should be omitted: %v", decoded)
	}
}

func TestYAMLFormatter(t *testing.T) {
	f := &YAMLFormatter{}

	out, err := f.FormatImageList(testImages())
	if err != nil {
		t.Fatalf("FormatImageList() error = %v", err)
	}
	var images []image.BaseImage
	if err := yaml.Unmarshal([]byte(out), &images); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if diff := cmp.Diff(testImages(), images, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("decoded images mismatch (-want +got):\n%s", diff)
	}

	out, err = f.FormatImage(image.ImageInfo{
		BaseImage: image.BaseImage{Name: "hello.qcow2", SizeBytes: 5},
		Path:      "/cache/base/hello.qcow2",
		Format:    disk.FormatQCOW2,
	})
	if err != nil {
		t.Fatalf("FormatImage() error = %v", err)
	}
	for _, want := range []string{"name: hello.qcow2", "sizeBytes: 5", "format: qcow2"} {
		if !strings.Contains(out, want) {
			t.Errorf("image YAML missing %q:\n%s", want, out)
		}
	}

	out, err = f.FormatVMList(testVMs())
	if err != nil {
		t.Fatalf("FormatVMList() error = %v", err)
	}
	if !strings.Contains(out, "state: running") || !strings.Contains(out, "mac: 52:54:00:aa:bb:cc") {
		t.Errorf("VM YAML missing fields:\n%s", out)
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{
			name: "table format",
			opts: Options{Format: FormatTable},
		},
		{
			name: "yaml format",
			opts: Options{Format: FormatYAML},
		},
		{
			name: "json format",
			opts: Options{Format: FormatJSON},
		},
		{
			name:    "invalid format",
			opts:    Options{Format: "invalid"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter, err := NewFormatter(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewFormatter() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && formatter == nil {
				t.Error("NewFormatter() returned nil formatter")
			}
		})
	}
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		wantErr bool
	}{
		{
			name:   "valid table",
			format: "table",
		},
		{
			name:   "valid yaml",
			format: "yaml",
		},
		{
			name:   "valid json",
			format: "json",
		},
		{
			name:    "invalid format",
			format:  "xml",
			wantErr: true,
		},
		{
			name:    "empty format",
			format:  "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFormat(tt.format)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
