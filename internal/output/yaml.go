package output

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/thinbox/internal/image"
	"github.com/jbweber/thinbox/internal/vm"
)

// YAMLFormatter formats resources as YAML.
type YAMLFormatter struct{}

// FormatImageList formats the catalog as a YAML sequence.
func (f *YAMLFormatter) FormatImageList(images []image.BaseImage) (string, error) {
	if len(images) == 0 {
		return "[]\n", nil
	}
	return marshalYAML(images, "images")
}

// FormatImage formats one image as a YAML mapping.
func (f *YAMLFormatter) FormatImage(info image.ImageInfo) (string, error) {
	return marshalYAML(info, "image")
}

// FormatVMList formats VMs as a YAML sequence.
func (f *YAMLFormatter) FormatVMList(vms []vm.Info) (string, error) {
	if len(vms) == 0 {
		return "[]\n", nil
	}
	return marshalYAML(vms, "VMs")
}

func marshalYAML(v any, what string) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to YAML: %w", what, err)
	}
	return string(data), nil
}
