package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/thinbox/internal/image"
	"github.com/jbweber/thinbox/internal/vm"
)

// JSONFormatter formats resources as JSON.
type JSONFormatter struct{}

// FormatImageList formats the catalog as a JSON array.
func (f *JSONFormatter) FormatImageList(images []image.BaseImage) (string, error) {
	if len(images) == 0 {
		return "[]\n", nil
	}
	return marshalJSON(images, "images")
}

// FormatImage formats one image as a JSON object.
func (f *JSONFormatter) FormatImage(info image.ImageInfo) (string, error) {
	return marshalJSON(info, "image")
}

// FormatVMList formats VMs as a JSON array.
func (f *JSONFormatter) FormatVMList(vms []vm.Info) (string, error) {
	if len(vms) == 0 {
		return "[]\n", nil
	}
	return marshalJSON(vms, "VMs")
}

func marshalJSON(v any, what string) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to JSON: %w", what, err)
	}
	return string(data) + "\n", nil
}
