package output

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/docker/go-units"

	"github.com/jbweber/thinbox/internal/checksum"
	"github.com/jbweber/thinbox/internal/image"
	"github.com/jbweber/thinbox/internal/vm"
)

// NoHash is shown for images without any verification marker.
const NoHash = "NONE"

// TableFormatter formats resources as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatImageList formats the catalog as an IMAGE/SIZE/HASH table.
func (f *TableFormatter) FormatImageList(images []image.BaseImage) (string, error) {
	if len(images) == 0 {
		return "No images found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "IMAGE\tSIZE\tHASH")
	}

	for _, img := range images {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n",
			img.Name, units.HumanSize(float64(img.SizeBytes)), joinAlgorithms(img.VerifiedAlgorithms))
	}

	_ = w.Flush()
	return buf.String(), nil
}

// FormatImage formats one image as aligned key/value lines.
func (f *TableFormatter) FormatImage(info image.ImageInfo) (string, error) {
	format := string(info.Format)
	if format == "" {
		format = "unknown"
	}
	manifests := "-"
	if len(info.Manifests) > 0 {
		manifests = joinAlgorithms(info.Manifests)
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Name:\t%s\n", info.Name)
	_, _ = fmt.Fprintf(w, "Path:\t%s\n", info.Path)
	_, _ = fmt.Fprintf(w, "Size:\t%s (%d bytes)\n", units.HumanSize(float64(info.SizeBytes)), info.SizeBytes)
	_, _ = fmt.Fprintf(w, "Format:\t%s\n", format)
	_, _ = fmt.Fprintf(w, "Manifests:\t%s\n", manifests)
	_, _ = fmt.Fprintf(w, "Verified:\t%s\n", joinAlgorithms(info.VerifiedAlgorithms))
	_ = w.Flush()
	return buf.String(), nil
}

// FormatVMList formats VMs as a NAME/STATE/IP/IMAGE table.
func (f *TableFormatter) FormatVMList(vms []vm.Info) (string, error) {
	if len(vms) == 0 {
		return "No VMs found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tSTATE\tIP\tIMAGE")
	}

	for _, v := range vms {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.Name, v.State, orDash(v.IP), orDash(v.Image))
	}

	_ = w.Flush()
	return buf.String(), nil
}

func joinAlgorithms(algs []checksum.Algorithm) string {
	if len(algs) == 0 {
		return NoHash
	}
	names := make([]string, len(algs))
	for i, alg := range algs {
		names[i] = alg.String()
	}
	return strings.Join(names, ",")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
