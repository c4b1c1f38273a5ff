package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbweber/thinbox/internal/checksum"
	"github.com/jbweber/thinbox/internal/config"
	"github.com/jbweber/thinbox/internal/image"
	"github.com/jbweber/thinbox/internal/output"
)

var (
	skipCheck      bool
	imageOutput    string
	imageRemoveAll bool
	verifyAlg      string
)

// Pull commands
var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download a base image",
	Long: `Download a base image into the cache by tag or by URL.

When the image comes from a trusted host its checksum manifests are
downloaded too and the image is verified against the SHA256 manifest.`,
}

var pullTagCmd = &cobra.Command{
	Use:   "tag <tag>",
	Short: "Download the latest image for a tag (e.g. rhel8-latest)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPull(func(mgr *image.Manager) (image.Result, error) {
			return mgr.PullByTag(cmd.Context(), args[0], image.PullOptions{SkipCheck: skipCheck})
		})
	},
}

var pullURLCmd = &cobra.Command{
	Use:   "url <url>",
	Short: "Download an image from a URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPull(func(mgr *image.Manager) (image.Result, error) {
			return mgr.PullByURL(cmd.Context(), args[0], image.PullOptions{SkipCheck: skipCheck})
		})
	},
}

func runPull(pull func(*image.Manager) (image.Result, error)) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	mgr, err := image.NewManager(cfg, image.WithLogger(logger()))
	if err != nil {
		return err
	}

	return withLock(cfg, func() error {
		result, err := pull(mgr)
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s\n", result.Message())
		fmt.Printf("  %s\n", result.Path)
		return nil
	})
}

// Image commands
var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Manage cached base images",
}

func init() {
	pullCmd.PersistentFlags().BoolVar(&skipCheck, "skip-check", false, "Do not verify the downloaded image")
	pullCmd.AddCommand(pullTagCmd)
	pullCmd.AddCommand(pullURLCmd)

	imageListCmd.Flags().StringVarP(&imageOutput, "output", "o", "table", "Output format: table, yaml, json")
	imageInfoCmd.Flags().StringVarP(&imageOutput, "output", "o", "table", "Output format: table, yaml, json")
	imageRemoveCmd.Flags().BoolVar(&imageRemoveAll, "all", false, "Remove every cached image")
	imageVerifyCmd.Flags().StringVar(&verifyAlg, "algorithm", "", "Verify only against this algorithm (md5, sha1, sha256)")

	imageCmd.AddCommand(imageListCmd)
	imageCmd.AddCommand(imageRemoveCmd)
	imageCmd.AddCommand(imageVerifyCmd)
	imageCmd.AddCommand(imageInfoCmd)
}

func newImageManager() (*image.Manager, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	mgr, err := image.NewManager(cfg, image.WithLogger(logger()))
	if err != nil {
		return nil, nil, err
	}
	return mgr, cfg, nil
}

var imageListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List cached base images",
	Long: `List cached base images with their size and the checksum
algorithms they have been verified with (NONE when never verified).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := output.NewFormatter(output.Options{Format: output.Format(imageOutput)})
		if err != nil {
			return err
		}
		mgr, cfg, err := newImageManager()
		if err != nil {
			return err
		}

		images, err := mgr.ListCatalog()
		if err != nil {
			return err
		}
		out, err := formatter.FormatImageList(images)
		if err != nil {
			return err
		}

		if imageOutput == string(output.FormatTable) {
			fmt.Printf("%s\n\n", cfg.BaseDir)
		}
		fmt.Print(out)
		return nil
	},
}

var imageRemoveCmd = &cobra.Command{
	Use:     "remove <image>",
	Aliases: []string{"rm"},
	Short:   "Remove a cached image with its manifests and markers",
	Args: func(cmd *cobra.Command, args []string) error {
		if imageRemoveAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, cfg, err := newImageManager()
		if err != nil {
			return err
		}

		return withLock(cfg, func() error {
			if imageRemoveAll {
				if err := reportWarning(logger(), mgr.RemoveAllImages()); err != nil {
					return err
				}
				fmt.Println("✓ All images removed")
				return nil
			}

			err := mgr.RemoveImage(args[0])
			if err == nil {
				fmt.Printf("✓ Image %s removed\n", args[0])
			}
			return reportWarning(logger(), err)
		})
	},
}

var imageVerifyCmd = &cobra.Command{
	Use:   "verify <image>",
	Short: "Verify a cached image against its checksum manifests",
	Long: `Verify a cached image against its checksum manifests.

Without --algorithm every available manifest is checked. An image that was
verified before is not read again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, cfg, err := newImageManager()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		return withLock(cfg, func() error {
			var results []image.Verification
			if verifyAlg == "" {
				results, err = mgr.VerifyAll(ctx, args[0])
			} else {
				alg, parseErr := checksum.ParseAlgorithm(verifyAlg)
				if parseErr != nil {
					return parseErr
				}
				var v image.Verification
				v, err = mgr.Verify(ctx, args[0], alg)
				results = []image.Verification{v}
			}

			for _, v := range results {
				printVerification(v)
			}
			if err == nil && len(results) == 0 {
				fmt.Printf("No checksum manifests for %s, nothing to verify\n", args[0])
			}
			return err
		})
	},
}

func printVerification(v image.Verification) {
	switch {
	case v.Status == image.StatusVerified && v.Cached:
		fmt.Printf("✓ %s %s: verified (cached)\n", v.Image, v.Algorithm)
	case v.Status == image.StatusVerified:
		fmt.Printf("✓ %s %s: verified\n", v.Image, v.Algorithm)
	case v.Status == image.StatusFailed:
		fmt.Fprintf(os.Stderr, "✗ %s %s: checksum mismatch\n", v.Image, v.Algorithm)
	default:
		fmt.Printf("- %s %s: %s\n", v.Image, v.Algorithm, v.Status)
	}
}

var imageInfoCmd = &cobra.Command{
	Use:   "info <image>",
	Short: "Show details about a cached image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := output.NewFormatter(output.Options{Format: output.Format(imageOutput)})
		if err != nil {
			return err
		}
		mgr, _, err := newImageManager()
		if err != nil {
			return err
		}

		info, err := mgr.Inspect(args[0])
		if err != nil {
			return err
		}
		out, err := formatter.FormatImage(info)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}
