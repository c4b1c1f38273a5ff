package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jbweber/thinbox/internal/config"
	"github.com/jbweber/thinbox/internal/image"
	"github.com/jbweber/thinbox/internal/lock"
)

var (
	version = "dev"
	commit  = "unknown"
)

var verbose bool

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var notFound *image.NotFoundError
		if errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, notFound.Hint())
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "thinbox",
	Short: "thinbox - throwaway VMs from cached cloud images",
	Long: `thinbox downloads and verifies cloud base images and runs
disposable libvirt VMs on top of them.

Base images live in a local cache together with their checksum manifests.
Every VM gets a copy-on-write overlay of a base image and a cloud-init seed
that installs your SSH key for root.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logrus.SetOutput(os.Stderr)
		logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.InfoLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(imageCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(enterCmd)
	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testConnCmd)
}

// logger returns the root log entry handed to the internal packages.
func logger() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger()).WithField("component", "thinbox")
}

// withLock runs fn while holding the cache lock.
func withLock(cfg *config.Config, fn func() error) error {
	l, err := lock.Acquire(cfg.LockPath())
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			logger().WithError(err).Warn("failed to release lock")
		}
	}()
	return fn()
}

// reportWarning logs err when it only carries warnings and returns nil;
// otherwise it returns err unchanged.
func reportWarning(log *logrus.Entry, err error) error {
	if err == nil || !image.IsWarning(err) {
		return err
	}
	log.Warn(err.Error())
	var notFound *image.NotFoundError
	if errors.As(err, &notFound) {
		fmt.Fprintln(os.Stderr, notFound.Hint())
	}
	return nil
}
