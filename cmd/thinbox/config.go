package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/thinbox/internal/config"
	"github.com/jbweber/thinbox/internal/libvirt"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the thinbox configuration",
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

// configView is the resolved configuration as shown by "config show".
type configView struct {
	CacheDir       string          `yaml:"cache_dir"`
	BaseDir        string          `yaml:"base_dir"`
	ImageDir       string          `yaml:"image_dir"`
	HashDir        string          `yaml:"hash_dir"`
	UserConfig     string          `yaml:"user_config"`
	FetchTimeout   string          `yaml:"fetch_timeout"`
	LibvirtSocket  string          `yaml:"libvirt_socket"`
	TrustedDomains []string        `yaml:"trusted_domains"`
	KnownTags      []string        `yaml:"known_tags"`
	Settings       config.Settings `yaml:"settings"`
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Long: `Print the configuration after applying environment overrides and
the user settings file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(configView{
			CacheDir:       cfg.CacheDir,
			BaseDir:        cfg.BaseDir,
			ImageDir:       cfg.ImageDir,
			HashDir:        cfg.HashDir,
			UserConfig:     cfg.UserConfigPath,
			FetchTimeout:   cfg.FetchTimeout.String(),
			LibvirtSocket:  cfg.LibvirtSocket,
			TrustedDomains: cfg.TrustedDomains,
			KnownTags:      cfg.KnownTags,
			Settings:       cfg.Settings,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal configuration: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test libvirt connection",
	Long:  `Test connectivity to the libvirt daemon and display version information.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Println("Testing libvirt connection...")

		client, err := libvirt.ConnectWithContext(cmd.Context(), cfg.LibvirtSocket, libvirt.DefaultTimeout)
		if err != nil {
			return fmt.Errorf("failed to connect to libvirt: %w", err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", closeErr)
			}
		}()

		fmt.Println("✓ Connected to libvirt daemon")

		if err := client.Ping(); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		// libvirt encodes 8.6.0 as 8006000
		version, err := client.Libvirt().ConnectGetLibVersion()
		if err != nil {
			return fmt.Errorf("failed to get libvirt version: %w", err)
		}
		fmt.Printf("✓ Libvirt version: %d.%d.%d\n", version/1000000, (version%1000000)/1000, version%1000)

		hostname, err := client.Libvirt().ConnectGetHostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		fmt.Printf("✓ Hypervisor hostname: %s\n", hostname)

		fmt.Println("\nConnection test successful!")
		return nil
	},
}
