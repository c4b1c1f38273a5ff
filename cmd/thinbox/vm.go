package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jbweber/thinbox/internal/config"
	"github.com/jbweber/thinbox/internal/disk"
	"github.com/jbweber/thinbox/internal/libvirt"
	"github.com/jbweber/thinbox/internal/output"
	"github.com/jbweber/thinbox/internal/remote"
	"github.com/jbweber/thinbox/internal/vm"
)

// bootTimeout bounds how long create, enter and copy wait for a lease.
const bootTimeout = 3 * time.Minute

var (
	createImage string
	noWait      bool
	removeAll   bool
	listFilter  vm.Filter
	listOutput  string
	copyDir     string
	copyPre     string
	copyCommand string
)

func init() {
	createCmd.Flags().StringVarP(&createImage, "image", "i", "", "Base image to clone (see thinbox image list)")
	_ = createCmd.MarkFlagRequired("image")
	createCmd.Flags().BoolVar(&noWait, "no-wait", false, "Do not wait for the VM to get an address")

	removeCmd.Flags().BoolVar(&removeAll, "all", false, "Remove every VM")

	listCmd.Flags().BoolVar(&listFilter.Running, "running", false, "Show running VMs")
	listCmd.Flags().BoolVar(&listFilter.Stopped, "stopped", false, "Show stopped VMs")
	listCmd.Flags().BoolVar(&listFilter.Paused, "paused", false, "Show paused VMs")
	listCmd.Flags().BoolVar(&listFilter.Other, "other", false, "Show VMs in any other state")
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "Output format: table, yaml, json")

	copyCmd.Flags().StringVarP(&copyDir, "dir", "d", remote.DefaultDir, "Destination directory inside the VM")
	copyCmd.Flags().StringVarP(&copyPre, "pre", "p", "", "Command to run inside the VM before copying")
	copyCmd.Flags().StringVarP(&copyCommand, "command", "c", "", "Command to run inside the VM after copying")
}

// vmSession bundles a connected VM manager with what commands need next to it.
type vmSession struct {
	cfg    *config.Config
	client *libvirt.Client
	vms    *vm.Manager
	log    *logrus.Entry
}

// connectVMs loads the configuration and connects to libvirt.
func connectVMs() (*vmSession, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	client, err := libvirt.Connect(cfg.LibvirtSocket, libvirt.DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt: %w", err)
	}

	log := logger()
	key := ""
	if home, err := os.UserHomeDir(); err == nil {
		if key, err = cfg.AuthorizedKey(home); err != nil {
			log.WithError(err).Debug("no authorized key")
		}
	}

	disks := disk.NewManager(cfg.ImageDir, nil)
	if os.Geteuid() == 0 {
		owner, err := disk.LookupQEMUOwner(disk.QEMUConfPath)
		if err != nil {
			log.WithError(err).Warn("VM files will stay owned by root")
		} else {
			disks.SetOwner(&owner)
		}
	}

	mgr := vm.NewManager(client.Libvirt(), disks, vm.Options{
		MemoryMiB:     cfg.Settings.Memory,
		AuthorizedKey: key,
		Logger:        log,
	})

	return &vmSession{cfg: cfg, client: client, vms: mgr, log: log}, nil
}

func (s *vmSession) Close() {
	if err := s.client.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", err)
	}
}

// waitForIP waits for the VM's lease, showing what it is waiting for.
func (s *vmSession) waitForIP(ctx context.Context, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, bootTimeout)
	defer cancel()

	if ip, err := s.vms.IP(ctx, name); err != nil || ip != "" {
		return ip, err
	}
	fmt.Printf("Machine '%s' is starting...\n", name)
	return remote.WaitForIP(ctx, s.vms.IP, name, remote.DefaultPollInterval)
}

var createCmd = &cobra.Command{
	Use:   "create -i <image> <name>",
	Short: "Create and start a VM from a cached base image",
	Long: `Create a new VM whose disk is a copy-on-write overlay of a cached
base image, then start it.

A cloud-init seed sets the hostname and installs your SSH public key
(ssh_public_key, or ~/.ssh/id_ed25519.pub / ~/.ssh/id_rsa.pub) for root.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		images, cfg, err := newImageManager()
		if err != nil {
			return err
		}
		basePath, err := images.ImagePath(createImage)
		if err != nil {
			return err
		}

		s, err := connectVMs()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		err = withLock(cfg, func() error {
			fmt.Printf("Creating VM %s from %s\n", name, createImage)
			if err := s.vms.CreateFromImage(ctx, basePath, name); err != nil {
				return fmt.Errorf("failed to create VM: %w", err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ VM %s created\n", name)

		if noWait {
			return nil
		}
		ip, err := s.waitForIP(ctx, name)
		if err != nil {
			s.log.WithError(err).Warn("VM did not report an address")
			return nil
		}
		fmt.Printf("✓ VM %s is up at %s\n", name, ip)
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Start a stopped VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connectVMs()
		if err != nil {
			return err
		}
		defer s.Close()

		started, err := s.vms.Start(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !started {
			fmt.Printf("VM %s is already running\n", args[0])
			return nil
		}
		fmt.Printf("✓ VM %s started\n", args[0])
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <name>",
	Short: "Shut down a running VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connectVMs()
		if err != nil {
			return err
		}
		defer s.Close()

		stopped, err := s.vms.Stop(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !stopped {
			fmt.Printf("VM %s is not running\n", args[0])
			return nil
		}
		fmt.Printf("✓ VM %s is shutting down\n", args[0])
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove a VM and its disk",
	Long: `Remove a VM.

This will:
- Force-stop the VM if running
- Undefine the domain
- Delete the overlay disk and the cloud-init seed`,
	Args: func(cmd *cobra.Command, args []string) error {
		if removeAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connectVMs()
		if err != nil {
			return err
		}
		defer s.Close()

		if removeAll {
			if err := s.vms.RemoveAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("✓ All VMs removed")
			return nil
		}

		if err := s.vms.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ VM %s removed\n", args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List VMs",
	Long: `List VMs known to libvirt with their state and address.

Without a state flag every VM is shown.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := output.NewFormatter(output.Options{Format: output.Format(listOutput)})
		if err != nil {
			return err
		}
		s, err := connectVMs()
		if err != nil {
			return err
		}
		defer s.Close()

		vms, err := s.vms.List(cmd.Context(), listFilter)
		if err != nil {
			return err
		}
		out, err := formatter.FormatVMList(vms)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var enterCmd = &cobra.Command{
	Use:   "enter <name>",
	Short: "Open an SSH session as root in a VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connectVMs()
		if err != nil {
			return err
		}
		defer s.Close()

		ip, err := s.waitForIP(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return remote.NewSession(ip, s.cfg.SSHOptions, s.log).Interactive(cmd.Context())
	},
}

var copyCmd = &cobra.Command{
	Use:   "copy <file>... <name>",
	Short: "Copy files into a running VM",
	Long: `Copy one or more files into a running VM over scp.

--pre runs a command inside the VM before copying, --command after.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, name := args[:len(args)-1], args[len(args)-1]
		for _, f := range files {
			if _, err := os.Stat(f); err != nil {
				return fmt.Errorf("cannot copy %s: %w", f, err)
			}
		}

		s, err := connectVMs()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		ip, err := s.waitForIP(ctx, name)
		if err != nil {
			return err
		}
		session := remote.NewSession(ip, s.cfg.SSHOptions, s.log)

		if copyPre != "" {
			if err := session.Run(ctx, copyPre); err != nil {
				return err
			}
		}

		copied, err := session.Copy(ctx, files, copyDir)
		for i, dest := range copied {
			fmt.Printf("Copied file %s into %s.\n", files[i], dest)
		}
		if err != nil {
			return err
		}

		if copyCommand != "" {
			return session.Run(ctx, copyCommand)
		}
		return nil
	},
}
