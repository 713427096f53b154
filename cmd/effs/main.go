// Command effs mounts the synthetic effs filesystem at a given path,
// optionally mirroring a host directory at the mount root.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/metatoaster/effs"
	"github.com/metatoaster/effs/internal/config"
	"github.com/metatoaster/effs/internal/fusebridge"
	"github.com/metatoaster/effs/mirror"
)

// newRootCommand builds the effs root command, declaring every flag
// exactly once at construction time so they are present before cobra
// parses argv. mount is invoked with the resolved config once argument
// and flag parsing has succeeded; tests substitute a stub here to
// exercise flag/config wiring without performing a real mount.
func newRootCommand(mount func(mountPath string, cfg config.Config) error) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "effs mount-path",
		Short: "mount the effs synthetic filesystem",
		Args:  cobra.ExactArgs(1),
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a config file")
	v := config.BindFlags(root.Flags())

	root.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v, configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return mount(args[0], cfg)
	}

	return root
}

func main() {
	if err := newRootCommand(run).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(mountPath string, cfg config.Config) error {
	log := logrus.New()
	if cfg.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	entry := logrus.NewEntry(log)

	e := effs.New(
		effs.WithLogger(entry),
		effs.WithOwner(uint32(os.Getuid()), uint32(os.Getgid())),
		effs.WithMaxWrite(cfg.MaxWrite),
	)

	if cfg.MirrorSource != "" {
		e.PushSource(mirror.New(cfg.MirrorSource, ""))
		if err := e.BuildNodes(""); err != nil {
			return fmt.Errorf("populating mount root: %w", err)
		}
	}

	server, err := fusebridge.Mount(e, mountPath, cfg.EntryTTL, entry)
	if err != nil {
		return fmt.Errorf("mounting at %s: %w", mountPath, err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	entry.Info("effs: received termination signal, unmounting")
	return fusebridge.Unmount(server, mountPath, entry)
}
