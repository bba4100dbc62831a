package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vadiminshakov/installd/config"
	"github.com/vadiminshakov/installd/core/dto"
	"github.com/vadiminshakov/installd/core/registry"
	"github.com/vadiminshakov/installd/io/container"
	"github.com/vadiminshakov/installd/io/daemon"
	"github.com/vadiminshakov/installd/io/helper"
	"github.com/vadiminshakov/installd/io/store"
)

var cfg *config.Config

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "installd",
		Short:        "Package installation engine",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if cfg, err = config.Load(cmd); err != nil {
				return err
			}
			level, _ := log.ParseLevel(cfg.LogLevel)
			log.SetLevel(level)
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
			return nil
		},
	}
	config.RegisterFlags(root)

	root.AddCommand(
		daemonCmd(),
		helperCmd(),
		engineCmd(),
		installCmd(),
		uninstallCmd(),
		moveCmd(),
		measureCmd(),
		listCmd(),
	)
	return root
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Infof("received %s, shutting down", s)
}

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the privileged storage daemon",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			srv, err := daemon.NewServer(cfg.DaemonSocket, cfg.DataDir, cfg.DexDir)
			if err != nil {
				return err
			}
			if err := srv.Run(); err != nil {
				return err
			}
			waitForSignal()
			srv.Stop()
			return nil
		},
	}
}

func helperCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "helper",
		Short: "Run the storage helper service",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			containers, err := container.New(cfg.ContainerDir)
			if err != nil {
				return err
			}
			srv := helper.NewServer(cfg.HelperListen, helper.NewService(cfg.AppDir, cfg.ContainerDir, containers))
			if err := srv.Run(); err != nil {
				return err
			}
			waitForSignal()
			srv.Stop()
			return nil
		},
	}
}

func engineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "engine",
		Short: "Recover interrupted work and run the install engine",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			e, err := startEngine(cfg)
			if err != nil {
				return err
			}
			defer e.close()
			waitForSignal()
			return nil
		},
	}
}

// runOne starts the engine, submits one item and waits for its completion.
func runOne(submit func(e *engine, done chan<- error)) error {
	e, err := startEngine(cfg)
	if err != nil {
		return err
	}
	defer e.close()

	done := make(chan error, 1)
	submit(e, done)
	return <-done
}

func statusErr(name string, status dto.Status) error {
	if status == dto.Succeeded {
		return nil
	}
	return errors.Errorf("%s: %s (%d)", name, status, int(status))
}

func placementFlags(cmd *cobra.Command) dto.InstallFlags {
	var flags dto.InstallFlags
	if v, _ := cmd.Flags().GetBool("external"); v {
		flags |= dto.FlagExternal
	}
	if v, _ := cmd.Flags().GetBool("internal"); v {
		flags |= dto.FlagInternal
	}
	return flags
}

func installCmd() *cobra.Command {
	var (
		replace, forwardLock, allowTest bool
		installer, digest               string
	)
	cmd := &cobra.Command{
		Use:   "install <archive>...",
		Short: "Install package archives in order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := placementFlags(cmd)
			if replace {
				flags |= dto.FlagReplace
			}
			if forwardLock {
				flags |= dto.FlagForwardLock
			}
			if allowTest {
				flags |= dto.FlagAllowTest
			}

			e, err := startEngine(cfg)
			if err != nil {
				return err
			}
			defer e.close()

			type result struct {
				source string
				name   string
				status dto.Status
			}
			results := make(chan result, len(args))
			for _, source := range args {
				req := dto.NewInstallRequest(source, flags, installer, dto.InstallObserverFunc(func(name string, status dto.Status) {
					results <- result{source: source, name: name, status: status}
				}))
				req.ExpectedDigest = digest
				e.installer.Install(req)
			}

			var failed int
			for range args {
				r := <-results
				if err := statusErr(r.source, r.status); err != nil {
					log.Error(err)
					failed++
					continue
				}
				fmt.Printf("installed %s from %s\n", r.name, r.source)
			}
			if failed > 0 {
				return errors.Errorf("%d of %d installs failed", failed, len(args))
			}
			return nil
		},
	}
	fs := cmd.Flags()
	fs.BoolVar(&replace, "replace", false, "replace an installed package")
	fs.BoolVar(&forwardLock, "forward-lock", false, "keep package code private")
	fs.BoolVar(&allowTest, "allow-test", false, "allow test-only packages")
	fs.StringVar(&installer, "installer", "", "package recorded as the installer")
	fs.StringVar(&digest, "expected-digest", "", "fail unless the manifest digest matches")
	fs.Bool("external", false, "place on external storage")
	fs.Bool("internal", false, "place on internal storage")
	return cmd
}

func uninstallCmd() *cobra.Command {
	var keepData bool
	cmd := &cobra.Command{
		Use:   "uninstall <package>",
		Short: "Remove an installed package",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runOne(func(e *engine, done chan<- error) {
				e.installer.Delete(&dto.DeleteRequest{
					Package:  args[0],
					KeepData: keepData,
					Observer: dto.DeleteObserverFunc(func(name string, status dto.Status) {
						done <- statusErr(name, status)
					}),
				})
			})
		},
	}
	cmd.Flags().BoolVar(&keepData, "keep-data", false, "keep the package data directory")
	return cmd
}

func moveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <package>",
		Short: "Move an installed package between internal and external storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := placementFlags(cmd)
			return runOne(func(e *engine, done chan<- error) {
				e.installer.Move(&dto.MoveRequest{
					Package: args[0],
					Flags:   flags,
					Observer: dto.MoveObserverFunc(func(name string, status dto.Status) {
						done <- statusErr(name, status)
					}),
				})
			})
		},
	}
	cmd.Flags().Bool("external", false, "move to external storage")
	cmd.Flags().Bool("internal", false, "move to internal storage")
	return cmd
}

func measureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "measure <package>",
		Short: "Print the storage footprint of a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runOne(func(e *engine, done chan<- error) {
				e.installer.Measure(&dto.MeasureRequest{
					Package: args[0],
					Observer: dto.MeasureObserverFunc(func(stats dto.PackageStats, ok bool) {
						if !ok {
							done <- errors.Errorf("failed to measure %s", args[0])
							return
						}
						fmt.Printf("code %d\ndata %d\ncache %d\n", stats.CodeSize, stats.DataSize, stats.CacheSize)
						done <- nil
					}),
				})
			})
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed packages",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			db, err := store.New(cfg.RegistryPath)
			if err != nil {
				return err
			}
			defer db.Close()
			reg, err := registry.New(db)
			if err != nil {
				return err
			}
			defer reg.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PACKAGE\tVERSION\tUID\tLOCATION\tCODE")
			for _, entry := range reg.List() {
				location := dto.LocationInternal
				if entry.Storage.External {
					location = dto.LocationExternal
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", entry.Name, entry.Version, entry.UID, location, entry.Storage.CodePath)
			}
			return w.Flush()
		},
	}
}
