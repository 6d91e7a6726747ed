//go:build !(js && wasm)

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sticky3d/glbrescale/batch"
	"github.com/sticky3d/glbrescale/config"
	"github.com/sticky3d/glbrescale/glb"
	"github.com/sticky3d/glbrescale/utils"
)

func parseLayout(s string) (glb.PackLayout, error) {
	switch s {
	case "raw":
		return glb.LayoutRaw, nil
	case "cdc":
		return glb.LayoutCDC, nil
	}
	return 0, fmt.Errorf("unknown layout %q (want raw or cdc)", s)
}

// loadConfig reads the rescale table. The built-in table is only used
// when the default config file is absent; an explicit path must exist.
func loadConfig(path string, explicit bool) (config.Config, error) {
	if explicit {
		return config.Open(path)
	}
	return config.Load(path)
}

func rescaleCmd() *cobra.Command {
	var (
		cfgPath, input, output string
		manifest               bool
		bundle, comp, logPath  string
	)
	cmd := &cobra.Command{
		Use:   "rescale",
		Short: "Rescale every configured prop into the output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			if input != "" {
				cfg.InputDir = input
			}
			if output != "" {
				cfg.OutputDir = output
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			compression, err := glb.ParseCompression(comp)
			if err != nil {
				return err
			}

			report := batch.NewReporter(cmd.OutOrStdout())
			if logPath != "" {
				if err := report.OpenLog(logPath); err != nil {
					return err
				}
				defer report.Close()
			}

			sum, results, err := batch.NewRunner(cfg, report).Run()
			if err != nil {
				return err
			}
			if manifest {
				path, err := batch.WriteManifest(cfg.OutputDir, sum, results)
				if err != nil {
					return err
				}
				report.Printf("Manifest: %s", path)
			}
			if bundle != "" {
				n, err := batch.Bundle(bundle, results, glb.LayoutCDC, compression)
				if err != nil {
					return err
				}
				report.Printf("Bundle: %s (%d assets)", bundle, n)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&cfgPath, "config", "c", "rescale.yaml", "YAML config file (built-in table when absent)")
	f.StringVarP(&input, "input", "i", "", "override input directory")
	f.StringVarP(&output, "output", "o", "", "override output directory")
	f.BoolVar(&manifest, "manifest", false, "write manifest.json into the output directory")
	f.StringVar(&bundle, "bundle", "", "also pack exported assets into this .glbpack")
	f.StringVar(&comp, "compression", "zstd", "bundle compression: none, zlib or zstd")
	f.StringVar(&logPath, "log", "", "append timestamped progress lines to this file")
	return cmd
}

func scaleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scale <input.glb> <output.glb> <factor>",
		Short: "Rescale a single .glb",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			factor, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid factor %q: %w", args[2], err)
			}
			return utils.RunRescaleGLB(args[0], args[1], factor)
		},
	}
}

func measureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "measure <file.glb>...",
		Short: "Print world-space dimensions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := utils.RunMeasureGLB(path, cmd.OutOrStdout()); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}
			return nil
		},
	}
}

func packCmd() *cobra.Command {
	var layout, comp string
	cmd := &cobra.Command{
		Use:   "pack <output.glbpack> <input.glb>...",
		Short: "Pack .glb files into a .glbpack",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := parseLayout(layout)
			if err != nil {
				return err
			}
			c, err := glb.ParseCompression(comp)
			if err != nil {
				return err
			}
			return utils.CreatePack(args[1:], args[0], l, c)
		},
	}
	cmd.Flags().StringVar(&layout, "layout", "cdc", "content layout: raw or cdc")
	cmd.Flags().StringVar(&comp, "compression", "zstd", "compression: none, zlib or zstd")
	return cmd
}

func unpackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpack <input.glbpack> <output_dir>",
		Short: "Extract a .glbpack into a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return utils.UnpackToDir(args[0], args[1])
		},
	}
}

func main() {
	root := &cobra.Command{
		Use:           "glbrescale",
		Short:         "Batch rescale and bundle .glb props",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(rescaleCmd(), scaleCmd(), measureCmd(), packCmd(), unpackCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
