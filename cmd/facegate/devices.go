package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-facegate/internal/log"
	"github.com/teslashibe/go-facegate/pkg/camera"
	"github.com/teslashibe/go-facegate/pkg/camera/webcam"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List local cameras and presets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		list := webcam.New(log.Component("camera")).List()
		if len(list) == 0 {
			fmt.Println("No cameras found. Use --device pattern for the synthetic camera.")
		}
		for _, d := range list {
			fmt.Printf("%d\t%s\t%dx%d\n", d.Index, d.DeviceID, d.Width, d.Height)
		}

		fmt.Println()
		fmt.Println("Presets:")
		presets := camera.Presets()
		for _, name := range camera.PresetNames() {
			p := presets[name]
			fmt.Printf("  %-8s %dx%d %s q%d\n", name, p.Width, p.Height, p.Format, p.Quality)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
