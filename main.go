package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/astei/anvil2voxel/logx"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "anvil2voxel",
		Usage: "converts Anvil worlds into per-region voxel volumes",
		Commands: []*cli.Command{
			{
				Name:      "extract",
				Usage:     "assemble a volume and inhabited-time grid for every region of a world",
				ArgsUsage: "WORLD",
				Flags:     extractFlags(),
				Action:    runExtract,
			},
			{
				Name:      "regions",
				Usage:     "list the region files of a world",
				ArgsUsage: "WORLD",
				Flags:     []cli.Flag{dimensionFlag},
				Action:    runRegions,
			},
			{
				Name:      "inhabited",
				Usage:     "print the inhabited-time grid of one region",
				ArgsUsage: "WORLD REGION_X REGION_Z",
				Flags:     []cli.Flag{dimensionFlag},
				Action:    runInhabited,
			},
			{
				Name:      "resolve",
				Usage:     "print the block states behind global ids",
				ArgsUsage: "ID...",
				Flags:     []cli.Flag{registryFlag},
				Action:    runResolve,
			},
			{
				Name:      "inspect",
				Usage:     "summarize a volume file",
				ArgsUsage: "FILE",
				Action:    runInspect,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log := logx.NewLogger("info", os.Stderr)
		log.Fatal().Err(err).Msg("anvil2voxel failed")
	}
}
