package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/astei/anvil2voxel/anvil"
	"github.com/astei/anvil2voxel/logx"
	"github.com/astei/anvil2voxel/voxel"
	"github.com/astei/anvil2voxel/voxfile"
)

func runRegions(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("need a world to work with")
	}
	world, err := anvil.OpenWorld(c.Args().First(), c.String("dimension"), logx.NewLogger("warn", os.Stderr))
	if err != nil {
		return err
	}
	for _, f := range world.Regions() {
		fmt.Fprintf(c.App.Writer, "%d\t%d\t%s\n", f.X, f.Z, f.Path)
	}
	return nil
}

func runInhabited(c *cli.Context) error {
	if c.NArg() != 3 {
		return errors.New("usage: inhabited WORLD REGION_X REGION_Z")
	}
	regionX, err := strconv.Atoi(c.Args().Get(1))
	if err != nil {
		return fmt.Errorf("region x: %w", err)
	}
	regionZ, err := strconv.Atoi(c.Args().Get(2))
	if err != nil {
		return fmt.Errorf("region z: %w", err)
	}

	log := logx.NewLogger("warn", os.Stderr)
	world, err := anvil.OpenWorld(c.Args().First(), c.String("dimension"), log)
	if err != nil {
		return err
	}
	file, err := world.Region(regionX, regionZ)
	if err != nil {
		return err
	}
	region, err := anvil.LoadRegion(file, log)
	if err != nil {
		return err
	}

	grid := voxel.InhabitedTimes(region, regionX, regionZ)
	for ox := range grid {
		cells := make([]string, len(grid[ox]))
		for oz, ticks := range grid[ox] {
			cells[oz] = strconv.FormatInt(ticks, 10)
		}
		fmt.Fprintln(c.App.Writer, strings.Join(cells, "\t"))
	}
	return nil
}

func runResolve(c *cli.Context) error {
	registry, err := voxel.OpenRegistry(c.String("registry"))
	if err != nil {
		return err
	}
	defer registry.Close()

	for _, arg := range c.Args().Slice() {
		id, err := strconv.ParseUint(arg, 10, 16)
		if err != nil {
			return fmt.Errorf("bad id %q: %w", arg, err)
		}
		state, err := registry.Resolve(voxel.GlobalID(id))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%d\t%s\n", id, state)
	}
	return nil
}

func runInspect(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("need a volume file")
	}
	region, err := voxfile.Open(c.Args().First())
	if err != nil {
		return err
	}

	ids := make(map[voxel.GlobalID]int)
	for _, id := range region.Volume.Data {
		ids[id]++
	}
	v := region.Volume
	fmt.Fprintf(c.App.Writer, "region\t%d,%d\n", region.X, region.Z)
	fmt.Fprintf(c.App.Writer, "shape\t%dx%dx%d\n", v.SizeX, v.SizeZ, v.Height)
	fmt.Fprintf(c.App.Writer, "y_offset\t%d\n", v.YOffset)
	fmt.Fprintf(c.App.Writer, "chunks\t%d\n", region.Present.Count())
	fmt.Fprintf(c.App.Writer, "distinct_ids\t%d\n", len(ids))
	return nil
}
