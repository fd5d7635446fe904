// Command dsidemo loads a NAND image and runs a handful of frames against
// a headless stand-in for the NDS base, printing the resulting stop
// reason. It exists to exercise dsi.New end to end, the way ie32to64's
// main package exercises its converter against a real input file.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dsicore/dsi"
)

func main() {
	nandPath := flag.String("nand", "", "Path to a raw NAND image")
	frames := flag.Int("frames", 60, "Number of frames to run")
	verbose := flag.Bool("v", false, "Log subsystem warnings to stderr")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dsidemo [options] -nand image.bin\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *nandPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	image, err := os.ReadFile(*nandPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: reading NAND image: %v\n", err)
		os.Exit(1)
	}

	var logger dsi.Logger
	if *verbose {
		logger = newStderrLogger()
	}

	core := dsi.New(dsi.DSiArgs{
		Bus:       &headlessBus{},
		IRQ:       &headlessIRQ{},
		JIT:       &headlessJIT{},
		Scheduler: &headlessScheduler{},
		Platform:  &headlessPlatform{},
		Logger:    logger,
	})

	if err := core.LoadNAND(image); err != nil {
		fmt.Fprintf(os.Stderr, "error: loading NAND image: %v\n", err)
		os.Exit(1)
	}

	var reason dsi.StopReason
	for i := 0; i < *frames; i++ {
		reason = core.RunFrame(1)
	}
	fmt.Printf("ran %d frames, stop reason: %s\n", *frames, reason)
}
