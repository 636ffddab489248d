// Command gzguard-dump is an offline inspector for gzdump snapshots: it
// prints a human-readable summary of a dump file produced by
// gzdump.Write, the post-mortem counterpart to the live engine's
// in-process Stats/ElementSize queries.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/orizon-lang/gzguard/internal/gzdump"
)

func main() {
	var (
		path string
		json bool
	)

	flag.StringVar(&path, "file", "", "path to a gzguard dump file")
	flag.BoolVar(&json, "json", false, "print the raw decoded snapshot instead of a human summary")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -file <dump>\n\nOPTIONS:\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	if path == "" {
		flag.Usage()
		os.Exit(1)
	}

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gzguard-dump: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	snap, err := gzdump.Read(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gzguard-dump: %v\n", err)
		os.Exit(1)
	}

	if json {
		_ = gzdump.Write(os.Stdout, snap)
		return
	}

	printSummary(snap)
}

func printSummary(snap gzdump.EngineSnapshot) {
	fmt.Printf("gzguard dump (format %s)\n", snap.FormatVersion)
	fmt.Printf("  mode: %s  fc_size: %d  consistency: %v  dfree_check: %v\n",
		snap.Mode, snap.FCSize, snap.Consistency, snap.DFreeCheck)
	fmt.Printf("  allocated: %d  freed: %d  wasted: %d\n", snap.Allocated, snap.Freed, snap.Wasted)
	fmt.Printf("  early_alloc: %d  early_free: %d\n", snap.EarlyAlloc, snap.EarlyFree)
	fmt.Printf("  pdzalloc_count: %d  pdzfree_count: %d\n\n", snap.PDZAllocCount, snap.PDZFreeCount)

	fmt.Printf("  %-24s %10s %10s %10s %10s %12s %12s\n", "zone", "elem_size", "free", "wired", "va", "allocated", "freed")
	for _, z := range snap.Zones {
		fmt.Printf("  %-24s %10d %10d %10d %10d %12d %12d\n",
			z.Name, z.ElementSize, z.ElemsFree, z.WiredCur, z.VACur, z.MemAllocated, z.MemFreed)
	}
}
