// Command gzguard-harness drives the guard engine interactively: it
// loads a boot-token scenario file, watches it for edits so a scenario
// can be swapped without restarting the process (the engine has no
// live-reconfiguration path of its own -- spec.md's tunables are frozen
// at boot, so "reconfigure" here means tearing down and rebuilding the
// engine, the same way a kernel actually re-reads boot-args only across
// a reboot), and can run a concurrent stress mode that allocates and
// frees across many goroutines while reporting any integrity fault the
// engine raises instead of letting it crash the process.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/orizon-lang/gzguard/internal/gzguard"
)

func main() {
	var (
		scenarioPath string
		watch        bool
		stressLevel  int
		iterations   int
		elementSize  uint
		verbose      bool
		debugDefault bool
	)

	flag.StringVar(&scenarioPath, "scenario", "", "path to a file containing space-separated boot tokens")
	flag.BoolVar(&watch, "watch", false, "watch -scenario for edits and rebuild the engine on change")
	flag.IntVar(&stressLevel, "stress", 0, "number of concurrent alloc/free workers (0 disables stress mode)")
	flag.IntVar(&iterations, "iterations", 1000, "alloc/free iterations per stress worker")
	flag.UintVar(&elementSize, "element-size", 64, "element size of the synthetic zone stress workers allocate from")
	flag.BoolVar(&verbose, "verbose", false, "enable the engine's own diagnostic logging")
	flag.BoolVar(&debugDefault, "debug", false, "fall back to the DEBUG-kernel default (pmap/1024/wp) when -scenario enables nothing")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -scenario <file> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Interactive harness for the guard-mode allocator.\n\nOPTIONS:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if scenarioPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	h, err := newHarness(scenarioPath, verbose, debugDefault)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gzguard-harness: %v\n", err)
		os.Exit(1)
	}
	defer h.close()

	if stressLevel > 0 {
		runStress(h.engine(), uint32(elementSize), stressLevel, iterations)
	}

	if watch {
		h.watchAndReboot()
		return
	}
}

// harness owns the current engine build and the scenario file it was
// built from, swapping both out wholesale on reboot.
type harness struct {
	path         string
	verbose      bool
	debugDefault bool

	mu  sync.RWMutex
	eng *gzguard.Engine

	watcher *fsnotify.Watcher
}

func newHarness(path string, verbose, debugDefault bool) (*harness, error) {
	h := &harness{path: path, verbose: verbose, debugDefault: debugDefault}

	if err := h.reboot(); err != nil {
		return nil, err
	}

	return h, nil
}

func (h *harness) engine() *gzguard.Engine {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.eng
}

// reboot re-reads the scenario file and rebuilds the engine from
// scratch, the way the original only ever re-reads boot-args once, at
// boot.
func (h *harness) reboot() error {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return fmt.Errorf("reading scenario file: %w", err)
	}

	tokens := strings.Fields(string(data))
	cfg := gzguard.ParseTokensWithDebugDefault(tokens, h.debugDefault)
	cfg.Verbose = h.verbose || cfg.Verbose

	eng := gzguard.NewEngine(cfg)
	eng.MarkVMReady()

	h.mu.Lock()
	h.eng = eng
	h.mu.Unlock()

	fmt.Fprintf(os.Stderr, "gzguard-harness: rebooted engine from %s (tokens: %v, enabled=%v)\n", h.path, tokens, cfg.Enabled)

	return nil
}

func (h *harness) watchAndReboot() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gzguard-harness: fsnotify: %v\n", err)
		return
	}
	h.watcher = w

	if err := w.Add(h.path); err != nil {
		fmt.Fprintf(os.Stderr, "gzguard-harness: watch %s: %v\n", h.path, err)
		return
	}

	fmt.Fprintf(os.Stderr, "gzguard-harness: watching %s for scenario changes (ctrl-c to exit)\n", h.path)

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := h.reboot(); err != nil {
				fmt.Fprintf(os.Stderr, "gzguard-harness: reboot failed: %v\n", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "gzguard-harness: watch error: %v\n", err)
		}
	}
}

func (h *harness) close() {
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}

// runStress exercises Alloc/Free from many goroutines against a single
// synthetic zone, reporting every integrity fault the engine raises
// instead of letting a panic take the whole process down -- a scripted
// fault-injection run is expected to trip these faults deliberately.
func runStress(eng *gzguard.Engine, elemSize uint32, workers, iterations int) {
	zone := gzguard.NewZone("gzguard-harness.stress", elemSize)
	eng.ZoneInit(zone)

	var faults int64
	var mu sync.Mutex

	g, _ := errgroup.WithContext(context.Background())

	for i := 0; i < workers; i++ {
		worker := i
		g.Go(func() error {
			rng := rand.New(rand.NewSource(int64(worker) + 1))

			for j := 0; j < iterations; j++ {
				runOneAllocation(eng, zone, rng, &mu, &faults)
			}

			return nil
		})
	}

	_ = g.Wait()

	fmt.Fprintf(os.Stderr, "gzguard-harness: stress complete, %d workers x %d iterations, %d faults reported\n",
		workers, iterations, faults)
}

func runOneAllocation(eng *gzguard.Engine, zone *gzguard.Zone, rng *rand.Rand, mu *sync.Mutex, faults *int64) {
	defer func() {
		if rec := recover(); rec != nil {
			mu.Lock()
			*faults++
			mu.Unlock()

			if ie, ok := rec.(*gzguard.IntegrityError); ok {
				fmt.Fprintf(os.Stderr, "gzguard-harness: integrity fault: %v\n", ie)
			}
		}
	}()

	p := eng.Alloc(zone, gzguard.AllocFlags{})
	if p == 0 {
		return
	}

	time.Sleep(time.Duration(rng.Intn(50)) * time.Microsecond)

	eng.Free(zone, p)
}
