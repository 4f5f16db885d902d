package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/embercef/bridge"
	"github.com/embercef/bridge/foreignsim"
	"github.com/embercef/bridge/registry"
	"github.com/embercef/bridge/wrap"
)

func main() {
	var (
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		stormN      = flag.Int("storm", 1000, "Guest-side add-ref/release rounds for the storm demo")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	log, err := buildLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	bridge.SetLogger(log)

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*stormN); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runDemo(*stormN); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// eventPrinter logs pin lifecycle events to stdout.
type eventPrinter struct {
	mu sync.Mutex
}

func (p *eventPrinter) OnObjectEvent(e registry.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Printf("  [%s] handle=%d kind=%s\n", e.Type, e.Handle, e.Kind)
}

// demoClient implements every capability the guest exercises.
type demoClient struct {
	mu       sync.Mutex
	complete int
	bytes    int
	last     int64
}

func (c *demoClient) OnComplete(req wrap.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.complete++
	fmt.Printf("  on-complete: url=%s status=%d\n", req.URL(), req.Status())
}

func (c *demoClient) OnUploadProgress(req wrap.Request, current, total int64) {}

func (c *demoClient) OnDownloadProgress(req wrap.Request, current, total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = current
	fmt.Printf("  progress: %d/%d\n", current, total)
}

func (c *demoClient) OnData(req wrap.Request, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytes += len(data)
	fmt.Printf("  on-data: %q\n", data)
}

func runDemo(stormN int) error {
	ctx := context.Background()

	table := registry.NewTable()
	table.Subscribe(&eventPrinter{})

	driver := foreignsim.NewDriver(foreignsim.WithRegistry(table))
	guest, err := foreignsim.NewGuestSim(ctx, foreignsim.WithGuestRegistry(table))
	if err != nil {
		return err
	}
	defer guest.Close(ctx)

	client := wrap.WrapClient(&demoClient{})
	defer client.Release()
	req := driver.NewRequest("https://example.com/inspect-demo")
	defer req.Release()
	comp := wrap.WrapCompletion(func(path string, ok bool) {
		fmt.Printf("  completion: path=%s ok=%v\n", path, ok)
	})
	defer comp.Release()

	fmt.Println("Pinning objects:")
	hClient, err := driver.Export(wrap.KindClient, client.Base())
	if err != nil {
		return err
	}
	hReq, err := driver.Export(wrap.KindRequest, req.Base())
	if err != nil {
		return err
	}
	hComp, err := driver.Export(wrap.KindCompletion, comp.Base())
	if err != nil {
		return err
	}

	fmt.Println("\nDriving the guest:")
	if err := guest.Drive(ctx, hClient, hReq, hComp); err != nil {
		return err
	}

	fmt.Printf("\nStorming %d rounds against the client:\n", stormN)
	if err := guest.Storm(ctx, hClient, uint32(stormN)); err != nil {
		return err
	}
	// Local handle plus the pin: exactly two units if the storm balanced.
	fmt.Printf("  balanced: %v\n", client.HasAtLeastOneRef() && !client.HasOneRef())

	fmt.Println("\nWithdrawing pins:")
	for _, h := range []registry.Handle{hClient, hReq, hComp} {
		if err := driver.Withdraw(h); err != nil {
			return err
		}
	}

	fmt.Printf("\nLive pins: %d\n", table.Len())
	return nil
}
