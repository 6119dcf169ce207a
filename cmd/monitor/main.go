package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"

	"scalping-core/pkg/broker"
	"scalping-core/pkg/broker/mt5"
	"scalping-core/pkg/config"
)

// monitor is the operator's terminal dashboard: account snapshot, open
// positions and recent deal history, refreshed on an interval. Read-only;
// it never sends orders.
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	interval := flag.Duration("interval", 5*time.Second, "refresh interval")
	once := flag.Bool("once", false, "print one snapshot and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	var raw broker.Gateway
	if cfg.UseMockGateway {
		raw = broker.NewMock("EURUSD", 1.10000)
	} else {
		raw = mt5.New(cfg.BridgeURL)
	}
	gw := broker.Serialize(raw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	for {
		render(ctx, gw)
		if *once {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(*interval):
		}
	}
}

func render(ctx context.Context, gw broker.Gateway) {
	fmt.Printf("\n=== %s ===\n", time.Now().Format("2006-01-02 15:04:05"))

	if info, err := gw.AccountInfo(ctx); err != nil {
		fmt.Printf("account: unavailable (%v)\n", err)
	} else {
		fmt.Printf("%s | balance %.2f | equity %.2f | margin free %.2f | floating %.2f %s\n",
			info.Server, info.Balance, info.Equity, info.MarginFree, info.Profit, info.Currency)
	}

	positions, err := gw.Positions(ctx, "")
	if err != nil {
		fmt.Printf("positions: unavailable (%v)\n", err)
	} else if len(positions) == 0 {
		fmt.Println("no open positions")
	} else {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Ticket", "Symbol", "Side", "Lots", "Open", "Current", "SL", "TP", "Profit", "Comment")
		for _, p := range positions {
			table.Append(
				fmt.Sprintf("%d", p.Ticket),
				p.Symbol,
				string(p.Side),
				fmt.Sprintf("%.2f", p.Volume),
				fmt.Sprintf("%.5f", p.OpenPrice),
				fmt.Sprintf("%.5f", p.CurrentPrice),
				fmt.Sprintf("%.5f", p.SL),
				fmt.Sprintf("%.5f", p.TP),
				fmt.Sprintf("%.2f", p.Profit),
				p.Comment,
			)
		}
		table.Render()
	}

	deals, err := gw.HistoryDeals(ctx, time.Now().Add(-24*time.Hour), time.Now())
	if err != nil {
		fmt.Printf("deals: unavailable (%v)\n", err)
		return
	}
	closed := make([]broker.Deal, 0, len(deals))
	total := 0.0
	for _, d := range deals {
		if d.Entry == broker.DealEntryOut {
			closed = append(closed, d)
			total += d.Profit
		}
	}
	if len(closed) == 0 {
		fmt.Println("no closed deals in the last 24h")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Time", "Symbol", "Lots", "Price", "Profit", "Comment")
	for _, d := range closed {
		table.Append(
			d.Time.Format("15:04:05"),
			d.Symbol,
			fmt.Sprintf("%.2f", d.Volume),
			fmt.Sprintf("%.5f", d.Price),
			fmt.Sprintf("%.2f", d.Profit),
			d.Comment,
		)
	}
	table.Render()
	fmt.Printf("24h realized: %.2f over %d deals\n", total, len(closed))
}
