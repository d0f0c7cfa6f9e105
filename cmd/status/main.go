// Command status prints what a running instance has persisted: the cached
// namespaces in Redis, the last snapshot in the state store and the size of
// each ledger table. It never talks to the exchange.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"hedge-bot/internal/cache"
	"hedge-bot/internal/config"
	"hedge-bot/internal/engine"
	"hedge-bot/internal/exec"
	"hedge-bot/internal/ledger"
	"hedge-bot/internal/state"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.example.yaml", "path to config file")
	envPath := flag.String("env", ".env", "path to .env file")
	timeout := flag.Duration("timeout", 15*time.Second, "overall timeout")
	flag.Parse()

	if err := config.LoadEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envPath, err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	creds, err := config.LoadStorageCredentials(cfg)
	if err != nil {
		fatalf("load credentials: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	failed := false
	if err := printCache(ctx, cfg, creds); err != nil {
		fmt.Fprintf(os.Stderr, "cache: %v\n", err)
		failed = true
	}
	if err := printSnapshot(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "state: %v\n", err)
		failed = true
	}
	if err := printLedger(ctx, cfg, creds); err != nil {
		fmt.Fprintf(os.Stderr, "ledger: %v\n", err)
		failed = true
	}
	if failed {
		os.Exit(1)
	}
}

func printCache(ctx context.Context, cfg *config.Config, creds config.Credentials) error {
	facade, err := cache.New(ctx, cache.Options{
		Addr:     cfg.Redis.Addr,
		Password: creds.RedisPassword,
		DB:       cfg.Redis.DB,
		Account:  cfg.Account.ID,
		Pair:     cfg.Account.Pair,
	}, zap.NewNop())
	if err != nil {
		return err
	}
	defer facade.Close()

	t := newTable(fmt.Sprintf("cache %s %s", cfg.Account.ID, cfg.Account.Pair))
	t.AppendHeader(table.Row{"Namespace", "Field", "Value"})
	for _, ns := range cache.Namespaces() {
		fields, err := facade.Namespace(ctx, ns)
		if err != nil {
			return fmt.Errorf("read %s: %w", ns, err)
		}
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			t.AppendRow(table.Row{ns, name, formatFloat(fields[name])})
		}
	}
	t.Render()
	return nil
}

func printSnapshot(ctx context.Context, cfg *config.Config) error {
	store, err := state.Open(cfg.State)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := printPending(ctx, store); err != nil {
		return err
	}

	rec, ok, err := state.LoadSnapshot(ctx, store, cfg.Account.ID, cfg.Account.Pair)
	if err != nil {
		return err
	}
	t := newTable("last snapshot")
	if !ok {
		t.AppendRow(table.Row{"(none)"})
		t.Render()
		return nil
	}
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"cycle", rec.Cycle},
		{"state", rec.State},
		{"price", formatFloat(rec.Price)},
		{"long", formatFloat(rec.LongAmount)},
		{"short", formatFloat(rec.ShortAmount)},
		{"entry", formatFloat(rec.EntryPrice)},
		{"pnl", formatFloat(rec.PnL)},
		{"roe %", formatFloat(rec.ROE)},
		{"base balance", formatFloat(rec.BaseBalance)},
		{"equity", formatFloat(rec.Equity)},
		{"balance ratio", formatFloat(rec.BalanceRatio)},
		{"updated", time.UnixMilli(rec.UpdatedAtMS).UTC().Format(time.RFC3339)},
	})
	t.Render()
	return nil
}

// printPending lists submissions whose outcome was never committed and the
// order reports still held for replay.
func printPending(ctx context.Context, store state.Store) error {
	t := newTable("pending submissions")
	t.AppendHeader(table.Row{"Key", "Value"})
	for _, prefix := range []string{engine.IntentPrefix, exec.ReportPrefix} {
		entries, err := store.Scan(ctx, prefix)
		if err != nil {
			return fmt.Errorf("scan %s: %w", prefix, err)
		}
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.AppendRow(table.Row{k, entries[k]})
		}
	}
	if t.Length() == 0 {
		t.AppendRow(table.Row{"(none)", ""})
	}
	t.Render()
	return nil
}

func printLedger(ctx context.Context, cfg *config.Config, creds config.Credentials) error {
	writer, err := ledger.Open(cfg.Ledger, creds.LedgerDSN, zap.NewNop())
	if err != nil {
		return err
	}
	defer writer.Close()

	t := newTable("ledger " + cfg.Ledger.Driver)
	t.AppendHeader(table.Row{"Table", "Rows", "Latest"})
	for _, tbl := range ledger.TablesFor(cfg.Account).All() {
		count, err := writer.Count(ctx, tbl)
		if err != nil {
			t.AppendRow(table.Row{tbl.Name, "-", err.Error()})
			continue
		}
		latest := "-"
		if ts, ok, err := writer.LastTime(ctx, tbl); err == nil && ok {
			latest = ts.UTC().Format(time.RFC3339)
		}
		t.AppendRow(table.Row{tbl.Name, count, latest})
	}
	t.Render()
	return nil
}

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(title)
	t.SetStyle(table.StyleLight)
	return t
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
