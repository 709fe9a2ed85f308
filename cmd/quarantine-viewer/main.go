// Command quarantine-viewer is a read-only operator tool over the bridge's
// store: it lists rows parked in quarantine and rows still sitting
// unprocessed, prints a summary table, optionally exports CSVs, and
// optionally serves a live-tail websocket feed of the same counts.
// Grounded on original_source/quarantine_viewer.py.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/usdbridge/bridge/internal/config"
	"github.com/usdbridge/bridge/internal/store"
	"github.com/usdbridge/bridge/pkg/logging"
)

func main() {
	var (
		configFile = flag.String("config", "", "YAML config overlay path (env vars always win)")
		showUSDC   = flag.Bool("usdc", false, "Show only Chain-S (USDC-side) rows")
		showUSDD   = flag.Bool("usdd", false, "Show only Chain-N (USDD-side) rows")
		export     = flag.Bool("export", false, "Write quarantine_*.csv / pending_*.csv in the current directory")
		watch      = flag.Bool("watch", false, "Serve a live-tail websocket feed instead of printing once")
		watchAddr  = flag.String("watch-addr", ":8088", "Listen address for -watch")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}

	st, err := store.New(&store.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		log.Fatal("failed to open store", "error", err)
	}
	defer st.Close()

	showS := !*showUSDD
	showN := !*showUSDC
	if *showUSDC && *showUSDD {
		showS, showN = true, true
	}

	if *watch {
		serveWatch(log, st, *watchAddr, showS, showN)
		return
	}

	snap, err := loadSnapshot(st)
	if err != nil {
		log.Fatal("failed to load snapshot", "error", err)
	}

	printSnapshot(snap, showS, showN)

	if *export {
		if err := exportCSVs(snap, showS, showN); err != nil {
			log.Fatal("csv export failed", "error", err)
		}
		fmt.Println("\nCSV files written to the current directory.")
	}
}

// snapshot is everything quarantine-viewer reports on, read once per call.
type snapshot struct {
	quarantinedS []store.QuarantinedDepositS
	quarantinedN []store.QuarantinedCreditN
	pendingS     []store.UnprocessedDepositS
	pendingN     []store.UnprocessedCreditN
}

func loadSnapshot(st *store.Store) (*snapshot, error) {
	qs, err := st.GetQuarantinedDepositsS()
	if err != nil {
		return nil, fmt.Errorf("quarantined deposits: %w", err)
	}
	qn, err := st.GetQuarantinedCreditsN()
	if err != nil {
		return nil, fmt.Errorf("quarantined credits: %w", err)
	}
	ps, err := st.GetUnprocessedDepositsS()
	if err != nil {
		return nil, fmt.Errorf("unprocessed deposits: %w", err)
	}
	pn, err := st.GetUnprocessedCreditsN()
	if err != nil {
		return nil, fmt.Errorf("unprocessed credits: %w", err)
	}
	return &snapshot{quarantinedS: qs, quarantinedN: qn, pendingS: ps, pendingN: pn}, nil
}

func printSnapshot(s *snapshot, showS, showN bool) {
	var totalQS, totalQN, totalPS, totalPN int64
	for _, r := range s.quarantinedS {
		totalQS += r.QuarantinedUnits
	}
	for _, r := range s.quarantinedN {
		totalQN += r.AmountUSDDUnits
	}
	for _, r := range s.pendingS {
		totalPS += r.AmountUSDCUnits
	}
	for _, r := range s.pendingN {
		totalPN += r.AmountUSDDUnits
	}

	fmt.Println("=== Bridge quarantine/pending summary ===")
	if showS {
		fmt.Printf("Chain-S quarantined: %d rows, %d units\n", len(s.quarantinedS), totalQS)
		fmt.Printf("Chain-S pending:     %d rows, %d units\n", len(s.pendingS), totalPS)
	}
	if showN {
		fmt.Printf("Chain-N quarantined: %d rows, %d units\n", len(s.quarantinedN), totalQN)
		fmt.Printf("Chain-N pending:     %d rows, %d units\n", len(s.pendingN), totalPN)
	}
	fmt.Println()

	if showS && len(s.quarantinedS) > 0 {
		printTable("Chain-S quarantined deposits",
			[]string{"sig", "timestamp", "from", "amount", "quarantine_sig", "status"},
			rowsFromQuarantinedS(s.quarantinedS))
	}
	if showN && len(s.quarantinedN) > 0 {
		printTable("Chain-N quarantined credits",
			[]string{"txid", "timestamp", "from", "amount", "sig", "status"},
			rowsFromQuarantinedN(s.quarantinedN))
	}
}

func rowsFromQuarantinedS(rs []store.QuarantinedDepositS) [][]string {
	out := make([][]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, []string{
			r.Sig, fmt.Sprintf("%d", r.Timestamp), r.FromAddress,
			fmt.Sprintf("%d", r.AmountUSDCUnits), r.QuarantineSig, string(r.Status),
		})
	}
	return out
}

func rowsFromQuarantinedN(rs []store.QuarantinedCreditN) [][]string {
	out := make([][]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, []string{
			r.Txid, fmt.Sprintf("%d", r.Timestamp), r.FromAddress,
			fmt.Sprintf("%d", r.AmountUSDDUnits), r.Sig, string(r.Status),
		})
	}
	return out
}

// printTable renders rows as a fixed-width ASCII table, column widths sized
// to the widest cell in each column (including the header).
func printTable(title string, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	fmt.Println(title)
	printRow(header, widths)
	sep := make([]string, len(header))
	for i, w := range widths {
		sep[i] = strings.Repeat("-", w)
	}
	printRow(sep, widths)
	for _, row := range rows {
		printRow(row, widths)
	}
	fmt.Println()
}

func printRow(cells []string, widths []int) {
	padded := make([]string, len(cells))
	for i, c := range cells {
		padded[i] = c + strings.Repeat(" ", widths[i]-len(c))
	}
	fmt.Println(strings.Join(padded, "  "))
}

func exportCSVs(s *snapshot, showS, showN bool) error {
	if showS {
		if err := writeCSV("quarantine_usdc.csv",
			[]string{"sig", "timestamp", "from_address", "amount_usdc_units", "memo", "quarantine_sig", "quarantined_units", "status"},
			quarantinedSToCSV(s.quarantinedS)); err != nil {
			return err
		}
		if err := writeCSV("pending_usdc.csv",
			[]string{"sig", "timestamp", "memo", "from_address", "amount_usdc_units", "status", "txid"},
			pendingSToCSV(s.pendingS)); err != nil {
			return err
		}
	}
	if showN {
		if err := writeCSV("quarantine_usdd.csv",
			[]string{"txid", "timestamp", "amount_usdd_units", "from_address", "to_address", "owner", "sig", "status"},
			quarantinedNToCSV(s.quarantinedN)); err != nil {
			return err
		}
		if err := writeCSV("pending_usdd.csv",
			[]string{"txid", "timestamp", "amount_usdd_units", "from_address", "to_address", "owner_from_address", "confirmations", "status"},
			pendingNToCSV(s.pendingN)); err != nil {
			return err
		}
	}
	return nil
}

func quarantinedSToCSV(rs []store.QuarantinedDepositS) [][]string {
	out := make([][]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, []string{r.Sig, fmt.Sprintf("%d", r.Timestamp), r.FromAddress,
			fmt.Sprintf("%d", r.AmountUSDCUnits), r.Memo, r.QuarantineSig,
			fmt.Sprintf("%d", r.QuarantinedUnits), string(r.Status)})
	}
	return out
}

func pendingSToCSV(rs []store.UnprocessedDepositS) [][]string {
	out := make([][]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, []string{r.Sig, fmt.Sprintf("%d", r.Timestamp), r.Memo, r.FromAddress,
			fmt.Sprintf("%d", r.AmountUSDCUnits), string(r.Status), r.Txid})
	}
	return out
}

func quarantinedNToCSV(rs []store.QuarantinedCreditN) [][]string {
	out := make([][]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, []string{r.Txid, fmt.Sprintf("%d", r.Timestamp),
			fmt.Sprintf("%d", r.AmountUSDDUnits), r.FromAddress, r.ToAddress, r.Owner, r.Sig, string(r.Status)})
	}
	return out
}

func pendingNToCSV(rs []store.UnprocessedCreditN) [][]string {
	out := make([][]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, []string{r.Txid, fmt.Sprintf("%d", r.Timestamp),
			fmt.Sprintf("%d", r.AmountUSDDUnits), r.FromAddress, r.ToAddress, r.OwnerFromAddress,
			fmt.Sprintf("%d", r.Confirmations), string(r.Status)})
	}
	return out
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func serveWatch(log *logging.Logger, st *store.Store, addr string, showS, showN bool) {
	hub := newCountsHub(log)
	go hub.run()
	go pollCounts(context.Background(), st, hub, showS, showN)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.handleWS)
	log.Info("quarantine-viewer watch mode serving", "addr", addr, "path", "/ws")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("watch server failed", "error", err)
	}
}

func pollCounts(ctx context.Context, st *store.Store, hub *countsHub, showS, showN bool) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		snap, err := loadSnapshot(st)
		if err == nil {
			hub.broadcast(countsEvent{
				QuarantinedS: len(snap.quarantinedS),
				QuarantinedN: len(snap.quarantinedN),
				PendingS:     len(snap.pendingS),
				PendingN:     len(snap.pendingN),
			})
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
