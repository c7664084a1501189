package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"gridpilot.ai/internal/persistence/indexdb"
	persistlog "gridpilot.ai/internal/persistence/log"
	"gridpilot.ai/internal/sim/controller"
	"gridpilot.ai/internal/sim/tuning"
)

func main() {
	var (
		decisionsDir = flag.String("decisions", "./data/decisions", "dir containing decisions-*.jsonl.zst")
		tuningPath   = flag.String("tuning", "./configs/tuning.yaml", "tuning.yaml the server ran with")
		indexPath    = flag.String("index", "", "sqlite index to cross-check action counts against (optional)")
		onlySession  = flag.String("session", "", "replay one session only (optional)")
	)
	flag.Parse()

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}

	files, err := persistlog.ListDecisionFiles(*decisionsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list decisions:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no decision files in", *decisionsDir)
		os.Exit(2)
	}

	sessions := map[string][]persistlog.DecisionLogEntry{}
	for _, path := range files {
		err := persistlog.ReadDecisionFile(path, func(e persistlog.DecisionLogEntry) error {
			if *onlySession != "" && e.SessionID != *onlySession {
				return nil
			}
			sessions[e.SessionID] = append(sessions[e.SessionID], e)
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "read decisions:", err)
			os.Exit(1)
		}
	}

	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var idx *indexdb.SQLiteIndex
	if strings.TrimSpace(*indexPath) != "" {
		idx, err = indexdb.OpenSQLite(*indexPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open index:", err)
			os.Exit(1)
		}
		defer idx.Close()
	}

	params := tune.NavigationParams()
	total := 0
	for _, id := range ids {
		entries := sessions[id]
		n, counts, err := replaySession(entries, controller.WithParams(params))
		if err != nil {
			fmt.Fprintf(os.Stderr, "session %s: %v\n", id, err)
			os.Exit(1)
		}
		total += n
		fmt.Printf("session=%s mission=%s advanced=%v decisions=%d actions=%s\n",
			id, entries[0].MissionID, entries[0].Advanced, n, formatCounts(counts))

		if idx != nil {
			indexed, err := idx.ActionCounts(context.Background(), id)
			if err != nil {
				fmt.Fprintf(os.Stderr, "session %s: index: %v\n", id, err)
				os.Exit(1)
			}
			if formatCounts(indexed) != formatCounts(counts) {
				fmt.Printf("  index differs (rows may have been dropped): %s\n", formatCounts(indexed))
			}
		}
	}
	fmt.Printf("OK sessions=%d decisions=%d\n", len(ids), total)
}

// replaySession feeds the logged sensors of one session, in tick order, to a
// fresh controller and requires every action and phase to match the log.
func replaySession(entries []persistlog.DecisionLogEntry, opts ...controller.Option) (int, map[string]int, error) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Tick < entries[j].Tick })

	first := entries[0]
	c := controller.New(first.MissionID, first.Advanced, opts...)
	counts := map[string]int{}
	for i, e := range entries {
		if i > 0 && e.Tick == entries[i-1].Tick {
			return i, counts, fmt.Errorf("duplicate tick %d", e.Tick)
		}
		d := c.Decide(e.Sensor.Snapshot())
		if string(d.Action) != e.Action || string(d.Phase) != e.Phase {
			return i, counts, fmt.Errorf("tick %d: replayed %s/%s, logged %s/%s", e.Tick, d.Action, d.Phase, e.Action, e.Phase)
		}
		counts[e.Action]++
	}
	return len(entries), counts, nil
}

func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%d", k, m[k]))
	}
	return strings.Join(parts, ",")
}
