package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/comalice/scxml"
	"github.com/comalice/scxml/host"
	"github.com/comalice/scxml/internal/eval"
	"github.com/comalice/scxml/internal/production"
)

var (
	runEvents  []string
	saveDir    string
	sessionID  string
	waitSecs   int
)

var runCmd = &cobra.Command{
	Use:   "run <chart.scxml>",
	Short: "Start an instance and drive it through a sequence of events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		doc, err := scxml.Parse(f, scxml.ParseOptions{})
		f.Close()
		if err != nil {
			return fmt.Errorf("invalid chart: %w", err)
		}

		opts := []scxml.Option{host.WithLogger(logger)}
		if sessionID != "" {
			opts = append(opts, host.WithSessionID(sessionID))
		}
		h := scxml.NewHost(doc, eval.NewDefaultEvaluator(), opts...)

		ctx := context.Background()
		if err := h.Start(ctx); err != nil {
			return fmt.Errorf("start: %w", err)
		}
		defer h.Stop()

		printConfig := func() {
			fmt.Printf("active: %v\n", h.ActiveAtomicStates())
		}
		printConfig()

		for _, name := range runEvents {
			if err := h.Send(name, nil); err != nil {
				return fmt.Errorf("send %q: %w", name, err)
			}
			time.Sleep(5 * time.Millisecond)
			printConfig()
		}

		if waitSecs > 0 {
			waitCtx, cancel := context.WithTimeout(ctx, time.Duration(waitSecs)*time.Second)
			defer cancel()
			if final, ok := h.Wait(waitCtx); ok {
				fmt.Printf("terminal: %s\n", final.FinalStateID)
			}
		}

		snap := h.Snapshot()
		if dm, err := json.MarshalIndent(snap.Datamodel, "", "  "); err == nil {
			fmt.Printf("datamodel: %s\n", dm)
		}

		if saveDir != "" {
			p, err := production.NewJSONPersister(saveDir)
			if err != nil {
				return fmt.Errorf("persister: %w", err)
			}
			id := sessionID
			if id == "" {
				id = "default"
			}
			if err := p.Save(ctx, id, snap); err != nil {
				return fmt.Errorf("save snapshot: %w", err)
			}
		}

		return nil
	},
}

func init() {
	runCmd.Flags().StringArrayVar(&runEvents, "send", nil, "event name to send, in order (repeatable)")
	runCmd.Flags().StringVar(&saveDir, "save", "", "directory to persist the final snapshot as JSON")
	runCmd.Flags().StringVar(&sessionID, "session", "", "session id for the instance and any saved snapshot")
	runCmd.Flags().IntVar(&waitSecs, "wait", 0, "seconds to wait for a final state after the event sequence")
}
