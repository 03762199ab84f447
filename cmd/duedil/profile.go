package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"

	"github.com/spf13/cobra"

	"duedil/internal/services/session"
)

// followPrinter builds a session listener that prints each new log line
// once and closes done when the run reaches a terminal state.
func followPrinter() (func(session.State), <-chan struct{}) {
	done := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	printed := 0
	return func(st session.State) {
		mu.Lock()
		if printed > len(st.Logs) {
			printed = 0
		}
		for _, e := range st.Logs[printed:] {
			fmt.Printf("[%s] %s\n", e.Agent, e.Message)
		}
		printed = len(st.Logs)
		mu.Unlock()
		if st.Generated {
			once.Do(func() { close(done) })
		}
	}, done
}

func printSummary(st session.State) {
	if st.Profile == nil {
		return
	}
	fmt.Printf("\nprofile generated for %s (risk level %d, status %s)\n",
		st.Profile.CompanyName, st.Profile.RiskLevel, st.Profile.Status)
}

var startCmd = &cobra.Command{
	Use:   "start <company-url>",
	Short: "Start profile generation and follow it to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		listener, done := followPrinter()
		sess := newSession(newClient(), session.WithListener(listener))
		defer sess.Close()
		if err := sess.Start(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("generation started, waiting for agents...")

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		printSummary(sess.State())
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <company-id>",
	Short: "Attach to a run already in progress and follow it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("company id: %w", err)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		listener, done := followPrinter()
		sess := newSession(newClient(), session.WithListener(listener))
		defer sess.Close()
		if err := sess.Load(ctx, id); err != nil {
			return err
		}
		st := sess.State()
		if !st.Started {
			return fmt.Errorf("company %d has no run to follow", id)
		}
		if st.Generated {
			fmt.Println("run already finished")
			if err := sess.Resume(ctx, st.URL); err == nil {
				printSummary(sess.State())
			}
			return nil
		}

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		printSummary(sess.State())
		return nil
	},
}

var setAsList bool

var setCmd = &cobra.Command{
	Use:   "set <company-url> <key> <value>",
	Short: "Overwrite one field of a generated profile",
	Long:  "Merges a single key into the saved profile document and writes the whole document back. Dotted keys address one level of nesting, e.g. address.city.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess := newSession(newClient())
		defer sess.Close()
		if err := sess.Resume(cmd.Context(), args[0]); err != nil {
			return err
		}
		if err := sess.UpdateProfileKey(cmd.Context(), args[1], fieldValue(args[2])); err != nil {
			return err
		}
		fmt.Println("updated")
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <company-url>",
	Short: "Delete the profile tracked for a company",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess := newSession(newClient())
		defer sess.Close()
		if err := sess.Resume(cmd.Context(), args[0]); err != nil {
			return err
		}
		if err := sess.Delete(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("deleted")
		return nil
	},
}

// fieldValue interprets the raw CLI value. With --list, comma separated
// values become the array the backend stores for list fields.
func fieldValue(raw string) any {
	if setAsList {
		return session.SplitList(raw)
	}
	return raw
}

func init() {
	setCmd.Flags().BoolVar(&setAsList, "list", false, "treat the value as a comma separated list")
	companySetCmd.Flags().BoolVar(&setAsList, "list", false, "treat the value as a comma separated list")
}
