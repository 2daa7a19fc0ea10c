package command

import (
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/sweeney/temp-logger/internal/status"
)

// Store is the local log as seen by the console.
type Store interface {
	Files() ([]string, error)
	Dump(w io.Writer, name string) error
	DumpAll(w io.Writer) error
	ForceRotate()
}

// Pauser controls acquisition.
type Pauser interface {
	SetPaused(bool)
	Paused() bool
}

// Clock accepts an operator time sync.
type Clock interface {
	Sync(wall time.Time)
}

// Executor runs commands against the daemon's components.
type Executor struct {
	Store  Store
	Pauser Pauser
	Clock  Clock
	// Status returns the current daemon state for the S command.
	Status func() status.Snapshot
}

// Execute runs cmd and writes its output to w. Errors are also written to w
// as an "ERR" line.
func (e *Executor) Execute(cmd Command, w io.Writer) error {
	err := e.execute(cmd, w)
	if err != nil {
		fmt.Fprintf(w, "ERR %v\n", err)
	}
	return err
}

func (e *Executor) execute(cmd Command, w io.Writer) error {
	switch cmd.Kind {
	case DumpAll:
		return e.Store.DumpAll(w)
	case DumpFile:
		return e.Store.Dump(w, cmd.File)
	case List:
		files, err := e.Store.Files()
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(w, f)
		}
		fmt.Fprintf(w, "%d files\n", len(files))
		return nil
	case Pause:
		paused := cmd.Paused
		if cmd.Toggle {
			paused = !e.Pauser.Paused()
		}
		e.Pauser.SetPaused(paused)
		if paused {
			log.Printf("command: acquisition paused")
			fmt.Fprintln(w, "OK paused")
		} else {
			log.Printf("command: acquisition resumed")
			fmt.Fprintln(w, "OK running")
		}
		return nil
	case Status:
		writeStatus(w, e.Status())
		return nil
	case TimeSync:
		e.Clock.Sync(cmd.Time)
		e.Store.ForceRotate()
		log.Printf("command: wall clock set to %s", cmd.Time.Format(time.RFC3339))
		fmt.Fprintf(w, "OK time %s\n", cmd.Time.Format(time.RFC3339))
		return nil
	case Help:
		io.WriteString(w, HelpText)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknown, cmd.Kind)
}

func writeStatus(w io.Writer, s status.Snapshot) {
	state := "running"
	if s.Paused {
		state = "paused"
	}
	clock := "uptime"
	if s.ClockSynced {
		clock = "synced"
	}
	logFile := s.LogFile
	if !s.LogEnabled {
		logFile = "disabled"
	} else if logFile == "" {
		logFile = "none"
	}

	fmt.Fprintf(w, "device:    %s/%s\n", s.Config.SiteID, s.Config.DeviceID)
	fmt.Fprintf(w, "state:     %s\n", state)
	fmt.Fprintf(w, "clock:     %s\n", clock)
	fmt.Fprintf(w, "uptime:    %s\n", s.Uptime().Truncate(time.Second))
	fmt.Fprintf(w, "sensors:   %d\n", len(s.Sensors))
	for _, sn := range s.Sensors {
		v := "null"
		if sn.LastOK {
			v = fmt.Sprintf("%.2f", sn.LastValue)
		}
		fmt.Fprintf(w, "  %-6s %s/%d %s %s\n", sn.Name, sn.Bus, sn.Pin, sn.ROM, v)
	}
	fmt.Fprintf(w, "queue:     %d/%d (%s, backoff %s)\n", s.QueueDepth, s.Config.QueueCapacity, strings.ToLower(s.RetryPhase), s.Backoff)
	fmt.Fprintf(w, "log:       %s (%d bytes)\n", logFile, s.LogSize)
	fmt.Fprintf(w, "delivered: %d\n", s.Counters.Delivered)
	fmt.Fprintf(w, "evicted:   %d\n", s.Counters.Evictions)
	fmt.Fprintf(w, "dead:      %d (%d lost, %d stored)\n", s.Counters.DeadLettered+s.Counters.DeadLetterLost, s.Counters.DeadLetterLost, s.OverflowRecords)
}
