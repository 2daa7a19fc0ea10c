// Package command parses and executes operator console commands. Commands
// read the log and queue state; only pause and time-sync change anything.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrUnknown is returned for a line that is not a command.
var ErrUnknown = errors.New("unknown command")

// Kind identifies a command.
type Kind int

const (
	DumpAll Kind = iota
	DumpFile
	List
	Pause
	Status
	TimeSync
	Help
)

func (k Kind) String() string {
	switch k {
	case DumpAll:
		return "dump"
	case DumpFile:
		return "dump-file"
	case List:
		return "list"
	case Pause:
		return "pause"
	case Status:
		return "status"
	case TimeSync:
		return "time-sync"
	case Help:
		return "help"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Command is one parsed console line.
type Command struct {
	Kind Kind
	// File is the file name for DumpFile.
	File string
	// Toggle is true for a bare P; otherwise Paused is the requested state.
	Toggle bool
	Paused bool
	// Time is the wall clock for TimeSync.
	Time time.Time
}

// Parse reads one line. Command letters are case-insensitive.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, fmt.Errorf("%w: empty line", ErrUnknown)
	}

	op := strings.ToUpper(line[:1])
	arg := strings.TrimSpace(line[1:])

	switch op {
	case "D":
		if arg != "" {
			return Command{}, fmt.Errorf("%w: %q", ErrUnknown, line)
		}
		return Command{Kind: DumpAll}, nil
	case "F":
		name, err := fileName(arg)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: DumpFile, File: name}, nil
	case "L":
		return Command{Kind: List}, nil
	case "P":
		switch arg {
		case "":
			return Command{Kind: Pause, Toggle: true}, nil
		case "1":
			return Command{Kind: Pause, Paused: true}, nil
		case "0":
			return Command{Kind: Pause, Paused: false}, nil
		}
		return Command{}, fmt.Errorf("%w: pause takes 0 or 1, got %q", ErrUnknown, arg)
	case "S":
		return Command{Kind: Status}, nil
	case "T":
		t, err := parseTime(arg)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: TimeSync, Time: t}, nil
	case "?", "H":
		return Command{Kind: Help}, nil
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknown, line)
}

// fileName accepts a date (YYYYMMDD or UPnnnnnn) or a full stored file name.
func fileName(arg string) (string, error) {
	if arg == "" {
		return "", fmt.Errorf("%w: F needs a date, e.g. F20240601", ErrUnknown)
	}
	if strings.ContainsAny(arg, `/\`) {
		return "", fmt.Errorf("%w: bad file name %q", ErrUnknown, arg)
	}
	if strings.Contains(arg, ".") {
		return strings.ToUpper(arg), nil
	}
	return strings.ToUpper(arg) + ".CSV", nil
}

// parseTime accepts RFC3339 or unix seconds.
func parseTime(arg string) (time.Time, error) {
	if arg == "" {
		return time.Time{}, fmt.Errorf("%w: T needs a time (RFC3339 or unix seconds)", ErrUnknown)
	}
	if secs, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, arg)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad time %q: %v", ErrUnknown, arg, err)
	}
	return t.UTC(), nil
}

// HelpText lists the commands.
const HelpText = `commands:
  D            dump all stored files
  F<YYYYMMDD>  dump one day's log file
  L            list stored files
  P            toggle acquisition pause (P0 resume, P1 pause)
  S            status
  T<time>      set wall clock (RFC3339 or unix seconds)
  ? or H       this help
`
