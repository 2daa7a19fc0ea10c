package command

import (
	"bufio"
	"fmt"
	"io"
	"log"

	"go.bug.st/serial"
)

// Line is one raw console line together with the writer its reply goes to.
type Line struct {
	Text  string
	Reply io.Writer
}

// ReadLines scans r and sends every non-empty line to out until r is
// exhausted, then closes out. Run it in its own goroutine; the main loop
// consumes out.
func ReadLines(r io.Reader, reply io.Writer, out chan<- Line) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		text := sc.Text()
		if text == "" {
			continue
		}
		out <- Line{Text: text, Reply: reply}
	}
	if err := sc.Err(); err != nil {
		log.Printf("command: console read: %v", err)
	}
}

// OpenSerialConsole opens a serial device as an operator console.
func OpenSerialConsole(device string, baud int) (io.ReadWriteCloser, error) {
	if baud <= 0 {
		baud = 115200
	}
	p, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open console %s: %w", device, err)
	}
	return p, nil
}
