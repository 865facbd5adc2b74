package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

var spinnerFrames = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

const spinnerInterval = 80 * time.Millisecond

// Spinner animates a message on stderr while a pack or unpack runs. When
// stderr is not a terminal it prints the message once instead.
type Spinner struct {
	message string
	out     io.Writer
	tty     bool
	stop    chan struct{}
	stopped chan struct{}
}

func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		out:     os.Stderr,
		tty:     isatty.IsTerminal(os.Stderr.Fd()),
	}
}

func (s *Spinner) Start() {
	if !s.tty {
		fmt.Fprintf(s.out, "%s...\n", s.message)
		return
	}
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.run()
}

func (s *Spinner) run() {
	defer close(s.stopped)
	tick := time.NewTicker(spinnerInterval)
	defer tick.Stop()
	for i := 0; ; i++ {
		fmt.Fprintf(s.out, "\r%s %s", Bold.Render(string(spinnerFrames[i%len(spinnerFrames)])), s.message)
		select {
		case <-s.stop:
			fmt.Fprint(s.out, "\r\033[K")
			return
		case <-tick.C:
		}
	}
}

// Stop clears the spinner line. It is safe to call when Start printed a
// plain message instead.
func (s *Spinner) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.stopped
	s.stop = nil
}
