package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/banshee-data/lmsctl/internal/dispatch"
	"github.com/banshee-data/lmsctl/internal/driver"
	"github.com/banshee-data/lmsctl/internal/registry"
	"github.com/banshee-data/lmsctl/internal/scan"
	"github.com/banshee-data/lmsctl/internal/scanplot"
	"github.com/banshee-data/lmsctl/internal/serialport"
)

const prompt = "lmsctl> "

// shell is the interactive host: it reads command lines, runs meta commands
// itself and hands everything else to the dispatcher.
type shell struct {
	out    io.Writer
	errOut io.Writer

	disp        *dispatch.Dispatcher
	defaultBaud driver.Baud
	interactive bool
	jsonOut     bool
	listPorts   func() ([]serialport.PortInfo, error)

	mu       sync.Mutex
	hooks    []func()
	exitOnce sync.Once

	last *scan.Record
}

func newShell(out, errOut io.Writer) *shell {
	return &shell{
		out:         out,
		errOut:      errOut,
		defaultBaud: driver.Baud9600,
		listPorts:   serialport.ListPorts,
	}
}

func (s *shell) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	io.WriteString(s.out, msg)
}

func (s *shell) Warnf(format string, args ...any) {
	fmt.Fprintf(s.errOut, "warning: "+format+"\n", args...)
}

func (s *shell) AtExit(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// runExitHooks runs every registered hook once, newest first. Later calls do
// nothing.
func (s *shell) runExitHooks() {
	s.exitOnce.Do(func() {
		s.mu.Lock()
		hooks := s.hooks
		s.hooks = nil
		s.mu.Unlock()
		for i := len(hooks) - 1; i >= 0; i-- {
			hooks[i]()
		}
	})
}

// run reads lines from r until EOF or quit.
func (s *shell) run(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for {
		if s.interactive {
			fmt.Fprint(s.out, prompt)
		}
		if !scanner.Scan() {
			break
		}
		if quit := s.exec(scanner.Text()); quit {
			return nil
		}
	}
	return scanner.Err()
}

// exec runs one line. It reports whether the shell should stop.
func (s *shell) exec(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return false
	}
	name, args, err := dispatch.ParseLine(line)
	if err != nil {
		s.reportError(err)
		return false
	}

	switch strings.ToLower(name) {
	case "quit", "exit":
		return true
	case "help":
		s.help()
		return false
	case "ports":
		s.ports()
		return false
	case "plot":
		s.plot(args)
		return false
	case "stats":
		s.stats()
		return false
	case "init":
		if len(args) == 1 {
			args = append(args, float64(s.defaultBaud))
		}
	}

	result, err := s.disp.Dispatch(name, args...)
	if err != nil {
		s.reportError(err)
		return false
	}
	s.printResult(result)
	return false
}

func (s *shell) reportError(err error) {
	fmt.Fprintf(s.errOut, "error: %v\n", err)
}

func (s *shell) printResult(result any) {
	switch v := result.(type) {
	case nil:
		return
	case registry.Descriptor:
		if s.jsonOut {
			s.printJSON(v)
			return
		}
		fmt.Fprintf(s.out, "%s: family=%s units=%s mode=%s\n", v.Path, v.Family, v.Units, v.Mode)
	case scan.Record:
		s.last = &v
		if s.jsonOut {
			s.printJSON(v)
			return
		}
		fmt.Fprintf(s.out, "grabbed %d samples (fov %.0f, res %.2f)\n", v.Len(), v.FieldOfView, v.Resolution)
	default:
		s.printJSON(v)
	}
}

func (s *shell) printJSON(v any) {
	enc := json.NewEncoder(s.out)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(s.errOut, "error: encode result: %v\n", err)
	}
}

func (s *shell) help() {
	fmt.Fprintln(s.out, "device commands:")
	for _, usage := range dispatch.Commands() {
		fmt.Fprintf(s.out, "  %s\n", usage)
	}
	fmt.Fprintln(s.out, "shell commands:")
	for _, usage := range []string{"ports", "plot <file.png|file.html>", "stats", "help", "quit"} {
		fmt.Fprintf(s.out, "  %s\n", usage)
	}
}

func (s *shell) ports() {
	ports, err := s.listPorts()
	if err != nil {
		fmt.Fprintf(s.errOut, "error: %v\n", err)
		return
	}
	if len(ports) == 0 {
		fmt.Fprintln(s.out, "no serial ports found")
		return
	}
	for _, p := range ports {
		fmt.Fprintln(s.out, p)
	}
}

func (s *shell) plot(args []any) {
	if len(args) != 1 {
		fmt.Fprintln(s.errOut, "error: usage: plot <file.png|file.html>")
		return
	}
	path, ok := args[0].(string)
	if !ok {
		fmt.Fprintln(s.errOut, "error: plot file must be a path")
		return
	}
	if s.last == nil {
		fmt.Fprintln(s.errOut, "error: no scan grabbed yet")
		return
	}
	title := fmt.Sprintf("LMS scan (fov %.0f, res %.2f)", s.last.FieldOfView, s.last.Resolution)
	if err := scanplot.SaveFile(path, *s.last, title); err != nil {
		fmt.Fprintf(s.errOut, "error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "wrote %s\n", path)
}

func (s *shell) stats() {
	if s.last == nil {
		fmt.Fprintln(s.errOut, "error: no scan grabbed yet")
		return
	}
	sum, err := scanplot.Summarize(*s.last)
	if err != nil {
		fmt.Fprintf(s.errOut, "error: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, sum)
}
