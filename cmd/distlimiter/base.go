package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mitchellh/cli"
)

// maxLineLength is the maximum width of any line of flag help text.
const maxLineLength int = 72

// baseCommand holds the connection flags shared by every subcommand.
type baseCommand struct {
	Ui cli.Ui

	flagSet *flag.FlagSet

	connectionURL stringValue
	poolSize      intValue
	maxSleep      durationValue
}

// connectionFlags registers the flags every subcommand accepts for talking
// to the coordination server.
func (c *baseCommand) connectionFlags(f *flag.FlagSet) *flag.FlagSet {
	if f == nil {
		f = flag.NewFlagSet("", flag.ContinueOnError)
	}

	f.Var(&c.connectionURL, "url",
		"Redis connection URL. Accepts redis://, rediss://, redis+unix:// "+
			"and unix:// schemes. Defaults to redis://127.0.0.1:6379.")
	f.Var(&c.poolSize, "pool-size",
		"Size of the Redis connection pool. Defaults to 15.")
	f.Var(&c.maxSleep, "max-sleep",
		"Maximum time to wait before failing with MaxSleepExceeded. "+
			"Zero (the default) means wait forever.")

	return f
}

// newFlagSet creates a flag set for the given subcommand, wired to print
// its usage through the command's Ui on parse errors.
func (c *baseCommand) newFlagSet(command cli.Command, extra func(*flag.FlagSet)) *flag.FlagSet {
	f := flag.NewFlagSet("", flag.ContinueOnError)
	f.Usage = func() { c.Ui.Error(command.Help()) }

	c.connectionFlags(f)
	if extra != nil {
		extra(f)
	}

	c.flagSet = f
	return f
}

func (c *baseCommand) parse(args []string) error {
	return c.flagSet.Parse(args)
}

func (c *baseCommand) help() string {
	if c.flagSet == nil {
		return ""
	}
	var out bytes.Buffer
	printTitle(&out, "Connection Options")
	c.flagSet.VisitAll(func(f *flag.Flag) {
		printFlag(&out, f)
	})
	return strings.TrimRight(out.String(), "\n")
}

func printTitle(w io.Writer, s string) {
	fmt.Fprintf(w, "%s\n\n", s)
}

func printFlag(w io.Writer, f *flag.Flag) {
	example, _ := flag.UnquoteUsage(f)
	if example != "" {
		fmt.Fprintf(w, "  -%s=<%s>\n", f.Name, example)
	} else {
		fmt.Fprintf(w, "  -%s\n", f.Name)
	}
	fmt.Fprintf(w, "%s\n\n", wrapAtLength(f.Usage, 5))
}

// wrapAtLength wraps s at maxLineLength, indenting every line by pad spaces.
// A hand-rolled word wrap rather than an external dependency: this is the
// only place in the module that would need one.
func wrapAtLength(s string, pad int) string {
	words := strings.Fields(s)
	indent := strings.Repeat(" ", pad)
	var lines []string
	line := indent
	for _, w := range words {
		if line != indent && len(line)+1+len(w) > maxLineLength {
			lines = append(lines, line)
			line = indent
		}
		if line != indent {
			line += " "
		}
		line += w
	}
	if line != indent {
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// stringValue is a flag.Value that records whether it was explicitly set.
type stringValue struct {
	v     string
	found bool
}

func (s *stringValue) String() string {
	if s == nil {
		return ""
	}
	return s.v
}

func (s *stringValue) Set(v string) error {
	s.v = v
	s.found = true
	return nil
}

type intValue struct {
	v     int
	found bool
}

func (i *intValue) String() string {
	if i == nil {
		return ""
	}
	return fmt.Sprintf("%d", i.v)
}

func (i *intValue) Set(v string) error {
	n, err := fmt.Sscanf(v, "%d", &i.v)
	if err != nil || n != 1 {
		return fmt.Errorf("invalid integer %q", v)
	}
	i.found = true
	return nil
}

type durationValue struct {
	v     time.Duration
	found bool
}

func (d *durationValue) String() string {
	if d == nil {
		return ""
	}
	return d.v.String()
}

func (d *durationValue) Set(v string) error {
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	d.v = parsed
	d.found = true
	return nil
}
