// Command distlimiter is a small operator CLI around the distlimiter
// library: a shared flag.FlagSet builder for connection options,
// github.com/mitchellh/cli for subcommand dispatch. It is a convenience
// wrapper, not a new primitive - it consumes the same public API any other
// caller would.
package main

import (
	"fmt"
	"os"

	"github.com/mitchellh/cli"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ui := &cli.BasicUi{
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	c := cli.NewCLI("distlimiter", version)
	c.Args = args
	c.Commands = map[string]cli.CommandFactory{
		"semaphore acquire": func() (cli.Command, error) {
			return &semaphoreAcquireCommand{baseCommand: baseCommand{Ui: ui}}, nil
		},
		"semaphore release": func() (cli.Command, error) {
			return &semaphoreReleaseCommand{baseCommand: baseCommand{Ui: ui}}, nil
		},
		"token-bucket acquire": func() (cli.Command, error) {
			return &tokenBucketAcquireCommand{baseCommand: baseCommand{Ui: ui}}, nil
		},
	}

	exitStatus, err := c.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitStatus
}
