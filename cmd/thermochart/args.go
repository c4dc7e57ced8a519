package main

import (
	"time"

	"github.com/jessevdk/go-flags"
)

type ProgramArgs struct {
	Schedule      bool          `short:"s" long:"schedule" description:"Refresh the chart every interval until interrupted (also -sch)"`
	Interval      time.Duration `long:"interval" description:"Schedule interval, overrides SCHEDULE_INTERVAL"`
	DelayFirstRun bool          `long:"delay-first-run" description:"Wait one interval before the first scheduled refresh"`
}

// legacyFlags maps single-dash long spellings onto their go-flags names.
var legacyFlags = map[string]string{
	"-sch": "--schedule",
}

func normalizeArgs(argv []string) []string {
	out := make([]string, 0, len(argv))
	for i, a := range argv {
		if a == "--" {
			return append(out, argv[i:]...)
		}
		if repl, ok := legacyFlags[a]; ok {
			a = repl
		}
		out = append(out, a)
	}
	return out
}

func parseArgs(argv []string) (ProgramArgs, error) {
	var args ProgramArgs
	parser := flags.NewParser(&args, flags.Default)
	if _, err := parser.ParseArgs(normalizeArgs(argv)); err != nil {
		return ProgramArgs{}, err
	}
	return args, nil
}
