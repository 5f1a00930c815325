// Command clothesfs creates, inspects and mounts ClothesFS volumes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/clothesfs/clothesfs"
	"github.com/clothesfs/clothesfs/internal/mount"
)

var debug = flag.Bool("debug", false, "enable debug mode: format error messages with additional detail")

func funcmain() error {
	flag.Parse()

	type cmd struct {
		fn func(ctx context.Context, args []string) error
	}
	verbs := map[string]cmd{
		"format":   {cmdformat},
		"add-file": {cmdaddfile},
		"add-dir":  {cmdadddir},
		"list":     {cmdlist},
		"remove":   {cmdremove},
		"export":   {export},
		"env":      {printenv},
		"mount": {func(ctx context.Context, args []string) error {
			join, err := mount.Mount(ctx, args)
			if err != nil {
				return err
			}
			return join(ctx)
		}},
	}

	args := flag.Args()
	verb := "list"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}

	if verb == "help" {
		fmt.Fprintf(os.Stderr, "clothesfs [-flags] <command> [-flags] <args>\n")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintf(os.Stderr, "To get help on any command, use clothesfs <command> -help.\n")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "\tformat   - initialize a new volume\n")
		fmt.Fprintf(os.Stderr, "\tadd-file - add a file to a directory\n")
		fmt.Fprintf(os.Stderr, "\tadd-dir  - add a subdirectory to a directory\n")
		fmt.Fprintf(os.Stderr, "\tlist     - list a directory's entries\n")
		fmt.Fprintf(os.Stderr, "\tremove   - remove a file or empty directory\n")
		fmt.Fprintf(os.Stderr, "\tmount    - mount a volume read-only via FUSE\n")
		fmt.Fprintf(os.Stderr, "\texport   - compress a volume image for backup\n")
		fmt.Fprintf(os.Stderr, "\tenv      - print resolved environment defaults\n")
		os.Exit(2)
	}

	ctx, canc := clothesfs.InterruptibleContext()
	defer canc()
	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: clothesfs <command> [options]\n")
		os.Exit(2)
	}
	verbErr := v.fn(ctx, args)
	// Run registered cleanup (e.g. closing a verb's device handle)
	// whether or not the verb itself succeeded, same as a deferred
	// close would, rather than skipping it on the error path.
	atExitErr := clothesfs.RunAtExit()
	if verbErr != nil {
		if *debug {
			return fmt.Errorf("%s: %+v", verb, verbErr)
		}
		return fmt.Errorf("%s: %v", verb, verbErr)
	}
	return atExitErr
}

func main() {
	if err := funcmain(); err != nil {
		log.SetFlags(0)
		log.Fatal(err)
	}
}
