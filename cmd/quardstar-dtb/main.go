package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/quard-star/platform/log"
)

type args struct {
	dtb      string
	config   string
	out      string
	bootHart uint64
	boot     bool
	verbose  bool
	set      overrides
}

type overrides []string

func (o *overrides) String() string {
	return strings.Join(*o, ",")
}

func (o *overrides) Set(v string) error {
	*o = append(*o, v)
	return nil
}

func cliArgs() args {
	a := args{}

	flag.StringVar(&a.dtb, "dtb", "", "devicetree blob to inspect")
	flag.StringVar(&a.config, "config", "", "build configuration YAML, defaults apply when empty")
	flag.StringVar(&a.out, "out", "", "write the next stage devicetree to this path")
	flag.Uint64Var(&a.bootHart, "boot-hart", 0, "cold boot hart id")
	flag.BoolVar(&a.boot, "boot", false, "run a dry boot of every hart against a recording bus")
	flag.BoolVar(&a.verbose, "v", false, "print every MMIO write of the dry boot")
	flag.Var(&a.set, "set", "build configuration override KEY=value, repeatable")
	flag.Parse()

	return a
}

func main() {
	a := cliArgs()
	l := log.Development().Sugar()

	if a.dtb == "" {
		flag.Usage()
		os.Exit(2)
	}

	r, err := inspect(a, l)
	notErr(err, l)

	color := term.IsTerminal(int(os.Stdout.Fd()))
	if err := r.print(os.Stdout, color); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// notErr panics with e, the tool cannot do anything useful after an error.
func notErr(e error, l *zap.SugaredLogger) {
	if e != nil {
		l.Panic(e)
	}
}
