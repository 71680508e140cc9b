// Command datomctl loads the native datom library and exercises it from the
// command line. It is mainly useful to check that a deployment can find and
// load the right binary.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lutris-engineering/datom-go/datom"
	"github.com/lutris-engineering/datom-go/internal/config"
)

const usage = `Usage: datomctl [-config file] <command> [args]

Commands:
  platform          print the platform descriptor and expected library layout
  version           load the library and print its version
  latest-t          open a connection and print its latest transaction number
  roundtrip <edn>   parse each fact and print its canonical EDN
`

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	datom.SetLogger(logger)

	if err := datom.Configure(cfg.BootstrapOptions()...); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err = run(flag.Arg(0), flag.Args()[1:])
	if cleanupErr := datom.CleanupStaged(); cleanupErr != nil {
		logger.Sugar().Debugf("staged library cleanup: %v", cleanupErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	switch command {
	case "platform":
		return printPlatform()
	case "version":
		version, err := datom.Version()
		if err != nil {
			return err
		}
		fmt.Printf("datom %s (%s)\n", version, datom.LibraryPath())
		return nil
	case "latest-t":
		return datom.WithConnection(func(conn *datom.Connection) error {
			t, err := conn.LatestT()
			if err != nil {
				return err
			}
			fmt.Println(t)
			return nil
		})
	case "roundtrip":
		return roundTrip(args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printPlatform() error {
	p, err := datom.ResolvePlatform()
	if err != nil {
		return err
	}
	fmt.Printf("platform: %s\n", p)
	fmt.Printf("library:  %s\n", p.LibraryFilename())
	if packaged, ok := p.PackagedPath(); ok {
		fmt.Printf("packaged: %s\n", packaged)
	} else {
		fmt.Println("packaged: unavailable (unknown architecture)")
	}
	return nil
}
