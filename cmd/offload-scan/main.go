// offload-scan lists removable devices and scans a mount point from the
// command line, without the daemon.
package main

import (
	_ "embed"
	"flag"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"offload/pkg/config"
	"offload/pkg/devices"
	"offload/pkg/log"
)

//go:embed VERSION
var Version string

func main() {
	_ = log.Logger

	root := flag.String("root", "", "Mount point to scan; empty lists removable devices")
	allFiles := flag.Bool("all-files", false, "Disable the media extension filter")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(strings.TrimSpace(Version))
		return
	}

	log.SetDebugMode(*debug)

	scanner := devices.NewScanner()

	if *root == "" {
		listRemovable(scanner)
		return
	}

	cfg := config.Default()
	if *allFiles {
		cfg.FilterEnabled = false
	}

	result, err := scanner.Scan(*root, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("root", *root).Msg("Scan failed")
	}

	for _, file := range result.Files {
		fmt.Printf("%10s  %s\n", humanize.IBytes(uint64(file.Size)), file.Path)
	}
	fmt.Printf("\n%s files, %s, scanned in %dms\n",
		humanize.Comma(int64(result.FileCount)),
		humanize.IBytes(uint64(result.TotalSize)),
		result.ScanTimeMs)
}

func listRemovable(scanner *devices.Scanner) {
	removable, err := scanner.ListRemovable()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list devices")
	}

	if len(removable) == 0 {
		fmt.Println("no removable devices found")
		return
	}

	for _, d := range removable {
		mount := d.PrimaryMountPoint()
		if mount == "" {
			mount = "(not mounted)"
		}
		fmt.Printf("%-12s %-24s %10s  %s\n",
			d.ID, d.DisplayName, humanize.IBytes(uint64(d.CapacityBytes)), mount)
	}
}
