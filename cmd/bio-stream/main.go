// bio-stream runs streaming operations (sort, merge, intersect) on
// coordinate-sorted BED and VCF files.
package main

import (
	"os"

	"github.com/grailbio/biostream/cmd/bio-stream/cmd"
	"v.io/x/lib/cmdline"
)

func main() {
	os.Exit(cmd.Run(cmdline.EnvFromOS(), os.Args[1:]))
}
