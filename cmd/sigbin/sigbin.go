// Command sigbin inspects Siglent BIN capture files and optionally
// exports each stream as a NumPy array.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/sbinet/npyio"

	"github.com/sigdaq/sigdaq/binfile"
	"github.com/sigdaq/sigdaq/wave"
)

func main() {
	dump := flag.Bool("dump", false, "dump the decoded wave header")
	npy := flag.String("npy", "", "directory to write one .npy file per stream")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: sigbin [flags] capture.bin\n")
		flag.PrintDefaults()
		os.Exit(2)
	}
	name := flag.Arg(0)

	f, err := binfile.ReadFile(name)
	if err != nil {
		log.Fatalf("could not read %s: %v", name, err)
	}

	fmt.Printf("%s: format version %d, %d streams\n", name, f.Version, len(f.Streams))
	if *dump {
		spew.Dump(f.Header)
	}

	for _, s := range f.Streams {
		describeStream(&s)
		if *npy != "" {
			if err := exportStream(*npy, name, &s); err != nil {
				log.Fatalf("could not export %s: %v", s.Name, err)
			}
		}
	}
}

func describeStream(s *binfile.Stream) {
	switch {
	case s.Analog != nil:
		w := s.Analog
		sum := wave.Summarize(w)
		fmt.Printf("  %-4s %9d samples @ %.4g s/sample  min=%.4g V max=%.4g V mean=%.4g V\n",
			s.Name, len(w.Samples), w.SamplePeriod, sum.Min, sum.Max, sum.Mean)
	case s.Digital != nil:
		w := s.Digital
		high := 0
		for _, b := range w.Samples {
			if b {
				high++
			}
		}
		fmt.Printf("  %-4s %9d samples @ %.4g s/sample  %d high\n",
			s.Name, len(w.Samples), w.SamplePeriod, high)
	}
}

// exportStream writes one stream as dir/<base>_<stream>.npy. Analog
// streams become float32 arrays, digital streams become bool arrays.
func exportStream(dir, capture string, s *binfile.Stream) error {
	if err := os.MkdirAll(dir, 0775); err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(capture), filepath.Ext(capture))
	outname := filepath.Join(dir, fmt.Sprintf("%s_%s.npy", base, s.Name))

	out, err := os.Create(outname)
	if err != nil {
		return err
	}
	defer out.Close()

	switch {
	case s.Analog != nil:
		err = npyio.Write(out, s.Analog.Samples)
	case s.Digital != nil:
		err = npyio.Write(out, s.Digital.Samples)
	}
	if err != nil {
		return err
	}
	fmt.Printf("  wrote %s\n", outname)
	return nil
}
