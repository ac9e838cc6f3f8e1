// tuple-check is a diagnostic tool for inspecting and validating serialized
// tuple sketches. It reads the 16-byte preamble, checks the family, variant,
// serial version and seed hash, and then decodes the retained entries to
// print the estimate with its error bounds.
//
// It can answer questions like:
//
//   - Is this file a tuple sketch at all, and which variant?
//   - Was it written with the seed we expect?
//   - What does it estimate, and how wide are the bounds?
//
// Usage Examples
// ==============
//
// Basic validation:
//
//	tuple-check -file sketch.bin
//
// Verbose mode (lists every retained key with its values):
//
//	tuple-check -file sketch.bin -v
//
// Dump mode (shows the raw preamble bytes):
//
//	tuple-check -file sketch.bin -dump
//
// Tagged-number arrays (the summary format used by the numbers codec):
//
//	tuple-check -file items.bin -numbers 6 -big-endian
//
// Exit Codes
// ==========
//
// 0: The file is valid.
// 1: The file is corrupted or unreadable (wrong family, seed mismatch, truncated, etc.)
//
// Trailing Data
// =============
//
// Bytes after the sketch image are reported but not interpreted.

package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"

	"sketches.lopezb.com/internal/sketches/serde"
	"sketches.lopezb.com/internal/sketches/tuple"
)

// CountReader wraps an io.Reader to track the cumulative byte offset. This is
// used to report the file position in error messages.
type CountReader struct {
	r     io.Reader
	count int64
}

// Read implements io.Reader, passing through to the underlying reader while
// accumulating the byte count.
func (cr *CountReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.count += int64(n)
	return n, err
}

// inspectOptions controls how much inspectSketch prints.
type inspectOptions struct {
	verbose bool
	dump    bool
	seed    uint64
}

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

func main() {
	filePath := flag.String("file", "sketch.bin", "Path to the serialized sketch")
	verbose := flag.Bool("v", false, "Verbose mode (print retained entries)")
	dump := flag.Bool("dump", false, "Print the raw preamble bytes")
	seed := flag.Uint64("seed", tuple.DefaultSeed, "Seed the sketch is expected to be built with")
	numbers := flag.Int("numbers", -1, "Decode the file as an array of N tagged numbers instead of a sketch")
	bigEndian := flag.Bool("big-endian", false, "Byte order of the tagged-number array")
	flag.Parse()

	f, err := os.Open(*filePath)
	if err != nil {
		die(0, "Cannot open file", err)
	}
	defer func() { _ = f.Close() }()

	fmt.Printf("[offset 0] Checking %s\n", *filePath)

	// Pipeline: File -> CountReader -> xxhash (tee) -> Bufio
	counter := &CountReader{r: f}
	digest := xxhash.New()
	reader := bufio.NewReader(io.TeeReader(counter, digest))
	start := time.Now()

	if *numbers >= 0 {
		data, err := io.ReadAll(reader)
		if err != nil {
			die(counter.count, "Failed to read file", err)
		}
		var order binary.ByteOrder = binary.LittleEndian
		if *bigEndian {
			order = binary.BigEndian
		}
		if err := inspectNumbers(os.Stdout, data, *numbers, order); err != nil {
			die(counter.count, "Invalid number array", err)
		}
	} else {
		preamble := make([]byte, tuple.HeaderSize)
		if _, err := io.ReadFull(reader, preamble); err != nil {
			die(counter.count, "Failed to read preamble", err)
		}
		rest, err := io.ReadAll(reader)
		if err != nil {
			die(counter.count, "Failed to read entries", err)
		}
		data := append(preamble, rest...)

		opts := inspectOptions{verbose: *verbose, dump: *dump, seed: *seed}
		if err := inspectSketch(os.Stdout, data, opts); err != nil {
			die(counter.count, "Invalid sketch", err)
		}
	}

	fmt.Println("\nSummary:")
	fmt.Printf("  Process Time: %v\n", time.Since(start))
	fmt.Printf("  Bytes Read:   %d\n", counter.count)
	fmt.Printf("  Digest:       %016x (xxhash64)\n", digest.Sum64())
}

// inspectSketch validates a serialized ArrayOfDoubles compact sketch and
// writes a report of its contents to w.
func inspectSketch(w io.Writer, data []byte, opts inspectOptions) error {
	typeName, details := identifySketch(data)
	fmt.Fprintf(w, "[offset 0] Found %s (%s)\n", typeName, details)

	h, err := tuple.ReadHeader(data)
	if err != nil {
		return err
	}
	if opts.dump {
		fmt.Fprintf(w, "      Preamble: % x\n", data[:tuple.HeaderSize])
	}

	s, err := tuple.Heapify(data, tuple.WithSeed(opts.seed))
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "  Flags:        %v\n", h.Flags)
	fmt.Fprintf(w, "  Seed Hash:    0x%04x\n", s.SeedHash())
	fmt.Fprintf(w, "  Theta:        %f (%d)\n", s.Theta(), s.Theta64())
	fmt.Fprintf(w, "  Retained:     %d x %d values\n", s.NumRetained(), s.NumValues())
	fmt.Fprintf(w, "  Estimate:     %f\n", s.Estimate())
	for k := uint8(1); k <= 3; k++ {
		lb, err := s.LowerBound(k)
		if err != nil {
			return err
		}
		ub, err := s.UpperBound(k)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  Bounds %dσ:    [%f, %f]\n", k, lb, ub)
	}

	size := len(s.ToByteArray())
	if opts.verbose || opts.dump {
		offset := 24
		for key, values := range s.All() {
			fmt.Fprintf(w, "[offset %d] Key %d %v\n", offset, key, values)
			offset += 8
		}
	}

	if len(data) > size {
		fmt.Fprintf(w, "[offset %d] Found %d trailing bytes\n", size, len(data)-size)
		fmt.Fprintln(w, "             (Trailing data is not interpreted by this tool)")
	}
	return nil
}

// inspectNumbers decodes n tagged numbers from data and writes one line per
// element to w.
func inspectNumbers(w io.Writer, data []byte, n int, order binary.ByteOrder) error {
	items, consumed, err := serde.NewArrayOfNumbersSerDe(order).Decode(data, n)
	if err != nil {
		return err
	}

	stats := make(map[serde.Kind]int)
	offset := 0
	for i, item := range items {
		kind := item.Kind()
		stats[kind]++
		fmt.Fprintf(w, "[offset %d] #%d %s %v\n", offset, i, kind, item)
		offset += 1 + kind.Size()
	}

	fmt.Fprintf(w, "  Total Numbers: %d (%d bytes)\n", len(items), consumed)
	for _, kind := range []serde.Kind{serde.KindInt64, serde.KindInt32, serde.KindInt16, serde.KindInt8, serde.KindFloat64, serde.KindFloat32} {
		if c := stats[kind]; c > 0 {
			fmt.Fprintf(w, "    %d\t%s\n", c, kind)
		}
	}
	if consumed < len(data) {
		fmt.Fprintf(w, "[offset %d] Found %d trailing bytes\n", consumed, len(data)-consumed)
	}
	return nil
}

// identifySketch names a serialized sketch from its preamble without
// decoding the entries. Byte 2 carries the family and byte 3 the variant;
// for tuple sketches the details report the value count, the retained entry
// count when present, and the flags.
//
// Anything that is not a tuple sketch is reported as "Unknown" with its
// family byte, and images too short to hold a family byte as "Raw".
func identifySketch(data []byte) (string, string) {
	if len(data) < 4 {
		return "Raw", ""
	}

	family := data[2]
	if family != tuple.FamilyTuple {
		return "Unknown", fmt.Sprintf("Family:%d", family)
	}

	name := "Tuple-" + tuple.SketchType(data[3]).String()
	if len(data) < tuple.HeaderSize {
		return name, "Truncated"
	}

	flags := tuple.Flags(data[4])
	details := fmt.Sprintf("Values:%d", data[5])
	if flags.HasEntries() && len(data) >= 24 {
		var order binary.ByteOrder = binary.LittleEndian
		if flags.IsBigEndian() {
			order = binary.BigEndian
		}
		details += fmt.Sprintf(", Entries:%d", order.Uint32(data[16:20]))
	}
	details += fmt.Sprintf(", Flags:%v", flags)
	return name, details
}

// die logs a fatal error with the current file offset and exits.
func die(offset int64, msg string, err error) {
	logger.Error(msg, "offset", offset, "err", err)
	os.Exit(1)
}
