package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/radiostream/pkg/radio"
)

const shellHelp = `Commands:
  f <hz>   set fake ADC (source) frequency
  t <hz>   set tuner frequency
  s        toggle streaming
  m        toggle mute
  b [n]    benchmark n timer reads (default 2048)
  st       print status
  exit     stop streaming and quit`

// runShell reads commands from in until exit or EOF. Command failures are
// printed and the shell keeps going.
func runShell(st *Station, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	fmt.Fprintln(out, shellHelp)

	// next returns the following input line, for commands whose argument
	// comes on its own line
	next := func(prompt string) (string, bool) {
		fmt.Fprintln(out, prompt)
		if !sc.Scan() {
			return "", false
		}
		return strings.TrimSpace(sc.Text()), true
	}

	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "f", "t":
			arg := ""
			if len(args) > 0 {
				arg = args[0]
			} else {
				var ok bool
				if arg, ok = next("Input desired frequency in Hz"); !ok {
					return sc.Err()
				}
			}
			hz, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				fmt.Fprintf(out, "invalid frequency %q\n", arg)
				continue
			}
			set, name := st.SetSource, "source"
			if cmd == "t" {
				set, name = st.SetTuner, "tuner"
			}
			pinc, err := set(hz)
			if err != nil {
				fmt.Fprintf(out, "set %s: %v\n", name, err)
				continue
			}
			fmt.Fprintf(out, "%s %g Hz (phase increment %d)\n", name, hz, pinc)

		case "s":
			on, err := st.ToggleStreaming()
			if err != nil {
				fmt.Fprintf(out, "streaming: %v\n", err)
				continue
			}
			if on {
				fmt.Fprintf(out, "streaming on to %s\n", st.Status().Endpoint)
			} else {
				fmt.Fprintln(out, "streaming off")
			}

		case "m":
			muted, err := st.ToggleMute()
			if err != nil {
				fmt.Fprintf(out, "mute: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "muted: %v\n", muted)

		case "b":
			n := radio.DefaultBenchmarkReads
			if len(args) > 0 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v <= 0 {
					fmt.Fprintf(out, "invalid read count %q\n", args[0])
					continue
				}
				n = v
			}
			res, err := st.Benchmark(n)
			if err != nil {
				fmt.Fprintf(out, "benchmark: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "%d reads in %d clocks (%.6f s): %d bytes, %.2f MB/s\n",
				res.Reads, res.Clocks, res.Seconds, res.Bytes, res.Throughput)

		case "st":
			b, err := json.MarshalIndent(st.Status(), "", "  ")
			if err != nil {
				log.Printf("[ERROR] marshal status: %v", err)
				continue
			}
			fmt.Fprintln(out, string(b))

		case "help", "?":
			fmt.Fprintln(out, shellHelp)

		case "exit", "quit":
			fmt.Fprintln(out, "Ending program")
			return nil

		default:
			fmt.Fprintf(out, "unknown command %q, type help\n", cmd)
		}
	}
}
