// Command hashline prints the hashed line for each MSISDN read from the
// arguments or, without arguments, from stdin (one per line). It uses the
// same salt as the services, so operators can join consent exports against
// leads without storing raw numbers.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/ignite/dormant-leads/internal/config"
	"github.com/ignite/dormant-leads/internal/signal"
)

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Signals.HashSalt == "" {
		log.Fatal("LINE_HASH_SALT is required")
	}
	h := signal.NewHasher(cfg.Signals.HashSalt, cfg.Signals.CountryCode)

	var in io.Reader = os.Stdin
	if len(os.Args) > 1 {
		in = strings.NewReader(strings.Join(os.Args[1:], "\n"))
	}
	failed, err := hashAll(h, in, os.Stdout, os.Stderr)
	if err != nil {
		log.Fatal(err)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// hashAll writes "hash" for each valid number and reports invalid ones on
// errw by input line number, never echoing the number itself.
func hashAll(h *signal.Hasher, in io.Reader, out, errw io.Writer) (int, error) {
	sc := bufio.NewScanner(in)
	failed, n := 0, 0
	for sc.Scan() {
		n++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		hashed, err := h.Hash(raw)
		if err != nil {
			fmt.Fprintf(errw, "line %d: %v\n", n, err)
			failed++
			continue
		}
		fmt.Fprintln(out, hashed)
	}
	return failed, sc.Err()
}
