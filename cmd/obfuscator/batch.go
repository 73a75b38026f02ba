package main

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mundrapranay/silhouette-obfuscator/pkg/obfuscate"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		engine engineFlags
		seed   uint64
	)

	cmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "Obfuscate value,bin lines locally",
		Long: `batch reads one "value[,bin]" pair per line from a file or stdin and
writes "value,bin,obfuscated". Blank lines and lines starting with # are
skipped. All lines share one cache, so a repeated pair repeats its answer.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.engineConfig(cmd.Flags(), &engine)
			if err != nil {
				return err
			}

			var src obfuscate.Source
			if cmd.Flags().Changed("seed") {
				a.logger.Warn("using a seeded generator; output is reproducible and not private", "seed", seed)
				src = rand.New(rand.NewPCG(seed, seed))
			}

			cache := obfuscate.NewStatsCache(obfuscate.NewMapCache())
			obf, err := obfuscate.New(cfg, cache, src)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer f.Close()
				in = f
			}

			out := bufio.NewWriter(cmd.OutOrStdout())
			n, err := runBatch(in, out, obf)
			if flushErr := out.Flush(); err == nil {
				err = flushErr
			}
			if err != nil {
				return err
			}

			stats := cache.Stats()
			a.logger.Info("batch complete",
				"lines", n,
				"cache_hits", stats.Hits,
				"cache_misses", stats.Misses,
				"guarantee", obf.Guarantee().String())
			return nil
		},
	}

	engine.register(cmd.Flags())
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed a deterministic generator (testing only)")
	return cmd
}

// runBatch obfuscates every line of r and returns the number of pairs written.
func runBatch(r io.Reader, w io.Writer, obf *obfuscate.Obfuscator) (int, error) {
	scanner := bufio.NewScanner(r)
	n := 0
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		key, err := parseBatchLine(text)
		if err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		result, err := obf.Obfuscate(key.Value, key.Bin)
		if err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		if _, err := fmt.Fprintf(w, "%d,%d,%d\n", key.Value, key.Bin, result); err != nil {
			return n, err
		}
		n++
	}
	return n, scanner.Err()
}

func parseBatchLine(text string) (obfuscate.Key, error) {
	valueText, binText, hasBin := strings.Cut(text, ",")

	value, err := strconv.ParseUint(strings.TrimSpace(valueText), 10, 64)
	if err != nil {
		return obfuscate.Key{}, fmt.Errorf("invalid value: %w", err)
	}

	var bin uint64
	if hasBin {
		bin, err = strconv.ParseUint(strings.TrimSpace(binText), 10, 64)
		if err != nil {
			return obfuscate.Key{}, fmt.Errorf("invalid bin: %w", err)
		}
	}
	return obfuscate.Key{Value: value, Bin: obfuscate.Bin(bin)}, nil
}
