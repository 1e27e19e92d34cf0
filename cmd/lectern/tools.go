package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/lectern/internal/app"
	"github.com/MrWong99/lectern/internal/config"
	"github.com/MrWong99/lectern/internal/scripture"
	"github.com/MrWong99/lectern/internal/versetext"
	"github.com/MrWong99/lectern/pkg/canon"
)

// ── recognize ─────────────────────────────────────────────────────────────────

func recognizeCmd() *cobra.Command {
	rc := config.Default().Recognizer
	var asJSON, showRecent bool
	cmd := &cobra.Command{
		Use:   "recognize [text...]",
		Short: "Print the references found in text, or in each line of stdin",
		Example: `  lectern recognize "john chapter three verse sixteen"
  lectern recognize --canon catholic < transcript.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := app.RecognizerOptions(rc)
			if err != nil {
				return err
			}
			rec := scripture.NewRecognizer(nil, nil, opts...)
			out := cmd.OutOrStdout()

			if len(args) > 0 {
				if err := printRefs(out, rec.Process(strings.Join(args, " ")), asJSON); err != nil {
					return err
				}
			} else {
				sc := bufio.NewScanner(cmd.InOrStdin())
				for sc.Scan() {
					if strings.TrimSpace(sc.Text()) == "" {
						continue
					}
					if err := printRefs(out, rec.Process(sc.Text()), asJSON); err != nil {
						return err
					}
				}
				if err := sc.Err(); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}

			if showRecent {
				fmt.Fprintln(out, "recent:", strings.Join(rec.Recent(), ", "))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&rc.Canon, "canon", rc.Canon, "book table: protestant or catholic")
	f.StringVar(&rc.Scorer, "scorer", rc.Scorer, "book name similarity: phonetic, edit or jaro-winkler")
	f.Float64Var(&rc.Threshold, "threshold", rc.Threshold, "minimum book name similarity (0-100)")
	f.StringVar(&rc.RangePolicy, "range-policy", rc.RangePolicy, "invalid range end handling: degrade or drop")
	f.BoolVar(&asJSON, "json", false, "print one JSON array per input instead of one reference per line")
	f.BoolVar(&showRecent, "recent", false, "print the recent references, oldest first, when done")
	return cmd
}

func printRefs(w io.Writer, refs []string, asJSON bool) error {
	if asJSON {
		if refs == nil {
			refs = []string{}
		}
		return json.NewEncoder(w).Encode(refs)
	}
	for _, r := range refs {
		if _, err := fmt.Fprintln(w, r); err != nil {
			return err
		}
	}
	return nil
}

// ── books ─────────────────────────────────────────────────────────────────────

func booksCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "books",
		Short: "List the books of a canon with their chapter and verse counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := canon.ByName(name)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "BOOK\tOSIS\tCHAPTERS\tVERSES")
			for _, b := range table.Books() {
				var verses int
				for _, n := range b.Chapters {
					verses += n
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", b.Name, b.OSIS, b.ChapterCount(), verses)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&name, "canon", canon.NameProtestant, "book table: protestant or catholic")
	return cmd
}

// ── import-bible ──────────────────────────────────────────────────────────────

func importBibleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-bible <verses.json> <bible.db>",
		Short: "Convert a JSON verse list into a SQLite verse store",
		Long: `Reads a JSON array of {"book", "chapter", "verse", "text"} objects and
writes it to a SQLite database usable as bible.path with bible.format: sqlite.
Existing verses in the database are replaced.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := versetext.OpenJSON(args[0])
			if err != nil {
				return err
			}
			dst, err := versetext.OpenSQLite(args[1])
			if err != nil {
				return err
			}
			defer dst.Close()

			n, err := dst.Import(cmd.Context(), src.All())
			if err != nil {
				return err
			}
			total, err := dst.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d verses into %s (%d total)\n", n, args[1], total)
			return nil
		},
	}
}
