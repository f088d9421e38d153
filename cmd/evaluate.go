package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/abhisek/lexiz/internal/reconstruct"
	"github.com/abhisek/lexiz/internal/ui/theme"
	"github.com/abhisek/lexiz/internal/wire"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [sentence]",
	Short: "Evaluate a sentence, or generate example sentences with --examples",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		word, _ := cmd.Flags().GetString("word")
		meaning, _ := cmd.Flags().GetString("meaning")
		task, _ := cmd.Flags().GetString("task")
		language, _ := cmd.Flags().GetString("language")
		mode, _ := cmd.Flags().GetString("mode")
		examples, _ := cmd.Flags().GetBool("examples")
		serverURL, _ := cmd.Flags().GetString("server")
		asJSON, _ := cmd.Flags().GetBool("json")

		item := wire.Item{
			ID:       "cli",
			Kind:     wire.KindEvaluate,
			Mode:     wire.Mode(mode),
			Word:     word,
			Meaning:  meaning,
			Task:     task,
			Language: language,
		}
		if examples {
			item.Kind = wire.KindExamples
		} else if len(args) == 1 {
			item.Sentence = args[0]
		}
		if err := item.Validate(); err != nil {
			return err
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg, "warn")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		ev, closeFn, err := evaluator(ctx, cfg, serverURL, logger)
		if err != nil {
			return err
		}
		defer closeFn()

		out := cmd.OutOrStdout()
		live := !asJSON && isTerminal(out)
		p := &livePrinter{w: out}

		var onUpdate func(reconstruct.Update)
		if live {
			onUpdate = p.update
		}
		items, err := ev.Evaluate(ctx, []wire.Item{item}, onUpdate)
		if err != nil && len(items) == 0 {
			return err
		}

		switch {
		case asJSON:
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(items); err != nil {
				return err
			}
		case live:
			p.finish()
		default:
			for _, it := range items {
				printItem(out, it)
			}
		}
		if err != nil {
			return err
		}
		for _, it := range items {
			if it.Failed() {
				return fmt.Errorf("evaluation failed: %s", it.ErrorMessage)
			}
		}
		return nil
	},
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// livePrinter writes each field as it grows. Text fields only append, so
// it prints the new suffix after a heading for the field.
type livePrinter struct {
	w       io.Writer
	field   wire.Key
	printed map[wire.Key]string
}

func (p *livePrinter) update(u reconstruct.Update) {
	f := u.Frame
	switch f.Event {
	case wire.EventError:
		p.newline()
		fmt.Fprintln(p.w, theme.Failure.Render("error: "+f.Message))
		p.field = ""
		return
	case wire.EventData:
	default:
		return
	}

	switch f.Key {
	case wire.KeyID, wire.KeyWord, wire.KeyMeaning:
		return
	case wire.KeyScore:
		if u.Item.Score != nil {
			p.heading(f.Key)
			fmt.Fprint(p.w, theme.ScoreColor(*u.Item.Score).Render(fmt.Sprintf("%.0f/100", *u.Item.Score)))
		}
		return
	}

	text := fieldText(u.Item, f.Key)
	if p.printed == nil {
		p.printed = make(map[wire.Key]string)
	}
	prev := p.printed[f.Key]
	if !strings.HasPrefix(text, prev) {
		// A whole value replaced the field; print it again.
		p.field = ""
		prev = ""
	}
	if text == prev {
		return
	}
	p.heading(f.Key)
	fmt.Fprint(p.w, text[len(prev):])
	p.printed[f.Key] = text
}

func (p *livePrinter) heading(k wire.Key) {
	if p.field == k {
		return
	}
	p.newline()
	fmt.Fprintln(p.w, theme.Label.Render(fieldLabel(k)))
	p.field = k
}

func (p *livePrinter) newline() {
	if p.field != "" {
		fmt.Fprintln(p.w)
	}
}

func (p *livePrinter) finish() {
	p.newline()
}

func fieldText(a reconstruct.Accumulator, k wire.Key) string {
	switch k {
	case wire.KeyFeedback:
		return a.Feedback
	case wire.KeyErrors:
		return a.Errors
	case wire.KeySuggestions:
		return a.Suggestions
	case wire.KeyCorrectAnswer:
		return a.CorrectAnswer
	case wire.KeyExamples:
		return strings.Join(a.Examples, "\n")
	}
	return ""
}

func fieldLabel(k wire.Key) string {
	switch k {
	case wire.KeyScore:
		return "Score"
	case wire.KeyFeedback:
		return "Feedback"
	case wire.KeyErrors:
		return "Errors"
	case wire.KeySuggestions:
		return "Suggestions"
	case wire.KeyCorrectAnswer:
		return "Corrected"
	case wire.KeyExamples:
		return "Examples"
	}
	return string(k)
}

// printItem renders a finished item for non-terminal output.
func printItem(w io.Writer, a reconstruct.Accumulator) {
	if a.Score != nil {
		fmt.Fprintf(w, "Score:       %.0f\n", *a.Score)
	}
	for _, k := range []wire.Key{wire.KeyFeedback, wire.KeyErrors, wire.KeySuggestions, wire.KeyCorrectAnswer} {
		if text := fieldText(a, k); text != "" {
			fmt.Fprintf(w, "%-12s %s\n", fieldLabel(k)+":", strings.ReplaceAll(text, "\n", "\n             "))
		}
	}
	for i, ex := range a.Examples {
		fmt.Fprintf(w, "%d. %s\n", i+1, ex)
	}
	if a.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:       %s\n", a.ErrorMessage)
	}
}

func init() {
	evaluateCmd.Flags().StringP("word", "w", "", "Vocabulary word the sentence should use")
	evaluateCmd.Flags().StringP("meaning", "m", "", "Meaning of the word")
	evaluateCmd.Flags().StringP("task", "t", "", "Exercise instruction shown to the learner")
	evaluateCmd.Flags().String("language", "", "Language being learned (default English)")
	evaluateCmd.Flags().String("mode", "", "Evaluation mode: stream or whole (default from config)")
	evaluateCmd.Flags().Bool("examples", false, "Generate example sentences for --word instead")
	evaluateCmd.Flags().String("server", "", "Base URL of a lexiz server; runs in-process when empty")
	evaluateCmd.Flags().Bool("json", false, "Print the final items as JSON")
}
