package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/abhisek/lexiz/internal/ui/practice"
)

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Practise writing sentences with a word and watch feedback stream in",
	RunE: func(cmd *cobra.Command, args []string) error {
		word, _ := cmd.Flags().GetString("word")
		if word == "" {
			return errors.New("--word is required")
		}
		meaning, _ := cmd.Flags().GetString("meaning")
		task, _ := cmd.Flags().GetString("task")
		language, _ := cmd.Flags().GetString("language")
		serverURL, _ := cmd.Flags().GetString("server")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// Log lines would corrupt the alt screen.
		logger, err := newLogger(cfg, "error")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		ev, closeFn, err := evaluator(ctx, cfg, serverURL, logger)
		if err != nil {
			return err
		}
		defer closeFn()

		return practice.Run(ctx, ev, practice.Word{
			Word:     word,
			Meaning:  meaning,
			Task:     task,
			Language: language,
		})
	},
}

func init() {
	practiceCmd.Flags().StringP("word", "w", "", "Vocabulary word to practise")
	practiceCmd.Flags().StringP("meaning", "m", "", "Meaning of the word")
	practiceCmd.Flags().StringP("task", "t", "", "Exercise instruction")
	practiceCmd.Flags().String("language", "", "Language being learned (default English)")
	practiceCmd.Flags().String("server", "", "Base URL of a lexiz server; runs in-process when empty")
}
