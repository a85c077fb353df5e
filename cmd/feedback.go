package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bhulekh-seva/ror-cli/internal/model"
)

var feedbackComment string

var feedbackCmd = &cobra.Command{
	Use:   "feedback <extraction-id> <correct|wrong>",
	Short: "Record review feedback on a field extraction",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		fb := model.Feedback(args[1])
		if fb != model.FeedbackCorrect && fb != model.FeedbackWrong {
			return eris.Errorf("feedback must be correct or wrong, got %q", args[1])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.UpdateExtractionFeedback(ctx, args[0], fb, feedbackComment); err != nil {
			return err
		}
		zap.L().Info("feedback recorded", zap.String("extraction_id", args[0]), zap.String("feedback", args[1]))
		return nil
	},
}

func init() {
	feedbackCmd.Flags().StringVar(&feedbackComment, "comment", "", "optional reviewer comment")
	rootCmd.AddCommand(feedbackCmd)
}
