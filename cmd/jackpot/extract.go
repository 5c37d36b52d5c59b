package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/jackpot/internal/convo"
	"github.com/MikeSquared-Agency/jackpot/internal/extractor"
	"github.com/MikeSquared-Agency/jackpot/internal/intent"
)

type extractOutput struct {
	Text       string           `json:"text"`
	Extraction extractor.Result `json:"extraction"`
	Intent     intent.Intent    `json:"intent"`
}

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <text>",
		Short: "Print the extractor reading and rule-based intent for a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := extract(strings.Join(args, " "))
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

// extract classifies text against a fresh context with no external calls.
func extract(text string) extractOutput {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	classifier := intent.New(convo.New(nil, 0, logger), logger)
	return extractOutput{
		Text:       text,
		Extraction: extractor.Extract(text),
		Intent:     classifier.Classify(context.Background(), convo.Key{ThreadID: "cli", ParticipantID: "cli"}, text),
	}
}
