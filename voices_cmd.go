package main

import (
	"context"
	"fmt"

	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/Dherick07/dexterous/internal/samples"
	"github.com/Dherick07/dexterous/kokoro"
)

var voicesCmd = &cobra.Command{
	Use:     "voices [QUERY]",
	Short:   "List the voices the speech server offers",
	Long:    paragraph(fmt.Sprintf("\nList every voice the speech server offers. Voices with a cached %s are marked with a dot.", keyword("preview clip"))),
	Example: paragraph("dexterous voices\ndexterous voices bella"),
	Args:    cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client := kokoro.NewClient(kokoro.WithBaseURL(apiURL))
		voices, err := client.Voices(context.Background())
		if err != nil {
			return fmt.Errorf("unable to list voices: %w", err)
		}

		if len(args) == 1 {
			matches := fuzzy.Find(args[0], voices)
			filtered := make([]string, len(matches))
			for i, match := range matches {
				filtered[i] = match.Str
			}
			voices = filtered
		}

		store, _ := samples.NewStore(samplesDir)
		if store != nil {
			defer store.Close()
		}

		width := 0
		for _, voice := range voices {
			if w := runewidth.StringWidth(voice); w > width {
				width = w
			}
		}
		for _, voice := range voices {
			if store != nil && store.Has(voice) {
				fmt.Println(runewidth.FillRight(voice, width), subtle("●"))
				continue
			}
			fmt.Println(voice)
		}
		return nil
	},
}
