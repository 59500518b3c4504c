package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/Dherick07/dexterous/internal/samples"
	"github.com/Dherick07/dexterous/kokoro"
	"github.com/Dherick07/dexterous/tts"
)

var (
	samplesForce       bool
	samplesConcurrency int
)

var samplesCmd = &cobra.Command{
	Use:   "samples [VOICE...]",
	Short: "Generate and cache voice preview clips",
	Long: paragraph(
		fmt.Sprintf("\nSpeak a short greeting with every voice and cache the clips, so the composer can %s a voice before generating with it. Voices that already have a clip are skipped.", keyword("preview")),
	),
	Example: paragraph("dexterous samples\ndexterous samples af_bella bm_george\ndexterous samples --force"),
	RunE:    runSamples,
}

func init() {
	samplesCmd.Flags().BoolVar(&samplesForce, "force", false, "regenerate clips that already exist")
	samplesCmd.Flags().IntVar(&samplesConcurrency, "concurrency", 3, "parallel synthesis requests")
}

func runSamples(_ *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	client := kokoro.NewClient(kokoro.WithBaseURL(apiURL))
	store, err := samples.NewStore(samplesDir, samples.WithFormat(format))
	if err != nil {
		return fmt.Errorf("unable to open sample store: %w", err)
	}
	defer store.Close()

	catalog, err := client.Voices(ctx)
	if err != nil {
		return fmt.Errorf("unable to list voices: %w", err)
	}

	voices := catalog
	if len(args) > 0 {
		known := make(map[string]struct{}, len(catalog))
		for _, v := range catalog {
			known[v] = struct{}{}
		}
		for _, v := range args {
			if _, ok := known[v]; !ok {
				return fmt.Errorf("unknown voice %q", v)
			}
		}
		voices = args
	}

	var targets []string
	skipped := 0
	for _, v := range voices {
		if !samplesForce && store.Has(v) {
			skipped++
			continue
		}
		targets = append(targets, v)
	}

	generated, failed := generateSamples(ctx, client, store, targets)

	fmt.Printf("\nGenerated %d · Skipped %d · Errors %d · Total %d\n",
		generated, skipped, failed, len(voices))
	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d voices failed", failed)
	}
	return nil
}

// generateSamples synthesizes the targets with a small worker pool,
// rate limited so a local server is not flooded.
func generateSamples(ctx context.Context, client *kokoro.Client, store *samples.Store, targets []string) (generated, failed int) {
	if len(targets) == 0 {
		return 0, 0
	}

	limiter := rate.NewLimiter(rate.Every(300*time.Millisecond), 1)
	jobs := make(chan string)
	total := len(targets)

	var mu sync.Mutex
	done := 0

	var wg sync.WaitGroup
	workers := samplesConcurrency
	if workers < 1 {
		workers = 1
	}
	if workers > total {
		workers = total
	}
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for voice := range jobs {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				size, err := generateSample(ctx, client, store, voice)

				mu.Lock()
				done++
				i := done
				if err != nil {
					failed++
				} else {
					generated++
				}
				mu.Unlock()

				if err != nil {
					fmt.Fprintf(os.Stderr, "[%d/%d] %s  error: %v\n", i, total, voice, err)
					continue
				}
				fmt.Printf("[%d/%d] %s  %s\n", i, total, voice, subtle(humanize.Bytes(uint64(size))))
			}
		}()
	}

feed:
	for _, v := range targets {
		select {
		case jobs <- v:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	return generated, failed
}

func generateSample(ctx context.Context, client *kokoro.Client, store *samples.Store, voice string) (int, error) {
	data, _, err := client.SynthesizeFile(ctx, tts.SpeechRequest{
		Text:   samples.DefaultText,
		Voice:  voice,
		Speed:  1.0,
		Format: store.Format(),
	})
	if err != nil {
		return 0, err
	}
	if _, err := store.Put(voice, data); err != nil {
		return 0, err
	}
	return len(data), nil
}
