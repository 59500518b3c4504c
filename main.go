// Package main provides the entry point for the Dexterous CLI
// application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/Dherick07/dexterous/internal/audio"
	"github.com/Dherick07/dexterous/internal/samples"
	"github.com/Dherick07/dexterous/internal/text"
	"github.com/Dherick07/dexterous/kokoro"
	"github.com/Dherick07/dexterous/tts"
	"github.com/Dherick07/dexterous/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	markdownExts = []string{".md", ".markdown", ".mdown"}

	speechFormats = map[string]struct{}{
		"mp3": {}, "wav": {}, "pcm": {}, "opus": {}, "flac": {},
	}

	configFile string
	apiURL     string
	voiceFlags []string
	voiceWire  string
	speed      float64
	format     string
	outputDir  string
	samplesDir string
	alwaysSave bool
	noPlay     bool
	tui        bool
	watch      bool
	mouse      bool
	isTerminal bool

	rootCmd = &cobra.Command{
		Use:   "dexterous [SOURCE]",
		Short: "Turn text into speech from the command line",
		Long: paragraph(
			fmt.Sprintf("\nTurn text into %s through a Kokoro speech server. Reads a file, stdin, or opens an interactive composer.", keyword("spoken audio")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// source provides readable input text.
type source struct {
	reader io.ReadCloser
	path   string
}

// sourceFromArg opens the named file, or stdin for "-".
func sourceFromArg(arg string) (*source, error) {
	if arg == "-" {
		return &source{reader: os.Stdin}, nil
	}
	r, err := os.Open(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	p, err := filepath.Abs(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path: %w", err)
	}
	return &source{r, p}, nil
}

func isMarkdown(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, v := range markdownExts {
		if ext == v {
			return true
		}
	}
	return false
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to stat stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func validateOptions(cmd *cobra.Command) error {
	// grab config values from Viper
	apiURL = viper.GetString("api")
	speed = viper.GetFloat64("speed")
	format = viper.GetString("format")
	outputDir = viper.GetString("output")
	samplesDir = viper.GetString("samples")
	mouse = viper.GetBool("mouse")

	if speed < 0.25 || speed > 4.0 {
		return fmt.Errorf("speed must be between 0.25 and 4.0, got %g", speed)
	}
	if _, ok := speechFormats[format]; !ok {
		return fmt.Errorf("unsupported format %q (mp3, wav, pcm, opus, flac)", format)
	}

	// The voice flag is repeatable; multiple values join into one mix.
	voiceWire = viper.GetString("voice")
	if cmd.Flags().Changed("voice") {
		voiceWire = strings.Join(voiceFlags, "+")
	}

	var err error
	if outputDir, err = homedir.Expand(outputDir); err != nil {
		return fmt.Errorf("unable to expand output dir: %w", err)
	}
	if samplesDir, err = homedir.Expand(samplesDir); err != nil {
		return fmt.Errorf("unable to expand samples dir: %w", err)
	}

	if watch {
		tui = true
	}

	isTerminal = term.IsTerminal(int(os.Stdout.Fd()))
	return nil
}

func execute(cmd *cobra.Command, args []string) error {
	// A pipe on stdin always means CLI generation, even with --tui.
	if yes, err := stdinIsPipe(); err != nil {
		return err
	} else if yes && len(args) == 0 {
		src := &source{reader: os.Stdin}
		return runCLI(src)
	}

	switch len(args) {
	case 0:
		if !isTerminal {
			return errors.New("missing text source: pass a file, pipe text in, or run in a terminal")
		}
		return runTUI("", "")

	default:
		src, err := sourceFromArg(args[0])
		if err != nil {
			return err
		}
		if tui {
			content, err := readSource(src)
			if err != nil {
				return err
			}
			return runTUI(src.path, content)
		}
		return runCLI(src)
	}
}

// readSource drains the input and flattens markdown to plain
// sentences.
func readSource(src *source) (string, error) {
	defer src.reader.Close() //nolint:errcheck
	b, err := io.ReadAll(src.reader)
	if err != nil {
		return "", fmt.Errorf("unable to read source: %w", err)
	}
	content := string(b)
	if isMarkdown(src.path) {
		content = text.NewExtractor().PlainText(content)
	}
	return strings.TrimSpace(content), nil
}

func runCLI(src *source) error {
	content, err := readSource(src)
	if err != nil {
		return err
	}
	if content == "" {
		return errors.New("nothing to speak: the source is empty")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	client := kokoro.NewClient(kokoro.WithBaseURL(apiURL))

	catalog, err := client.Voices(ctx)
	if err != nil {
		return fmt.Errorf("unable to list voices: %w", err)
	}
	sel, err := tts.ParseWireString(voiceWire, catalog)
	if err != nil {
		return err
	}

	playing := !noPlay
	var sink tts.PlaybackSink
	if playing {
		player, err := audio.NewPlayer(audio.DefaultConfig())
		if err != nil {
			log.Warn("audio device unavailable, saving only", "error", err)
			playing = false
		} else {
			sink = player
			defer player.Close() //nolint:errcheck
		}
	}
	save := alwaysSave || !playing

	opts := []tts.ControllerOption{tts.WithFormat(format)}
	if sink != nil {
		opts = append(opts, tts.WithSink(sink))
	}
	ctrl := tts.NewController(client, opts...)
	defer ctrl.Close() //nolint:errcheck

	sub := ctrl.Bus().Subscribe()
	defer sub.Close()

	// Long input is spoken as a series of limit-sized requests.
	segments := text.Segments(content, tts.MaxTextLength)
	for i, seg := range segments {
		if len(segments) > 1 {
			fmt.Fprintln(os.Stderr, subtle(fmt.Sprintf("segment %d/%d", i+1, len(segments))))
		}
		artifact, err := speakSegment(ctx, ctrl, sub, seg, sel)
		if err != nil {
			return err
		}
		if save {
			path, err := artifact.Save(outputDir)
			if err != nil {
				return fmt.Errorf("unable to save audio: %w", err)
			}
			fmt.Println(path)
		}
	}
	return nil
}

// speakSegment runs one generation to completion, following the event
// stream for progress, and waits out live playback before returning.
func speakSegment(ctx context.Context, ctrl *tts.Controller, sub *tts.Subscription, seg string, sel *tts.Selection) (*tts.Artifact, error) {
	session, err := ctrl.Start(ctx, seg, sel, speed)
	if err != nil {
		return nil, err
	}

	var artifact *tts.Artifact
	for artifact == nil {
		select {
		case <-ctx.Done():
			session.Cancel()
			<-session.Done()
			return nil, ctx.Err()
		case ev := <-sub.Events():
			switch ev.Type {
			case tts.EventProgress:
				printProgress(ev)
			case tts.EventDownloadReady:
				clearProgress()
				artifact = ev.Artifact
			case tts.EventFailed:
				clearProgress()
				return nil, errors.New(ev.Message)
			case tts.EventCancelled:
				clearProgress()
				return nil, errors.New("generation cancelled")
			}
		}
	}

	// Playback began before downloadReady or not at all.
	for ctrl.PlaybackActive() {
		select {
		case <-ctx.Done():
			ctrl.Cancel()
			return artifact, ctx.Err()
		case ev := <-sub.Events():
			if ev.Type == tts.EventPlaybackEnded {
				return artifact, nil
			}
		case <-time.After(200 * time.Millisecond):
		}
	}
	return artifact, nil
}

// printProgress overwrites one status line on the terminal; pipes stay
// clean.
func printProgress(ev tts.Event) {
	if !isTerminal {
		return
	}
	if ev.Indeterminate() {
		fmt.Fprintf(os.Stderr, "\r%s received", humanize.Bytes(uint64(ev.Loaded)))
		return
	}
	fmt.Fprintf(os.Stderr, "\r%s / %s", humanize.Bytes(uint64(ev.Loaded)), humanize.Bytes(uint64(ev.Total)))
}

func clearProgress() {
	if isTerminal {
		fmt.Fprint(os.Stderr, "\r\033[K")
	}
}

func runTUI(path string, content string) error {
	cfg, err := env.ParseAsWithOptions[ui.Config](env.Options{Prefix: "DEXTEROUS_"})
	if err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	cfg.APIURL = apiURL
	cfg.Voice = voiceWire
	cfg.Speed = speed
	cfg.Format = format
	cfg.DownloadDir = outputDir
	cfg.EnableMouse = mouse
	cfg.Text = content
	if cfg.SamplesDir == "" {
		cfg.SamplesDir = samplesDir
	}
	if watch && path != "" {
		cfg.SourcePath = path
	}

	client := kokoro.NewClient(kokoro.WithBaseURL(cfg.APIURL))

	store, err := samples.NewStore(cfg.SamplesDir)
	if err != nil {
		log.Warn("voice samples unavailable", "error", err)
		store = nil
	} else {
		defer store.Close()
	}

	var sink tts.PlaybackSink
	player, err := audio.NewPlayer(audio.DefaultConfig())
	if err != nil {
		log.Warn("audio device unavailable, playback disabled", "error", err)
	} else {
		sink = player
		defer player.Close() //nolint:errcheck
	}

	opts := []tts.ControllerOption{tts.WithFormat(cfg.Format)}
	if cfg.MinBuffer > 0 {
		opts = append(opts, tts.WithMinPlayableBytes(cfg.MinBuffer))
	}
	if sink != nil {
		opts = append(opts, tts.WithSink(sink))
	}
	ctrl := tts.NewController(client, opts...)
	defer ctrl.Close() //nolint:errcheck

	if _, err := ui.NewProgram(cfg, ctrl, client, store, sink).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVar(&apiURL, "api", kokoro.DefaultBaseURL, "speech server base URL")
	rootCmd.Flags().StringArrayVarP(&voiceFlags, "voice", "v", nil, "voice to speak with; repeat to mix, id(weight) to weight")
	rootCmd.Flags().Float64Var(&speed, "speed", 1.0, "playback speed, 0.25 to 4.0")
	rootCmd.Flags().StringVarP(&format, "format", "f", "mp3", "audio format (mp3, wav, pcm, opus, flac)")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", ".", "directory audio files are saved into")
	rootCmd.Flags().BoolVar(&alwaysSave, "save", false, "save the audio even when playing it")
	rootCmd.Flags().BoolVar(&noPlay, "no-play", false, "generate and save without playing")
	rootCmd.Flags().BoolVarP(&tui, "tui", "t", false, "open the interactive composer")
	rootCmd.Flags().BoolVar(&watch, "watch", false, "reload the source file when it changes (implies --tui)")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel (TUI-mode only)")
	_ = rootCmd.Flags().MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag("api", rootCmd.Flags().Lookup("api"))
	_ = viper.BindPFlag("speed", rootCmd.Flags().Lookup("speed"))
	_ = viper.BindPFlag("format", rootCmd.Flags().Lookup("format"))
	_ = viper.BindPFlag("output", rootCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))

	viper.SetDefault("api", kokoro.DefaultBaseURL)
	viper.SetDefault("voice", "af_bella")
	viper.SetDefault("speed", 1.0)
	viper.SetDefault("format", samples.DefaultFormat)
	viper.SetDefault("output", ".")

	rootCmd.AddCommand(configCmd, manCmd, voicesCmd, samplesCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "dexterous")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find the configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "dexterous")}, dirs...)
	}

	if c := os.Getenv("DEXTEROUS_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("dexterous")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("dexterous")
	viper.AutomaticEnv()

	if cache, err := scope.CacheDir(); err == nil {
		viper.SetDefault("samples", filepath.Join(cache, "samples"))
	} else {
		viper.SetDefault("samples", filepath.Join(os.TempDir(), "dexterous-samples"))
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "dexterous.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
