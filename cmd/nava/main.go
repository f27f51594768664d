// Command nava is the terminal client: photograph an object, pick what to
// make from it, and follow the generated build guide step by step.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vango-go/nava/internal/dotenv"
	"github.com/vango-go/nava/pkg/localstore"
)

type options struct {
	gateway   string
	apiKey    string
	geminiKey string
	home      string
	verbose   bool
}

// app carries the process dependencies so commands can run against fakes.
type app struct {
	opts   options
	in     *bufio.Scanner
	out    io.Writer
	errOut io.Writer
	log    *slog.Logger

	connect   func(context.Context, options, *slog.Logger) (*backend, error)
	openStore func(dir string) (*localstore.Store, error)
	devices   func() (mediaDevices, error)

	// autoAdvance overrides the guide's auto-advance delay when set.
	autoAdvance time.Duration

	mediaMu   sync.Mutex
	media     func() (mediaDevices, error)
	mediaOpen bool
	logCloser io.Closer
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		in:        bufio.NewScanner(stdin),
		out:       stdout,
		errOut:    stderr,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		connect:   connect,
		openStore: localstore.Open,
		devices:   openDevices,
	}
}

func defaultHome() string {
	if dir := os.Getenv("NAVA_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nava"
	}
	return filepath.Join(home, ".nava")
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "nava",
		Short:         "Turn everyday objects into DIY builds",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.setupLogging()
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.closeMedia()
			if a.logCloser != nil {
				_ = a.logCloser.Close()
			}
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.gateway, "gateway", os.Getenv("NAVA_GATEWAY_URL"), "gateway URL (env NAVA_GATEWAY_URL)")
	flags.StringVar(&a.opts.apiKey, "api-key", os.Getenv("NAVA_API_KEY"), "gateway API key (env NAVA_API_KEY)")
	flags.StringVar(&a.opts.geminiKey, "gemini-key", os.Getenv("GEMINI_API_KEY"), "call Gemini directly with this key when no gateway is set (env GEMINI_API_KEY)")
	flags.StringVar(&a.opts.home, "home", defaultHome(), "directory for local history and the saved session (env NAVA_HOME)")
	flags.BoolVarP(&a.opts.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		newBuildCmd(a),
		newHistoryCmd(a),
		newSignUpCmd(a),
		newVerifyCmd(a),
		newSignInCmd(a),
		newResetPasswordCmd(a),
		newSignOutCmd(a),
		newProfileCmd(a),
		newLanguagesCmd(a),
	)
	return root
}

// setupLogging sends debug logs to stderr with --verbose, otherwise info
// and above to a rotating file in the home directory.
func (a *app) setupLogging() {
	if a.opts.verbose {
		a.log = slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: slog.LevelDebug}))
		return
	}
	if err := os.MkdirAll(a.opts.home, 0o700); err != nil {
		return
	}
	file := &lumberjack.Logger{
		Filename:   filepath.Join(a.opts.home, "nava.log"),
		MaxSize:    5,
		MaxBackups: 2,
		Compress:   true,
	}
	a.logCloser = file
	a.log = slog.New(slog.NewJSONHandler(file, nil))
}

// mediaDevices opens the audio devices on first use.
func (a *app) mediaDevices() (mediaDevices, error) {
	a.mediaMu.Lock()
	if a.media == nil {
		a.media = sync.OnceValues(func() (mediaDevices, error) {
			d, err := a.devices()
			if err == nil {
				a.mediaMu.Lock()
				a.mediaOpen = true
				a.mediaMu.Unlock()
			}
			return d, err
		})
	}
	open := a.media
	a.mediaMu.Unlock()
	return open()
}

func (a *app) closeMedia() {
	a.mediaMu.Lock()
	open, opened := a.media, a.mediaOpen
	a.mediaMu.Unlock()
	if opened {
		if d, err := open(); err == nil {
			d.Close()
		}
	}
}

// prompt prints label and reads one trimmed line. It returns io.EOF when
// input is exhausted.
func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	if !a.in.Scan() {
		fmt.Fprintln(a.out)
		if err := a.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(a.in.Text()), nil
}

func runMain(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "nava: load .env: %v\n", err)
		return 1
	}
	a := newApp(stdin, stdout, stderr)
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "nava: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
