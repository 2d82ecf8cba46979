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
	"syscall"
	"time"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/imagecodec"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/mqtt"
	"github.com/fiapx/fiapx-frame-sampler/internal/inspector"
	"github.com/fiapx/fiapx-frame-sampler/internal/preset"
	"github.com/fiapx/fiapx-frame-sampler/internal/sampler"
	"github.com/fiapx/fiapx-frame-sampler/pkg/logger"
	"github.com/schollz/progressbar/v3"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "framesampler",
		Usage: "Inspect videos and save a subset of their frames as images",
		Writer: out,
		// Exit codes are applied by main.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		OnUsageError:   usageError,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
				Value: "warn",
			},
			&cli.StringFlag{
				Name:  "ffmpeg",
				Usage: "ffmpeg binary used for decoding",
				Value: "ffmpeg",
			},
		},
		Commands: []*cli.Command{
			{
				Name:         "inspect",
				Usage:        "Print a video's properties and the sampling options it supports",
				OnUsageError: usageError,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "video",
						Aliases:  []string{"i"},
						Usage:    "Source video file",
						Required: true,
					},
					presetFlag(),
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runInspect(ctx, cmd, out)
				},
			},
			{
				Name:         "sample",
				Usage:        "Save every n-th frame of a video as numbered image files",
				OnUsageError: usageError,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "video",
						Aliases:  []string{"i"},
						Usage:    "Source video file",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "output",
						Aliases:  []string{"o"},
						Usage:    "Directory where frames will be written",
						Required: true,
					},
					&cli.Float64Flag{
						Name:  "fps",
						Usage: "Target frames per second to keep",
					},
					&cli.Float64Flag{
						Name:  "interval",
						Usage: "Seconds between kept frames",
					},
					&cli.StringFlag{
						Name:    "resolution",
						Aliases: []string{"r"},
						Usage:   "Output resolution: native, a catalog name such as 720p, or WxH",
						Value:   entity.ResolutionNative,
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Image format: jpg, png or webp",
						Value:   string(entity.DefaultFormat),
					},
					&cli.BoolFlag{
						Name:  "quiet",
						Usage: "Do not render a progress bar",
					},
					presetFlag(),
					&cli.StringFlag{
						Name:    "mqtt-broker",
						Usage:   "Also publish progress to this MQTT broker (host:port)",
						Sources: cli.EnvVars("FRAMESAMPLER_MQTT_BROKER"),
					},
					&cli.StringFlag{
						Name:  "mqtt-topic",
						Usage: "Topic prefix for MQTT progress and result messages",
						Value: "framesampler",
					},
					&cli.Float64Flag{
						Name:  "mqtt-step",
						Usage: "Percent of progress between MQTT updates",
						Value: 5,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runSample(ctx, cmd, out)
				},
			},
		},
	}
}

func presetFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "preset",
		Aliases: []string{"p"},
		Usage:   "YAML file with default rate, resolution, format and extra named resolutions",
	}
}

// loadPreset returns nil when no preset was given.
func loadPreset(cmd *cli.Command) (*preset.Preset, error) {
	path := cmd.String("preset")
	if path == "" {
		return nil, nil
	}
	p, err := preset.Load(path)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitUsage)
	}
	return p, nil
}

func catalogFor(p *preset.Preset) []entity.Resolution {
	if p == nil {
		return entity.StandardResolutions
	}
	return p.Catalog(entity.StandardResolutions)
}

func newLogger(cmd *cli.Command) (*zap.Logger, error) {
	log, err := logger.NewConsole(cmd.String("log-level"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitUsage)
	}
	return log, nil
}

func runInspect(ctx context.Context, cmd *cli.Command, out io.Writer) error {
	p, err := loadPreset(cmd)
	if err != nil {
		return err
	}

	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	insp := inspector.New(ffmpeg.NewOpener(cmd.String("ffmpeg"), log), log)
	info, err := insp.Inspect(ctx, cmd.String("video"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	fmt.Fprintf(out, "File:         %s\n", info.Path)
	fmt.Fprintf(out, "Codec:        %s\n", info.Codec)
	fmt.Fprintf(out, "Resolution:   %s\n", info.Resolution())
	fmt.Fprintf(out, "Frame rate:   %.3f fps\n", info.FrameRate)
	fmt.Fprintf(out, "Total frames: %d\n", info.TotalFrames)
	fmt.Fprintf(out, "Duration:     %.2fs\n", info.DurationSecs)

	names := []string{entity.ResolutionNative}
	for _, r := range inspector.EligibleResolutions(info.VideoProperties, catalogFor(p)) {
		names = append(names, fmt.Sprintf("%s (%dx%d)", r.Name, r.Width, r.Height))
	}
	fmt.Fprintf(out, "Resolutions:  %s\n", strings.Join(names, ", "))

	rates := inspector.EligibleRates(info.FrameRate)
	if len(rates) == 0 {
		fmt.Fprintln(out, "Rates:        native only")
		return nil
	}
	fmt.Fprintf(out, "Rates:        1-%d fps\n", rates[len(rates)-1])
	return nil
}

func runSample(ctx context.Context, cmd *cli.Command, out io.Writer) error {
	p, err := loadPreset(cmd)
	if err != nil {
		return err
	}
	req, err := requestFromFlags(cmd, p)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	opener := ffmpeg.NewOpener(cmd.String("ffmpeg"), log)
	catalog := catalogFor(p)
	if err := checkEligible(ctx, inspector.New(opener, log), req, catalog); err != nil {
		return err
	}

	codec := imagecodec.New()
	smp := sampler.New(opener, codec, codec, log).WithCatalog(catalog)

	events := make(chan entity.ProgressEvent, 64)
	sinks := fanOut{progressChannel(events)}

	var emitter *mqtt.Emitter
	if broker := cmd.String("mqtt-broker"); broker != "" {
		clientID := fmt.Sprintf("framesampler-%d", os.Getpid())
		emitter, err = mqtt.Connect(broker, clientID, cmd.String("mqtt-topic"),
			filepath.Base(req.SourcePath), cmd.Float64("mqtt-step"), log)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		defer emitter.Close()
		sinks = append(sinks, emitter)
	}

	done := make(chan entity.SamplingResult, 1)
	go func() {
		defer close(events)
		done <- smp.Sample(ctx, req, sinks)
	}()

	var bar *progressbar.ProgressBar
	for ev := range events {
		if cmd.Bool("quiet") {
			continue
		}
		if bar == nil {
			bar = newBar(ev.Total)
		}
		if ev.Total > 0 && ev.Processed > ev.Total {
			bar.ChangeMax(ev.Processed)
		}
		_ = bar.Set(ev.Processed)
	}
	result := <-done
	if bar != nil {
		if result.Succeeded() {
			_ = bar.Finish()
		}
		fmt.Fprintln(os.Stderr)
	}
	if emitter != nil {
		emitter.PublishResult(result)
		logDelivery(log, emitter)
	}

	return report(out, req, result)
}

type deliveryStats interface {
	Stats() (published, failed uint64)
}

func logDelivery(log *zap.Logger, s deliveryStats) {
	published, failed := s.Stats()
	if failed > 0 {
		log.Warn("some mqtt updates were not delivered",
			zap.Uint64("published", published), zap.Uint64("failed", failed))
		return
	}
	log.Info("mqtt updates delivered", zap.Uint64("published", published))
}

// checkEligible inspects the source and refuses output sizes larger than it.
func checkEligible(ctx context.Context, insp port.VideoInspector, req entity.SamplingRequest, catalog []entity.Resolution) error {
	info, err := insp.Inspect(ctx, req.SourcePath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Sampling failed (%s): %v", entity.ReasonUnopenable, err), 1)
	}
	if err := inspector.CheckResolution(info.VideoProperties, catalog, req.Resolution); err != nil {
		names := []string{entity.ResolutionNative}
		for _, r := range inspector.EligibleResolutions(info.VideoProperties, catalog) {
			names = append(names, r.Name)
		}
		return cli.Exit(fmt.Sprintf("%v\nEligible resolutions: %s", err, strings.Join(names, ", ")), exitUsage)
	}
	return nil
}

// fanOut delivers each progress callback to every sink in order.
type fanOut []port.ProgressSink

func (f fanOut) Progress(processed, total int) {
	for _, s := range f {
		s.Progress(processed, total)
	}
}

// progressChannel forwards progress to the rendering goroutine. Updates are
// dropped while the renderer is behind; the next one supersedes them.
func progressChannel(events chan<- entity.ProgressEvent) port.ProgressFunc {
	return func(processed, total int) {
		select {
		case events <- entity.ProgressEvent{Processed: processed, Total: total}:
		default:
		}
	}
}

func newBar(total int) *progressbar.ProgressBar {
	size := total
	if size <= 0 {
		size = -1
	}
	return progressbar.NewOptions(size,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Sampling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
}

// requestFromFlags builds the sampling request. Flags given explicitly take
// precedence over the preset, which takes precedence over flag defaults.
func requestFromFlags(cmd *cli.Command, p *preset.Preset) (entity.SamplingRequest, error) {
	req := entity.SamplingRequest{
		SourcePath: cmd.String("video"),
		OutputDir:  cmd.String("output"),
		Resolution: cmd.String("resolution"),
		Format:     cmd.String("format"),
	}

	rate, err := rateFromFlags(cmd)
	if err != nil {
		return req, err
	}
	req.Rate = rate
	if p == nil {
		return req, nil
	}

	if !cmd.IsSet("fps") && !cmd.IsSet("interval") {
		if req.Rate, err = p.RateSelector(); err != nil {
			return req, err
		}
	}
	if !cmd.IsSet("resolution") && p.Resolution != "" {
		req.Resolution = p.Resolution
	}
	if !cmd.IsSet("format") && p.Format != "" {
		req.Format = p.Format
	}
	return req, nil
}

func rateFromFlags(cmd *cli.Command) (entity.RateSelector, error) {
	fps, interval := cmd.IsSet("fps"), cmd.IsSet("interval")
	switch {
	case fps && interval:
		return entity.RateSelector{}, fmt.Errorf("--fps and --interval are mutually exclusive")
	case fps:
		if cmd.Float64("fps") <= 0 {
			return entity.RateSelector{}, fmt.Errorf("--fps must be greater than zero")
		}
		return entity.ByTargetRate(cmd.Float64("fps")), nil
	case interval:
		if cmd.Float64("interval") <= 0 {
			return entity.RateSelector{}, fmt.Errorf("--interval must be greater than zero")
		}
		return entity.ByInterval(cmd.Float64("interval")), nil
	}
	return entity.NativeRate(), nil
}

func report(out io.Writer, req entity.SamplingRequest, result entity.SamplingResult) error {
	if result.FormatDowngraded {
		fmt.Fprintf(out, "Format %q is not supported, frames were saved as %s\n", req.Format, result.Format)
	}

	switch result.Status {
	case entity.SamplingSucceeded:
		fmt.Fprintf(out, "Saved %d frames (every %d of %d decoded) to %s\n",
			result.SavedFrames, result.Stride, result.ProcessedFrames, req.OutputDir)
		return nil
	case entity.SamplingCancelled:
		return cli.Exit(fmt.Sprintf("Cancelled: %d frames saved so far remain in %s", result.SavedFrames, req.OutputDir), 130)
	}

	msg := fmt.Sprintf("Sampling failed (%s): %v", result.Reason(), result.Err.Err)
	if result.SavedFrames > 0 {
		msg += fmt.Sprintf("\n%d frames written before the failure remain in %s", result.SavedFrames, req.OutputDir)
	}
	return cli.Exit(msg, 1)
}

const exitUsage = 2

func usageError(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return cli.Exit("Incorrect usage: "+err.Error(), exitUsage)
}

// exitCode maps errors from Run to a process exit status. Actions always
// return cli.Exit errors, so anything else was raised while parsing flags,
// such as a missing required flag.
func exitCode(err error) int {
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return exitUsage
}
