package app

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agbru/hiersurr/internal/cli"
	"github.com/agbru/hiersurr/internal/correction"
	"github.com/agbru/hiersurr/internal/dispatch"
	"github.com/agbru/hiersurr/internal/ensemble"
	apperrors "github.com/agbru/hiersurr/internal/errors"
	"github.com/agbru/hiersurr/internal/logging"
	"github.com/agbru/hiersurr/internal/metrics"
	"github.com/agbru/hiersurr/internal/orchestration"
	"github.com/agbru/hiersurr/internal/parallel"
	"github.com/agbru/hiersurr/internal/problem"
	"github.com/agbru/hiersurr/internal/response"
	"github.com/agbru/hiersurr/internal/server"
)

// announcementBuffer sizes the in-process worker subscription.
const announcementBuffer = 16

func (a *Application) loadEnsemble(d problem.Defaults) (*ensemble.Ensemble, []problem.Problem, error) {
	if a.Config.EnsembleFile != "" {
		return problem.LoadEnsembleFile(a.Config.EnsembleFile, d)
	}
	return problem.BuiltinEnsemble(a.Config.Problem, d)
}

// fanOut broadcasts to every broadcaster in turn, stopping at the first
// failure.
func fanOut(bs ...parallel.Broadcaster) parallel.Broadcaster {
	return parallel.BroadcasterFunc(func(ctx context.Context, an parallel.Announcement) error {
		for _, b := range bs {
			if err := b.Broadcast(ctx, an); err != nil {
				return err
			}
		}
		return nil
	})
}

// run builds the dispatcher and executes the configured work. An
// in-process worker with its own ensemble follows the coordinator; with a
// metrics address the HTTP server runs alongside and remote workers follow
// over the hub.
func (a *Application) run(ctx context.Context, out io.Writer, logger logging.Logger) error {
	defaults := problem.Defaults{
		Async:       a.Config.Async,
		Concurrency: a.Config.Concurrency,
		Latency:     a.Config.Latency,
		Logger:      logger,
	}
	ens, problems, err := a.loadEnsemble(defaults)
	if err != nil {
		return err
	}
	workerEns, _, err := a.loadEnsemble(defaults)
	if err != nil {
		return err
	}
	settings, err := a.Config.CorrectionSettings()
	if err != nil {
		return err
	}
	propagation, err := correction.ParsePropagation(a.Config.Propagation)
	if err != nil {
		return err
	}

	m := metrics.New()
	local := parallel.NewChannelBroadcaster()
	defer local.Close()
	broadcasters := []parallel.Broadcaster{local}
	var hub *server.Hub
	if a.Config.MetricsAddr != "" {
		hub = server.NewHub(logger)
		broadcasters = append(broadcasters, hub)
	}
	coord := parallel.NewCoordinator(fanOut(broadcasters...),
		parallel.WithLogger(logger), parallel.WithTransitionHook(m.Transition))
	d, err := dispatch.New(ens,
		dispatch.WithLogger(logger),
		dispatch.WithRecorder(m),
		dispatch.WithCoordinator(coord),
		dispatch.WithCorrection(settings.Type, settings.Order),
		dispatch.WithPropagation(propagation),
	)
	if err != nil {
		return err
	}
	logger.Info("run starting", logging.String("run_id", coord.RunID().String()), logging.Int("models", ens.NumForms()))

	worker := parallel.NewWorker("local", workerEns, logger)
	sub := local.Subscribe(announcementBuffer)

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()
	if hub != nil {
		srv := server.New(a.Config.MetricsAddr, m, hub, logger)
		g.Go(func() error { return srv.Run(serverCtx) })
	}
	g.Go(func() error { return worker.Serve(gctx, sub) })
	g.Go(func() error {
		defer stopServer()
		if err := a.execute(gctx, d, problems, out); err != nil {
			return err
		}
		return coord.Shutdown(gctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("run finished",
		logging.Int("evaluations", d.Evaluations()),
		logging.Int("transitions", coord.Transitions()),
		logging.Int("corrections", d.Engine().Computes()))
	return nil
}

func (a *Application) execute(ctx context.Context, d *dispatch.Dispatcher, problems []problem.Problem, out io.Writer) error {
	if !a.Config.Quiet {
		cli.PrintExecutionConfig(a.Config, out)
		cli.PrintEnsemble(d.Ensemble(), out)
	}
	truth := problems[len(problems)-1]
	if a.Config.Samples == 0 {
		return a.runSingle(ctx, d, truth, out)
	}
	return a.runStudy(ctx, d, truth, out)
}

func (a *Application) runStudy(ctx context.Context, d *dispatch.Dispatcher, truth problem.Problem, out io.Writer) error {
	var reporter orchestration.ProgressReporter = cli.CLIProgressReporter{}
	progressOut := out
	if a.Config.Quiet {
		reporter = orchestration.NullProgressReporter{}
		progressOut = io.Discard
	}
	opts := orchestration.StudyOptions{
		Samples: a.Config.Samples,
		Ratio:   a.Config.Ratio,
		Seed:    a.Config.Seed,
		Lower:   truth.Lower,
		Upper:   truth.Upper,
	}
	report, err := orchestration.RunStudy(ctx, d, opts, reporter, progressOut)
	if err != nil {
		return err
	}
	if a.Config.Quiet {
		cli.DisplayQuietReport(out, report)
		return nil
	}
	cli.CLIResultPresenter{}.PresentReport(report, out)
	return nil
}

func (a *Application) runSingle(ctx context.Context, d *dispatch.Dispatcher, truth problem.Problem, out io.Writer) error {
	mode, err := response.ParseMode(a.Config.Mode)
	if err != nil {
		return apperrors.NewConfigError("%v", err)
	}
	point, err := a.Config.Point()
	if err != nil {
		return err
	}
	if point == nil {
		point = make([]float64, len(truth.Lower))
		for i := range point {
			point[i] = (truth.Lower[i] + truth.Upper[i]) / 2
		}
	}
	if len(point) != len(truth.Lower) {
		return apperrors.NewConfigError("-at has %d coordinates, %s takes %d", len(point), truth.Name, len(truth.Lower))
	}

	start := time.Now()
	s, resp, err := orchestration.EvaluateOnce(ctx, d, mode, response.Variables{Continuous: point})
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	if a.Config.Quiet {
		cli.DisplayQuietResponse(out, resp)
		return nil
	}
	cli.CLIResultPresenter{}.PresentResponse(s, resp, elapsed, out)
	return nil
}
