package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"strings"

	"github.com/10gen/migration-auditor/internal/access"
	"github.com/10gen/migration-auditor/internal/credentials"
	"github.com/10gen/migration-auditor/internal/logger"
	"github.com/10gen/migration-auditor/internal/mongocluster"
	"github.com/10gen/migration-auditor/internal/sampler"
	"github.com/10gen/migration-auditor/internal/types"
	"github.com/10gen/migration-auditor/internal/verifier"
	"github.com/10gen/migration-auditor/internal/verifier/namespaces"
	"github.com/10gen/migration-auditor/internal/verifier/runlog"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/urfave/cli"
	"github.com/urfave/cli/altsrc"
)

const (
	srcURI         = "srcURI"
	dstURI         = "dstURI"
	dstUsername    = "dstUsername"
	dstPassword    = "dstPassword"
	dstPasswordEnv = "dstPasswordEnv"
	loggingDB      = "loggingDB"
	dbWhitelist    = "dbWhitelist"
	logPath        = "logPath"
	debugFlag      = "debug"
	configFileFlag = "configFile"

	sampleSize = "sampleSize"
	partitions = "partitions"
	seed       = "seed"

	runID      = "runID"
	serverPort = "serverPort"
)

func main() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	flags := []cli.Flag{
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  configFileFlag,
			Usage: "path to an optional YAML config file",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  srcURI,
			Value: "mongodb://localhost:27017",
			Usage: "source cluster `URI`; the logging database lives here",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  dstURI,
			Value: "mongodb://localhost:27018",
			Usage: "destination cluster `URI`",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  dstUsername,
			Usage: "`username` for the destination; overrides any in the destination URI",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  dstPassword,
			Usage: "destination `password`; if neither this nor " + dstPasswordEnv + " is given, you will be prompted",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  dstPasswordEnv,
			Usage: "name of an environment `variable` that holds the destination password",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  loggingDB,
			Value: verifier.DefaultLoggingDBName,
			Usage: "`name` of the database that holds run records, run logs, and staging collections",
		}),
		altsrc.NewStringSliceFlag(cli.StringSliceFlag{
			Name:  dbWhitelist,
			Usage: "`databases` to verify (default: all)",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  logPath,
			Value: "stderr",
			Usage: "logging file `path`: stdout, stderr, or a directory",
		}),
		altsrc.NewBoolFlag(cli.BoolFlag{
			Name:  debugFlag,
			Usage: "Turn on debug logging",
		}),
	}

	sampleFlags := []cli.Flag{
		altsrc.NewInt64Flag(cli.Int64Flag{
			Name:  sampleSize,
			Value: sampler.DefaultSampleSize,
			Usage: "`number` of documents to sample per collection",
		}),
		altsrc.NewIntFlag(cli.IntFlag{
			Name:  partitions,
			Value: sampler.DefaultPartitions,
			Usage: "`number` of partitions to sample from per collection",
		}),
		altsrc.NewInt64Flag(cli.Int64Flag{
			Name:  seed,
			Usage: "random `seed` for sampling; 0 means to seed from the clock",
		}),
	}

	reportFlags := []cli.Flag{
		cli.StringFlag{
			Name:     runID,
			Usage:    "`ID` of the run to report",
			Required: true,
		},
	}

	serveFlags := []cli.Flag{
		altsrc.NewIntFlag(cli.IntFlag{
			Name:  serverPort,
			Value: verifier.DefaultServerPort,
			Usage: "`port` for the report web server",
		}),
	}

	app := &cli.App{
		Name:  "migration-auditor",
		Usage: "audit a MongoDB migration by counts, metadata, or sampled content",
		Flags: flags,
		Before: readConfigFile(flags),
		Commands: []cli.Command{
			{
				Name:   string(types.KindCount),
				Usage:  "compare each collection’s document count",
				Action: verificationAction(ctx, types.KindCount),
			},
			{
				Name:   string(types.KindMetadata),
				Usage:  "compare each collection’s options and indexes",
				Action: verificationAction(ctx, types.KindMetadata),
			},
			{
				Name:   string(types.KindSample),
				Usage:  "compare hashes of a random sample of each collection’s documents",
				Flags:  sampleFlags,
				Before: readConfigFile(sampleFlags),
				Action: verificationAction(ctx, types.KindSample),
			},
			{
				Name:  "report",
				Usage: "print the report of an earlier run",
				Flags: reportFlags,
				Action: func(cCtx *cli.Context) error {
					return report(ctx, cCtx)
				},
			},
			{
				Name:   "serve",
				Usage:  "serve run reports over HTTP",
				Flags:  serveFlags,
				Before: readConfigFile(serveFlags),
				Action: func(cCtx *cli.Context) error {
					return serve(ctx, cCtx)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Stack().Msg("Fatal Error")
	}
}

func readConfigFile(flags []cli.Flag) cli.BeforeFunc {
	return func(cCtx *cli.Context) error {
		confFile := cCtx.String(configFileFlag)

		if len(confFile) > 0 {
			readConfFunc := altsrc.InitInputSourceWithContext(flags, altsrc.NewYamlSourceFromFlagFunc(configFileFlag))
			return readConfFunc(cCtx)
		}

		return nil
	}
}

func newLogger(cCtx *cli.Context) (*logger.Logger, error) {
	level := lo.Ternary(cCtx.GlobalBool(debugFlag), zerolog.DebugLevel, zerolog.InfoLevel)
	zerolog.SetGlobalLevel(level)

	return logger.NewFromPath(cCtx.GlobalString(logPath), level)
}

// whitelistArg returns the whitelist as given, or nil if none was.
func whitelistArg(cCtx *cli.Context) any {
	if !cCtx.GlobalIsSet(dbWhitelist) {
		return nil
	}

	return expandCommaSeparators(cCtx.GlobalStringSlice(dbWhitelist))
}

func verificationAction(ctx context.Context, kind types.VerificationKind) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		// Reject a bad whitelist before touching any cluster.
		whitelist := whitelistArg(cCtx)
		if _, err := namespaces.ParseWhitelist(whitelist); err != nil {
			return err
		}

		logger, err := newLogger(cCtx)
		if err != nil {
			return err
		}

		src, err := mongocluster.Connect(ctx, logger, "source", cCtx.GlobalString(srcURI), mo.None[mongocluster.Credential]())
		if err != nil {
			return err
		}
		defer src.Disconnect(context.Background())

		loggingDBName := cCtx.GlobalString(loggingDB)
		store := runlog.NewMongoStore(src.Client().Database(loggingDBName))
		if err := store.CreateIndexes(ctx); err != nil {
			return err
		}

		var dst *mongocluster.Cluster
		defer func() {
			if dst != nil {
				_ = dst.Disconnect(context.Background())
			}
		}()

		connectDst := func(
			ctx context.Context,
			uri string,
			cred mo.Option[mongocluster.Credential],
		) (access.Cluster, error) {
			var err error
			dst, err = mongocluster.Connect(ctx, logger, "destination", uri, cred)
			if err != nil {
				return nil, err
			}

			return dst, nil
		}

		v := verifier.NewVerifier(logger, src, store, connectDst)
		if s := cCtx.Int64(seed); s != 0 {
			v.SetRandomSource(rand.New(rand.NewSource(s)))
		}

		cfg := verifier.Config{
			LoggingDBName: loggingDBName,
			DstURI:        cCtx.GlobalString(dstURI),
			DstUsername:   cCtx.GlobalString(dstUsername),
			SampleSize:    cCtx.Int64(sampleSize),
			Partitions:    cCtx.Int(partitions),
			Whitelist:     whitelist,
		}

		if cfg.DstUsername != "" {
			cfg.DstCredential = credentials.Select(
				cCtx.GlobalString(dstPassword),
				cCtx.GlobalString(dstPasswordEnv),
				"Enter password for destination user "+cfg.DstUsername+": ",
			)
		}

		run, err := v.Verify(ctx, kind, cfg)
		if err != nil {
			if run.ID != "" {
				return errors.Wrapf(err, "run %s did not complete", run.ID)
			}

			return err
		}

		return verifier.NewReporter(store, loggingDBName).Report(ctx, run.ID, os.Stdout)
	}
}

func report(ctx context.Context, cCtx *cli.Context) error {
	logger, err := newLogger(cCtx)
	if err != nil {
		return err
	}

	src, err := mongocluster.Connect(ctx, logger, "source", cCtx.GlobalString(srcURI), mo.None[mongocluster.Credential]())
	if err != nil {
		return err
	}
	defer src.Disconnect(context.Background())

	loggingDBName := cCtx.GlobalString(loggingDB)
	store := runlog.NewMongoStore(src.Client().Database(loggingDBName))

	return verifier.NewReporter(store, loggingDBName).Report(ctx, runlog.RunID(cCtx.String(runID)), os.Stdout)
}

func serve(ctx context.Context, cCtx *cli.Context) error {
	logger, err := newLogger(cCtx)
	if err != nil {
		return err
	}

	src, err := mongocluster.Connect(ctx, logger, "source", cCtx.GlobalString(srcURI), mo.None[mongocluster.Credential]())
	if err != nil {
		return err
	}
	defer src.Disconnect(context.Background())

	store := runlog.NewMongoStore(src.Client().Database(cCtx.GlobalString(loggingDB)))

	return verifier.NewWebServer(cCtx.Int(serverPort), store, logger).Run(ctx)
}

func expandCommaSeparators(in []string) []string {
	ret := []string{}
	for _, ns := range in {
		multiples := strings.Split(ns, ",")
		for _, sub := range multiples {
			sub = strings.Trim(sub, " \t")
			if sub != "" {
				ret = append(ret, sub)
			}
		}
	}
	return ret
}
