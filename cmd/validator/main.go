// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/cloudcix/validator/pkg/probe"
	"github.com/cloudcix/validator/pkg/validator"
	"github.com/cloudcix/validator/pkg/version"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/samber/lo"
	slogmulti "github.com/samber/slog-multi"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FlagCatGlobal     = "Global options:"
	FlagNameConfig    = "config"
	FlagNameLogFile   = "log-file"
	FlagNameRegion    = "region"
	FlagNameFile      = "file"
	FlagNameMode      = "mode"
	FlagNameOutput    = "output"
	FlagNameAdminPass = "admin-password"
	FlagNameRobotPass = "robot-password"
)

func main() {
	if err := Run(context.Background()); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func Run(ctx context.Context) error {
	var verbose, brief bool
	verboseFlag := &cli.BoolFlag{
		Name:        "verbose",
		Aliases:     []string{"v"},
		Usage:       "verbose output (includes debug)",
		EnvVars:     []string{"VALIDATOR_VERBOSE"},
		Destination: &verbose,
		Category:    FlagCatGlobal,
	}
	briefFlag := &cli.BoolFlag{
		Name:        "brief",
		Aliases:     []string{"b"},
		Usage:       "brief output (only warn and error)",
		EnvVars:     []string{"VALIDATOR_BRIEF"},
		Destination: &brief,
		Category:    FlagCatGlobal,
	}

	var logFile string
	logFileFlag := &cli.StringFlag{
		Name:        FlagNameLogFile,
		Usage:       "write debug log to `PATH`",
		EnvVars:     []string{"VALIDATOR_LOG_FILE"},
		Value:       "validator.log",
		Destination: &logFile,
		Category:    FlagCatGlobal,
	}

	var configPath, adminPassword, robotPassword string
	configFlags := []cli.Flag{
		&cli.StringFlag{
			Name:        FlagNameConfig,
			Aliases:     []string{"c"},
			Usage:       "use config file `PATH`",
			EnvVars:     []string{"VALIDATOR_CONFIG"},
			Value:       validator.DefaultConfigFile,
			Destination: &configPath,
			Category:    FlagCatGlobal,
		},
		&cli.StringFlag{
			Name:        FlagNameAdminPass,
			Usage:       "admin password, asked for if neither set here nor in the config",
			EnvVars:     []string{"VALIDATOR_ADMIN_PASSWORD"},
			Destination: &adminPassword,
			Category:    FlagCatGlobal,
		},
		&cli.StringFlag{
			Name:        FlagNameRobotPass,
			Usage:       "robot password overriding the config",
			EnvVars:     []string{"VALIDATOR_ROBOT_PASSWORD"},
			Destination: &robotPassword,
			Category:    FlagCatGlobal,
		},
	}

	var region string
	regionFlag := &cli.StringFlag{
		Name:        FlagNameRegion,
		Aliases:     []string{"r"},
		Usage:       "validate region `ID`",
		EnvVars:     []string{"VALIDATOR_REGION"},
		Required:    true,
		Destination: &region,
	}

	var file string
	fileFlag := &cli.StringFlag{
		Name:        FlagNameFile,
		Aliases:     []string{"f"},
		Usage:       "custom topology document `PATH`",
		Destination: &file,
	}

	before := func(quiet bool) cli.BeforeFunc {
		return func(_ *cli.Context) error {
			if verbose && brief {
				return cli.Exit("verbose and brief are mutually exclusive", 1)
			}

			logLevel := slog.LevelInfo
			if verbose {
				logLevel = slog.LevelDebug
			} else if brief {
				logLevel = slog.LevelWarn
			}

			logW := os.Stderr

			handlers := []slog.Handler{
				tint.NewHandler(logW, &tint.Options{
					Level:      logLevel,
					TimeFormat: time.TimeOnly,
					NoColor:    !isatty.IsTerminal(logW.Fd()),
				}),
			}

			if logFile != "" {
				handlers = append(handlers, slog.NewTextHandler(&lumberjack.Logger{
					Filename:   logFile,
					MaxSize:    5, // MB
					MaxBackups: 4,
					MaxAge:     30, // days
					Compress:   true,
				}, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				}))
			}

			slog.SetDefault(slog.New(slogmulti.Fanout(handlers...)))

			if quiet {
				return nil
			}

			slog.Info("CloudCIX Validator", "version", version.Version)

			return nil
		}
	}

	defaultFlags := flatten([]cli.Flag{verboseFlag, briefFlag, logFileFlag}, configFlags)

	// setup loads the config and builds the validator for a command
	setup := func() (*validator.Validator, error) {
		cfg, err := validator.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}

		if adminPassword != "" {
			cfg.Admin.Password = adminPassword
		}
		if robotPassword != "" {
			cfg.Robot.Password = robotPassword
		}
		if cfg.Admin.Password == "" {
			password, err := validator.Terminal{}.Password("[validator] Provide network password")
			if err != nil {
				return nil, fmt.Errorf("reading network password: %w", err)
			}
			cfg.Admin.Password = password
		}

		if err := cfg.Validate(); err != nil {
			return nil, err //nolint:wrapcheck
		}

		client, err := validator.NewClient(cfg)
		if err != nil {
			return nil, err //nolint:wrapcheck
		}

		v := validator.New(cfg, client, probe.NewPing(cfg.Ping.Parallel), validator.Terminal{}, os.Stdout)
		if isatty.IsTerminal(os.Stderr.Fd()) {
			v.Progress = os.Stderr
		}

		return v, nil
	}

	modes := lo.Map([]validator.Mode{validator.ModeLight, validator.ModeCustom, validator.ModeHeavy}, func(m validator.Mode, _ int) string {
		return string(m)
	})

	cli.VersionFlag.(*cli.BoolFlag).Aliases = []string{"V"}
	app := &cli.App{
		Name:  "validator",
		Usage: "validate a cloud region end to end: build, restart, update and delete projects",
		Description: `Provision projects in a region through the API and verify every step by state and ping:
	1.  Create validator.yaml with the API url and the admin and robot credentials
	2.  Use 'validator regions' and 'validator servers' to look at the region
	3.  Run 'validator run' to pick the region and option interactively
	4.  Or run a single option with 'validator light', 'validator custom' or 'validator heavy'
		`,
		Version:                version.Version,
		Suggest:                true,
		UseShortOptionHandling: true,
		EnableBashCompletion:   true,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "pick a region and an option to run interactively",
				Flags:  defaultFlags,
				Before: before(false),
				Action: func(c *cli.Context) error {
					v, err := setup()
					if err != nil {
						return err
					}

					return v.Run(c.Context) //nolint:wrapcheck
				},
			},
			{
				Name:   "light",
				Usage:  "build a project with one vm per image, restart, update and delete it",
				Flags:  flatten(defaultFlags, []cli.Flag{regionFlag}),
				Before: before(false),
				Action: func(c *cli.Context) error {
					v, err := setup()
					if err != nil {
						return err
					}

					return v.Light(c.Context, region) //nolint:wrapcheck
				},
			},
			{
				Name:   "custom",
				Usage:  "build the project from a custom document, test bandwidth, restart and delete it",
				Flags:  flatten(defaultFlags, []cli.Flag{regionFlag, fileFlag}),
				Before: before(false),
				Action: func(c *cli.Context) error {
					v, err := setup()
					if err != nil {
						return err
					}
					if file == "" {
						return cli.Exit("custom document is required, use --file", 1)
					}

					return v.Custom(c.Context, region, file) //nolint:wrapcheck
				},
			},
			{
				Name:   "heavy",
				Usage:  "fill the region with projects, verify, restart and delete all of them",
				Flags:  flatten(defaultFlags, []cli.Flag{regionFlag}),
				Before: before(false),
				Action: func(c *cli.Context) error {
					v, err := setup()
					if err != nil {
						return err
					}

					return v.Heavy(c.Context, region) //nolint:wrapcheck
				},
			},
			{
				Name:   "regions",
				Usage:  "list cloud regions",
				Flags:  defaultFlags,
				Before: before(true),
				Action: func(c *cli.Context) error {
					v, err := setup()
					if err != nil {
						return err
					}

					_, err = v.Regions(c.Context)

					return err //nolint:wrapcheck
				},
			},
			{
				Name:   "servers",
				Usage:  "list servers of a region",
				Flags:  flatten(defaultFlags, []cli.Flag{regionFlag}),
				Before: before(true),
				Action: func(c *cli.Context) error {
					v, err := setup()
					if err != nil {
						return err
					}

					return v.Servers(c.Context, region) //nolint:wrapcheck
				},
			},
			{
				Name:   "projects",
				Usage:  "list open projects",
				Flags:  flatten(defaultFlags, []cli.Flag{regionFlag}),
				Before: before(true),
				Action: func(c *cli.Context) error {
					v, err := setup()
					if err != nil {
						return err
					}

					_, err = v.Projects(c.Context, region)

					return err //nolint:wrapcheck
				},
			},
			{
				Name:   "generate",
				Usage:  "generate a topology without provisioning it and print it as yaml",
				Flags: flatten(defaultFlags, []cli.Flag{
					regionFlag,
					fileFlag,
					&cli.StringFlag{
						Name:    FlagNameMode,
						Aliases: []string{"m"},
						Usage:   "generate for mode: one of " + strings.Join(modes, ", "),
						Value:   string(validator.ModeLight),
						Action: func(_ *cli.Context, mode string) error {
							if !slices.Contains(modes, mode) {
								return fmt.Errorf("invalid mode %q", mode) //nolint:goerr113
							}

							return nil
						},
					},
					&cli.StringFlag{
						Name:    FlagNameOutput,
						Aliases: []string{"o"},
						Usage:   "write topology to `PATH` instead of stdout",
					},
				}),
				Before: before(true),
				Action: func(c *cli.Context) error {
					v, err := setup()
					if err != nil {
						return err
					}

					topo, err := v.Generate(c.Context, validator.Mode(c.String(FlagNameMode)), region, file)
					if err != nil {
						return fmt.Errorf("generating: %w", err)
					}
					if topo == nil {
						return cli.Exit("no images available for this mode", 1)
					}

					data, err := topo.Marshal()
					if err != nil {
						return fmt.Errorf("marshalling topology: %w", err)
					}

					if out := c.String(FlagNameOutput); out != "" {
						if err := os.WriteFile(out, data, 0o644); err != nil { //nolint:gosec
							return fmt.Errorf("writing topology: %w", err)
						}

						return nil
					}

					_, err = os.Stdout.Write(data)

					return err //nolint:wrapcheck
				},
			},
		},
	}

	return app.RunContext(ctx, os.Args) //nolint:wrapcheck
}

func flatten[T any, Slice ~[]T](collection ...Slice) Slice {
	return lo.Flatten(collection)
}
