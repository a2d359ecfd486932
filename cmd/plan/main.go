// Command plan is the planning CLI. Every mutation runs under the
// cooperative plan lock; reports (validate, coverage, status) read a fresh
// snapshot and print JSON to stdout.
//
// Usage:
//
//	plan init "My Project"
//	plan milestone add "MVP" "first shippable cut"
//	plan epic add M1 "User Auth"
//	plan story add E1 "login form" -req E1.R1,E1.R2
//	plan validate
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/plan-agent/internal/config"
	perrors "github.com/p-blackswan/plan-agent/internal/errors"
	"github.com/p-blackswan/plan-agent/internal/feedback"
	"github.com/p-blackswan/plan-agent/internal/integrity"
	"github.com/p-blackswan/plan-agent/internal/lock"
	"github.com/p-blackswan/plan-agent/internal/metrics"
	"github.com/p-blackswan/plan-agent/internal/plan"
	"github.com/p-blackswan/plan-agent/internal/status"
	"github.com/p-blackswan/plan-agent/internal/store"
)

const (
	exitOK        = 0
	exitError     = 1
	exitLockHeld  = 2
	exitIntegrity = 3
)

type cli struct {
	manager  *plan.Manager
	loader   *plan.Loader
	lockMgr  *lock.Manager
	feedback *feedback.Manager
	stuck    *feedback.StuckManager
	logger   zerolog.Logger
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	var st store.Store
	if cfg.RemoteEnabled() {
		st = store.NewAPIStore(cfg.StoreURL, cfg.StoreAPIKey, logger)
	} else {
		st, err = store.NewDirStore(cfg.StoreRoot, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open plan directory")
		}
	}

	holder := cfg.HolderID()
	lockMgr := lock.NewManager(st, cfg.LockLease, logger)
	c := &cli{
		manager:  plan.NewManager(st, lockMgr, holder, metrics.New(), logger),
		loader:   plan.NewLoader(st, cfg.ExtractCacheSize, logger),
		lockMgr:  lockMgr,
		feedback: feedback.NewManager(st, lockMgr, holder, logger),
		stuck:    feedback.NewStuckManager(st, lockMgr, holder, logger),
		logger:   logger,
	}

	os.Exit(c.run(context.Background(), os.Args[1:]))
}

func (c *cli) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		usage()
		return exitError
	}

	var err error
	code := exitOK

	switch args[0] {
	case "init":
		err = c.cmdInit(ctx, args[1:])
	case "pause":
		err = c.manager.SetProjectStatus(ctx, plan.ProjectPaused)
	case "resume":
		err = c.manager.SetProjectStatus(ctx, plan.ProjectActive)
	case "milestone":
		err = c.cmdMilestone(ctx, args[1:])
	case "epic":
		err = c.cmdEpic(ctx, args[1:])
	case "story":
		err = c.cmdStory(ctx, args[1:])
	case "artifact":
		err = c.cmdArtifact(ctx, args[1:])
	case "prd":
		err = c.cmdPRD(ctx, args[1:])
	case "validate":
		code, err = c.cmdValidate(ctx)
	case "coverage":
		err = c.cmdCoverage(ctx)
	case "status":
		err = c.cmdStatus(ctx)
	case "lock":
		err = c.cmdLock(ctx, args[1:])
	case "feedback":
		err = c.cmdFeedback(ctx, args[1:])
	case "stuck":
		err = c.cmdStuck(ctx, args[1:])
	default:
		usage()
		return exitError
	}

	if err != nil {
		c.logger.Error().Err(err).Msg("command failed")
		if errors.Is(err, perrors.ErrLockHeld) {
			return exitLockHeld
		}
		return exitError
	}
	return code
}

func (c *cli) cmdInit(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("init <name>")
	}
	p, err := c.manager.InitProject(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(p)
}

func (c *cli) cmdMilestone(ctx context.Context, args []string) error {
	if len(args) < 2 || args[0] != "add" {
		return usageError("milestone add <name> [description]")
	}
	description := ""
	if len(args) > 2 {
		description = args[2]
	}
	ms, err := c.manager.AddMilestone(ctx, args[1], description)
	if err != nil {
		return err
	}
	return printJSON(ms)
}

func (c *cli) cmdEpic(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usageError("epic add <milestone> <name> [description] | epic defer <id> | epic resume <id>")
	}
	switch args[0] {
	case "add":
		if len(args) < 3 {
			return usageError("epic add <milestone> <name> [description]")
		}
		description := ""
		if len(args) > 3 {
			description = args[3]
		}
		epic, err := c.manager.AddEpic(ctx, args[1], args[2], description)
		if err != nil {
			return err
		}
		return printJSON(epic)
	case "defer":
		return c.manager.SetEpicDeferred(ctx, args[1], true)
	case "resume":
		return c.manager.SetEpicDeferred(ctx, args[1], false)
	}
	return usageError("epic add|defer|resume")
}

func (c *cli) cmdStory(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return usageError("story add|status ...")
	}
	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("story add", flag.ContinueOnError)
		desc := fs.String("desc", "", "story description")
		reqs := fs.String("req", "", "comma-separated requirement IDs")
		deps := fs.String("dep", "", "comma-separated story IDs this depends on")
		criteria := fs.String("ac", "", "comma-separated acceptance criteria")
		if len(args) < 3 {
			return usageError("story add <epic> <title> [-desc ...] [-req E1.R1,...] [-dep E1.S1,...]")
		}
		if err := fs.Parse(args[3:]); err != nil {
			return err
		}
		story, err := c.manager.AddStory(ctx, args[1], plan.StoryInput{
			Title:              args[2],
			Description:        *desc,
			Requirements:       splitList(*reqs),
			AcceptanceCriteria: splitList(*criteria),
			DependsOn:          splitList(*deps),
		})
		if err != nil {
			return err
		}
		return printJSON(story)
	case "status":
		fs := flag.NewFlagSet("story status", flag.ContinueOnError)
		reason := fs.String("reason", "", "reason (required for blocked)")
		if len(args) < 3 {
			return usageError("story status <id> <status> [-reason ...]")
		}
		if err := fs.Parse(args[3:]); err != nil {
			return err
		}
		return c.manager.SetStoryStatus(ctx, args[1], plan.StoryStatus(args[2]), *reason)
	}
	return usageError("story add|status")
}

func (c *cli) cmdArtifact(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return usageError("artifact <epic> <prd|architecture|stories> <status>")
	}
	return c.manager.SetArtifactStatus(ctx, args[0], args[1], plan.ArtifactStatus(args[2]))
}

func (c *cli) cmdPRD(ctx context.Context, args []string) error {
	if len(args) != 3 || args[0] != "write" {
		return usageError("prd write <epic> <file>   (use - for stdin)")
	}
	var (
		data []byte
		err  error
	)
	if args[2] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[2])
	}
	if err != nil {
		return fmt.Errorf("reading PRD text: %w", err)
	}
	return c.manager.WritePRD(ctx, args[1], string(data))
}

// cmdValidate prints the integrity report and signals error-severity findings
// through the exit code so scripts can gate on it.
func (c *cli) cmdValidate(ctx context.Context) (int, error) {
	snap, err := c.loader.Load(ctx)
	if err != nil {
		return exitError, err
	}
	report := integrity.Validate(snap)
	if err := printJSON(report); err != nil {
		return exitError, err
	}
	if report.Errors() > 0 {
		return exitIntegrity, nil
	}
	return exitOK, nil
}

func (c *cli) cmdCoverage(ctx context.Context) error {
	snap, err := c.loader.Load(ctx)
	if err != nil {
		return err
	}
	return printJSON(integrity.Coverage(snap))
}

func (c *cli) cmdStatus(ctx context.Context) error {
	snap, err := c.loader.Load(ctx)
	if err != nil {
		return err
	}
	return printJSON(status.ForProject(snap))
}

func (c *cli) cmdLock(ctx context.Context, args []string) error {
	if len(args) > 0 && args[0] == "release" {
		return c.lockMgr.Release(ctx)
	}
	l, err := c.lockMgr.Read(ctx)
	if err != nil {
		return err
	}
	if l == nil {
		fmt.Println("{}")
		return nil
	}
	return printJSON(l)
}

func (c *cli) cmdFeedback(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return usageError("feedback add|list|archive|resolve|dismiss ...")
	}
	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("feedback add", flag.ContinueOnError)
		affected := fs.String("affected", "", "comma-separated entity IDs")
		if len(args) < 3 {
			return usageError("feedback add <kind> <note> [-affected E1,E1.S2]")
		}
		if err := fs.Parse(args[3:]); err != nil {
			return err
		}
		item, err := c.feedback.Add(ctx, plan.FeedbackKind(args[1]), args[2], splitList(*affected))
		if err != nil {
			return err
		}
		return printJSON(item)
	case "list":
		items, err := c.feedback.List(ctx)
		if err != nil {
			return err
		}
		return printJSON(items)
	case "archive":
		items, err := c.feedback.Archived(ctx)
		if err != nil {
			return err
		}
		return printJSON(items)
	case "resolve":
		if len(args) != 3 {
			return usageError("feedback resolve <id> <resolution>")
		}
		return c.feedback.Resolve(ctx, args[1], args[2])
	case "dismiss":
		resolution := ""
		if len(args) > 2 {
			resolution = args[2]
		}
		if len(args) < 2 {
			return usageError("feedback dismiss <id> [reason]")
		}
		return c.feedback.Dismiss(ctx, args[1], resolution)
	}
	return usageError("feedback add|list|archive|resolve|dismiss")
}

func (c *cli) cmdStuck(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return usageError("stuck add|list|archive|resolve ...")
	}
	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("stuck add", flag.ContinueOnError)
		attempts := fs.String("attempts", "", "comma-separated attempts already made")
		options := fs.String("options", "", "comma-separated options considered")
		if len(args) < 2 {
			return usageError("stuck add <situation> [-attempts ...] [-options ...]")
		}
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		item, err := c.stuck.Add(ctx, feedback.StuckInput{
			Situation: args[1],
			Attempts:  splitList(*attempts),
			Options:   splitList(*options),
		})
		if err != nil {
			return err
		}
		return printJSON(item)
	case "list":
		items, err := c.stuck.List(ctx)
		if err != nil {
			return err
		}
		return printJSON(items)
	case "archive":
		items, err := c.stuck.Archived(ctx)
		if err != nil {
			return err
		}
		return printJSON(items)
	case "resolve":
		if len(args) != 4 {
			return usageError("stuck resolve <id> <resolved-by> <resolution>")
		}
		return c.stuck.Resolve(ctx, args[1], args[2], args[3])
	}
	return usageError("stuck add|list|archive|resolve")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func usageError(u string) error {
	return fmt.Errorf("usage: plan %s: %w", u, perrors.ErrInvalidInput)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: plan <command> [args]

  init <name>                              create or re-initialize the project
  pause | resume                           flip project status
  milestone add <name> [description]
  epic add <milestone> <name> [description]
  epic defer <id> | epic resume <id>
  story add <epic> <title> [-desc] [-req] [-dep] [-ac]
  story status <id> <status> [-reason]
  artifact <epic> <prd|architecture|stories> <status>
  prd write <epic> <file>                  use - to read stdin
  validate                                 integrity report (exit 3 on errors)
  coverage                                 per-epic requirement coverage
  status                                   derived epic and project status
  lock [release]                           show or clear the plan lock
  feedback add|list|archive|resolve|dismiss
  stuck add|list|archive|resolve

Configuration comes from PLAN_* environment variables and plan.yaml.`)
}
