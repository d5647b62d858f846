package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anheplast/curiosmaze/internal/app/service"
	"github.com/anheplast/curiosmaze/internal/common/security"
	"github.com/anheplast/curiosmaze/internal/domain/model"
	"github.com/anheplast/curiosmaze/internal/platform/config"
	"github.com/anheplast/curiosmaze/internal/platform/judge0"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
)

func main() {
	config.Load()
	if err := newApp(config.AppConfig).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, failColor.Sprint("error: ")+err.Error())
		os.Exit(1)
	}
}

func newApp(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "judgectl",
		Usage: "talk to a Judge0 instance and check code against examples",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "judge-url", Value: cfg.Judge.BaseURL, Usage: "Judge0 base URL"},
			&cli.StringFlag{Name: "auth-token", Value: cfg.Judge.AuthToken, Usage: "X-Auth-Token sent to Judge0"},
			&cli.DurationFlag{Name: "timeout", Value: cfg.Judge.SingleTimeout, Usage: "how long to wait for one run"},
		},
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "check whether Judge0 answers",
				Action: statusAction,
			},
			{
				Name:   "languages",
				Usage:  "list the languages Judge0 offers",
				Action: languagesAction,
			},
			{
				Name:      "verify",
				Usage:     "run code against the examples of a cases file",
				ArgsUsage: "<code file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "cases", Required: true, Usage: "TOML file with [[cases]] in/out"},
					&cli.StringFlag{Name: "lang", Usage: "language name or Judge0 id (default python)"},
				},
				Action: verifyAction(cfg),
			},
			{
				Name:      "tests",
				Usage:     "run code followed by a test harness",
				ArgsUsage: "<code file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "harness", Required: true, Usage: "file with the test code"},
					&cli.StringFlag{Name: "lang", Usage: "language name or Judge0 id (default python)"},
				},
				Action: testsAction(cfg),
			},
			{
				Name:  "token",
				Usage: "mint a development API token signed with JWT_SECRET",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true},
					&cli.StringFlag{Name: "role"},
					&cli.DurationFlag{Name: "ttl", Value: cfg.JWTExp},
				},
				Action: tokenAction(cfg),
			},
		},
	}
}

func judgeClient(cmd *cli.Command) *judge0.Client {
	return judge0.NewClient(judge0.Options{
		BaseURL:     cmd.String("judge-url"),
		AuthToken:   cmd.String("auth-token"),
		HTTPTimeout: cmd.Duration("timeout"),
	})
}

func verifier(cmd *cli.Command, cfg *config.Config) *service.VerifierService {
	judge := judgeClient(cmd)
	return service.NewVerifierService(judge, judge0.NewPoller(judge), service.Timings{
		SingleTimeout: cmd.Duration("timeout"),
		PollInterval:  cfg.Judge.PollInterval,
	})
}

func parseLanguage(s string) model.LanguageRef {
	var ref model.LanguageRef
	if s == "" {
		return ref
	}
	// Numbers are ids, anything else a name.
	if err := ref.UnmarshalJSON([]byte(s)); err == nil {
		return ref
	}
	return model.LanguageByName(s)
}

func readCode(cmd *cli.Command) (string, error) {
	path := cmd.Args().First()
	if path == "" {
		return "", cli.Exit("missing <code file>", 2)
	}
	code, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read code: %w", err)
	}
	return string(code), nil
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	av := judgeClient(cmd).Describe(ctx)
	out := cmd.Root().Writer
	if !av.IsAvailable {
		fmt.Fprintln(out, failColor.Sprint("✗ ")+av.Message)
		return cli.Exit("", 1)
	}
	fmt.Fprintln(out, okColor.Sprint("✓ ")+av.Message)
	return nil
}

func languagesAction(ctx context.Context, cmd *cli.Command) error {
	langs, err := judgeClient(cmd).ListLanguages(ctx)
	if err != nil {
		return err
	}
	out := cmd.Root().Writer
	for _, l := range langs {
		fmt.Fprintf(out, "%4d  %s\n", l.ID, l.Name)
	}
	return nil
}

func verifyAction(cfg *config.Config) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		code, err := readCode(cmd)
		if err != nil {
			return err
		}
		examples, fileLang, err := loadCases(cmd.String("cases"))
		if err != nil {
			return err
		}
		lang := cmd.String("lang")
		if lang == "" {
			lang = fileLang
		}

		report := verifier(cmd, cfg).VerifyExamples(ctx, code, examples, parseLanguage(lang))
		out := cmd.Root().Writer
		for _, d := range report.Details {
			switch {
			case d.Error != "":
				fmt.Fprintf(out, "%s example %d: %s\n", failColor.Sprint("✗ ERROR"), d.Index, d.Error)
			case d.Correct:
				fmt.Fprintf(out, "%s example %d %s\n", okColor.Sprint("✓ CORRECT"), d.Index, dimColor.Sprintf("(%ss)", d.Time))
			default:
				fmt.Fprintf(out, "%s example %d\n", failColor.Sprint("✗ INCORRECT"), d.Index)
				fmt.Fprintf(out, "  expected: %q\n  got:      %q\n", strings.TrimSpace(d.Expected), d.Actual)
				if d.Stderr != "" {
					fmt.Fprintln(out, dimColor.Sprint("  "+strings.TrimSpace(d.Stderr)))
				}
			}
		}
		fmt.Fprintf(out, "%d/%d examples correct (%.2f%%)\n", report.CasesCorrect, report.CasesTotal, report.Percentage)
		if !report.Success || report.CasesCorrect != report.CasesTotal {
			return cli.Exit("", 1)
		}
		return nil
	}
}

func testsAction(cfg *config.Config) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		code, err := readCode(cmd)
		if err != nil {
			return err
		}
		harness, err := os.ReadFile(cmd.String("harness"))
		if err != nil {
			return fmt.Errorf("failed to read harness: %w", err)
		}

		report := verifier(cmd, cfg).VerifyAdvancedTests(ctx, code, service.HarnessSource{Code: string(harness)}, parseLanguage(cmd.String("lang")))
		out := cmd.Root().Writer
		if report.RawOutput != "" {
			fmt.Fprint(out, report.RawOutput)
			if !strings.HasSuffix(report.RawOutput, "\n") {
				fmt.Fprintln(out)
			}
		}
		if report.Stderr != "" {
			fmt.Fprintln(out, dimColor.Sprint(strings.TrimSpace(report.Stderr)))
		}
		if report.AllPassed {
			fmt.Fprintln(out, okColor.Sprintf("%d/%d tests passed", report.PassingTests, report.TotalTests))
			return nil
		}
		msg := report.Message
		if report.Success {
			msg = fmt.Sprintf("%d/%d tests passed", report.PassingTests, report.TotalTests)
		}
		fmt.Fprintln(out, failColor.Sprint(msg))
		return cli.Exit("", 1)
	}
}

func tokenAction(cfg *config.Config) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		security.InitJWT(cfg.JWTKey)
		ttl := cmd.Duration("ttl")
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		tok, err := security.GenerateToken(cmd.String("user"), cmd.String("role"), ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.Root().Writer, tok)
		return nil
	}
}
