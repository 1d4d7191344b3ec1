package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/connectome/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// settingKeys maps every flag, long or short, to the settings key it sets.
var settingKeys = map[string]string{
	"base_directory":         "base_directory",
	"b":                      "base_directory",
	"subject_list":           "subject_list",
	"s":                      "subject_list",
	"template_directory":     "template_directory",
	"t":                      "template_directory",
	"out_directory":          "out_directory",
	"o":                      "out_directory",
	"parcellation_directory": "parcellation_directory",
	"p":                      "parcellation_directory",
	"acquisition_parameters": "acquisition_parameters",
	"a":                      "acquisition_parameters",
	"index_file":             "index_file",
	"i":                      "index_file",
	"log-format":             "log_format",
	"log-level":              "log_level",
	"workers":                "workers",
	"healthcheck-port":       "healthcheck_port",
	"modules-path":           "modules_path",
	"dry-run":                "dry_run",
	"fail-fast":              "fail_fast",
	"trace-file":             "trace_file",
	"cache":                  "cache",
}

// SplitSubjects splits a comma separated subject list, dropping empty items.
func SplitSubjects(list string) []string {
	var subjects []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			subjects = append(subjects, s)
		}
	}
	return subjects
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
// Flags override the settings file and CONNECTOME_* environment variables.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("connectome", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
connectome - structural connectome construction from T1 and diffusion MRI.

Usage:
  connectome -b BASE_DIRECTORY -s SUBJECT_LIST -o OUT_DIRECTORY [options]

Runs FSL, FreeSurfer and the lab's diffusion tools for every subject and
writes results under OUT_DIRECTORY/connectome. Every option can also be set
in the --config file or as a CONNECTOME_<OPTION> environment variable.

Options:
`)
		flagSet.PrintDefaults()
	}

	var paths struct {
		base, subjects, template, out, parcellation, acqp, index string
	}
	for _, f := range []struct {
		long, short, usage string
		target             *string
	}{
		{"base_directory", "b", "Root of the BIDS-like input tree.", &paths.base},
		{"subject_list", "s", "Comma separated subject IDs.", &paths.subjects},
		{"template_directory", "t", "Directory holding template files.", &paths.template},
		{"out_directory", "o", "Output root; results go to <out>/connectome.", &paths.out},
		{"parcellation_directory", "p", "Directory holding the source parcellation subject.", &paths.parcellation},
		{"acquisition_parameters", "a", "FSL eddy acquisition parameters file.", &paths.acqp},
		{"index_file", "i", "FSL eddy index file.", &paths.index},
	} {
		flagSet.StringVar(f.target, f.long, "", f.usage)
		flagSet.StringVar(f.target, f.short, "", f.usage+" (shorthand)")
	}

	configFlag := flagSet.String("config", "", "Path to a YAML settings file.")
	flagSet.Int("healthcheck-port", 0, "Port for the HTTP health and status server. 0 is disabled.")
	flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flagSet.Int("workers", 4, "Number of nodes run concurrently.")
	flagSet.String("modules-path", "", "Directory of HCL tool manifests overriding the built-in ones.")
	flagSet.Bool("dry-run", false, "Log every command without running anything.")
	flagSet.Bool("fail-fast", false, "Stop scheduling new nodes after the first failure.")
	flagSet.String("trace-file", "", "Write OpenTelemetry spans as JSON to this file.")
	flagSet.String("cache", app.CacheSQLite, "Result cache. Options: 'sqlite' or 'memory'.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	if flagSet.NArg() > 0 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected argument %q", flagSet.Arg(0))}
	}

	// Only flags given on the command line override the other sources.
	overrides := make(map[string]any)
	flagSet.Visit(func(f *flag.Flag) {
		if key, ok := settingKeys[f.Name]; ok {
			overrides[key] = f.Value.(flag.Getter).Get()
		}
	})

	settings, err := app.LoadSettings(*configFlag, overrides)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	settings.LogFormat = strings.ToLower(settings.LogFormat)
	if settings.LogFormat != "text" && settings.LogFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	settings.LogLevel = strings.ToLower(settings.LogLevel)
	switch settings.LogLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	settings.Subjects = SplitSubjects(settings.SubjectList)
	cfg, err := app.NewConfig(*settings)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "subjects", cfg.Subjects)
	return cfg, false, nil
}
