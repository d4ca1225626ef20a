package core

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// DefaultTimeout applies when no test timeout is configured.
const DefaultTimeout = 10 * time.Second

// DefaultConfigFile is loaded when present and --config is not given.
const DefaultConfigFile = "raclette.yaml"

// When controls colorized report output.
type When int

const (
	WhenAuto When = iota
	WhenAlways
	WhenNever
)

func ParseWhen(v string) (When, error) {
	switch v {
	case "", "auto":
		return WhenAuto, nil
	case "always":
		return WhenAlways, nil
	case "never":
		return WhenNever, nil
	}
	return WhenAuto, fmt.Errorf("unsupported WHEN value: %s", v)
}

// mergeWhen keeps l unless it is still the automatic default.
func mergeWhen(l, r When) When {
	if l == WhenAuto {
		return r
	}
	return l
}

// Format selects the report formatter.
type Format int

const (
	FormatAuto Format = iota
	FormatLibTest
	FormatTap
	FormatJSON
)

func ParseFormat(v string) (Format, error) {
	switch v {
	case "", "auto":
		return FormatAuto, nil
	case "libtest":
		return FormatLibTest, nil
	case "tap":
		return FormatTap, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatAuto, fmt.Errorf("unsupported FMT value: %s", v)
}

func mergeFormat(l, r Format) Format {
	if l == FormatAuto {
		return r
	}
	return l
}

// Config is the resolved test-driver configuration. The core consumes
// Filter, SkipFilters, Timeout, Jobs and NoCapture; Color and Format
// select the reporter; the rest tunes ambient concerns.
type Config struct {
	Filter      string
	SkipFilters []string
	Timeout     time.Duration // zero means DefaultTimeout
	Jobs        int           // zero means the number of CPUs
	Color       When
	Format      Format
	NoCapture   bool
	MetricsPath string // write Prometheus metrics here after the run, if set
}

// EffectiveTimeout resolves the per-test wall-clock limit.
func (c *Config) EffectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// Merge fills every unset field of c from other and returns the result.
// Skip filters are concatenated.
func (c Config) Merge(other Config) Config {
	if c.Filter == "" {
		c.Filter = other.Filter
	}
	c.SkipFilters = append(c.SkipFilters, other.SkipFilters...)
	if c.Timeout == 0 {
		c.Timeout = other.Timeout
	}
	if c.Jobs == 0 {
		c.Jobs = other.Jobs
	}
	c.Color = mergeWhen(c.Color, other.Color)
	c.Format = mergeFormat(c.Format, other.Format)
	c.NoCapture = c.NoCapture || other.NoCapture
	if c.MetricsPath == "" {
		c.MetricsPath = other.MetricsPath
	}
	return c
}

// fileConfig is the YAML config file schema.
type fileConfig struct {
	Filter    string   `yaml:"filter"`
	Skip      []string `yaml:"skip"`
	Timeout   int      `yaml:"timeout"` // seconds
	Jobs      int      `yaml:"jobs"`
	Color     string   `yaml:"color"`
	Format    string   `yaml:"format"`
	NoCapture bool     `yaml:"nocapture"`
	Metrics   string   `yaml:"metrics"`
}

// FromArgs parses the command line into a Config, merging in the YAML
// config file if one is found.
func FromArgs(args []string) (*Config, error) {
	f := pflag.NewFlagSet("raclette", pflag.ExitOnError)
	f.SortFlags = false
	f.Usage = func() { usage(f) }

	f.StringArray("skip", nil, "skip tests whose names contain FILTER (repeatable)")
	f.Bool("nocapture", false, "print output of each task directly as soon as it arrives")
	f.IntP("timeout", "t", 0, "test execution timeout in seconds")
	f.StringP("color", "c", "auto", "colorize the output: auto/always/never")
	f.StringP("format", "f", "auto", "report format: auto/libtest/tap/json")
	f.IntP("jobs", "j", 0, "run at most NJOBS tests in parallel")
	f.StringP("log", "l", "info", "log level (debug/info/warn/error/disabled)")
	f.String("config", "", "read additional configuration from a YAML file")
	f.String("metrics", "", "write Prometheus metrics to FILE after the run")

	if err := f.Parse(args); err != nil {
		return nil, fmt.Errorf("could not parse CLI flags: %w", err)
	}

	// export flags into koanf
	k := koanf.New(".")
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, err
	}

	// debugging level
	if ll := k.String("log"); len(ll) > 0 {
		lvl, err := zerolog.ParseLevel(ll)
		if err != nil {
			return nil, err
		}
		zerolog.SetGlobalLevel(lvl)
	}

	color, err := ParseWhen(k.String("color"))
	if err != nil {
		return nil, err
	}
	format, err := ParseFormat(k.String("format"))
	if err != nil {
		return nil, err
	}

	cfg := Config{
		SkipFilters: k.Strings("skip"),
		Timeout:     time.Duration(k.Int("timeout")) * time.Second,
		Jobs:        k.Int("jobs"),
		Color:       color,
		Format:      format,
		NoCapture:   k.Bool("nocapture"),
		MetricsPath: k.String("metrics"),
	}

	// at most one positional TESTNAME filter
	switch rem := f.Args(); len(rem) {
	case 0:
	case 1:
		cfg.Filter = rem[0]
	default:
		return nil, fmt.Errorf("at most one TESTNAME can be specified, got %d", len(rem))
	}

	// merge the config file under the CLI values
	path := k.String("config")
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	file, err := fromFile(path)
	switch {
	case err == nil:
		cfg = cfg.Merge(*file)
	case os.IsNotExist(err) && !explicit:
		// no default config file, fine
	default:
		return nil, fmt.Errorf("could not read config file %s: %w", path, err)
	}

	return &cfg, nil
}

func fromFile(path string) (*Config, error) {
	v, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(v, &fc); err != nil {
		return nil, err
	}
	color, err := ParseWhen(fc.Color)
	if err != nil {
		return nil, err
	}
	format, err := ParseFormat(fc.Format)
	if err != nil {
		return nil, err
	}
	return &Config{
		Filter:      fc.Filter,
		SkipFilters: fc.Skip,
		Timeout:     time.Duration(fc.Timeout) * time.Second,
		Jobs:        fc.Jobs,
		Color:       color,
		Format:      format,
		NoCapture:   fc.NoCapture,
		MetricsPath: fc.Metrics,
	}, nil
}

func usage(f *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Usage: %s [OPTIONS] [TESTNAME]

Runs the test suite built into this binary. If TESTNAME is given, only
tests whose names contain it are executed.

Options:
`, os.Args[0])
	f.PrintDefaults()
}
