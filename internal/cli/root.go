package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/dares/internal/model"
)

var (
	cfgFile string
	verbose bool
)

// Version is the released version of dares
const Version = "0.1.0"

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dares",
	Short: "DARES - distant supervision corpus builder for relation extraction",
	Long: `DARES builds relation extraction corpora by distant supervision.

It enumerates Wikidata items of the configured types, fetches their
claims and their Wikipedia article, and labels every article sentence
that mentions the value of a configured relation.

The result is a corpus of (relation, sentence, source, target) examples,
optionally completed with "Other" negatives.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dares v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.dares/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.PersistentFlags().String("project", "", "project name (folder under the data directory)")
	rootCmd.PersistentFlags().Int("workers", 0, "degree of parallelism per pipeline stage")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log.metrics_addr", rootCmd.PersistentFlags().Lookup("metrics-addr"))
	_ = viper.BindPFlag("project.name", rootCmd.PersistentFlags().Lookup("project"))
	_ = viper.BindPFlag("workers", rootCmd.PersistentFlags().Lookup("workers"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if err := configure(viper.GetViper(), cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		return
	}
	if used := viper.ConfigFileUsed(); used != "" && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", used)
	}
}

// configure points v at the config file and DARES_* environment variables
func configure(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("finding home directory: %w", err)
		}
		v.AddConfigPath(home + "/.dares")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	// Read in environment variables that match DARES_*, e.g. DARES_CRAWL_PAGE_SIZE
	v.SetEnvPrefix("DARES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v); err != nil {
		return err
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !(file == "" && errors.As(err, &notFound)) {
		return err
	}
	return nil
}

// setDefaults registers every key of the default configuration, so that
// environment variables can override keys absent from the config file
func setDefaults(v *viper.Viper) error {
	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return err
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return err
	}
	setDefaultMap(v, "", m)
	return nil
}

func setDefaultMap(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		if sub, ok := val.(map[string]any); ok && len(sub) > 0 {
			setDefaultMap(v, prefix+k+".", sub)
			continue
		}
		v.SetDefault(prefix+k, val)
	}
}

// loadConfig decodes the merged configuration of v over the defaults
func loadConfig(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// viper lower-cases map keys; property ids are upper case
	for i, t := range cfg.Entities {
		props := make(map[string]model.RelationSchema, len(t.Relations))
		for id, rel := range t.Relations {
			props[strings.ToUpper(id)] = rel
		}
		cfg.Entities[i].Relations = props
	}
	return cfg, nil
}
