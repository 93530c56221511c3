package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aligator/mcrecover"
)

var (
	cfgFile string

	// log is shared by all commands and passed to every opened card.
	log = logrus.New()

	// osFs is the filesystem images and databases are read from and files
	// are extracted to.
	osFs = afero.NewOsFs()
)

var rootCmd = &cobra.Command{
	Use:   "mcrecover",
	Short: "Inspect memory card images and recover lost files.",
	Long: `mcrecover reads GameCube and Dreamcast VMU memory card images,
validates their directory and block tables and searches the free blocks
for deleted files described by a signature database.`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute runs the root command. An interrupt cancels running scans.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mcrecover.yaml)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "warn", "Set log level. Available: debug, info, warn, error")
	rootCmd.PersistentFlags().String("format", "", "Force the card format (gcn or vmu)")
	_ = viper.BindPFlag("loglevel", rootCmd.PersistentFlags().Lookup("loglevel"))

	viper.SetDefault("loglevel", "warn")
	viper.SetDefault("database", []string{})
	viper.SetDefault("scan.region", "E")
	viper.SetDefault("scan.require-checksum", false)
	viper.SetDefault("scan.jobs", 4)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".mcrecover")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("mcrecover")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
		}
	}

	setLogLevel(viper.GetString("loglevel"))
}

func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warning", "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.Warnf("unknown log level %q, using warn", level)
		log.SetLevel(logrus.WarnLevel)
	}
}

// openCard opens the image at path with the global flags applied.
func openCard(cmd *cobra.Command, path string) (*mcrecover.Card, error) {
	opts := []mcrecover.Option{
		mcrecover.WithLogger(log.WithField("image", path)),
	}

	if name, _ := cmd.Flags().GetString("format"); name != "" {
		f, err := mcrecover.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, mcrecover.WithFormat(f))
	}

	return mcrecover.OpenFile(osFs, path, opts...)
}
