package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "iosource [filter expression]",
	Short: "Capture packets from an interface or a trace file, optionally filtered and written to a pcap file",
	Long: `Capture packets from all interfaces (default), the interface given with -i, or the trace file given with -r.
Arguments are joined into a tcpdump-style filter expression.
Paths may carry a component prefix, e.g. pcap:/tmp/trace.pcap; without one the pcap component is used.`,
	Args:              cobra.ArbitraryArgs,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
	RunE:              runCapture,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.iosource.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "print lots of debugging messages")
	rootCmd.PersistentFlags().String("log-format", "text", "log format, text or json")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))

	captureFlags(rootCmd)

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(compileCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".iosource")
	}

	viper.SetEnvPrefix("IOSOURCE")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", cfgFile, err)
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {
	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	switch format := viper.GetString("log-format"); format {
	case "text", "":
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}
