package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paperdrop/paperdrop/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample paperdrop configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/paperdrop/config.yaml. Use --config to specify a custom
path.

Examples:
  # Initialize with default location
  paperdrop init

  # Initialize with custom path
  paperdrop init --config /etc/paperdrop/config.yaml

  # Force overwrite existing config
  paperdrop init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Generate a host key: paperdrop keygen")
	fmt.Println("  2. Set s3.bucket (and credentials) in the config file")
	fmt.Println("  3. Start the server with: paperdrop start")

	return nil
}
