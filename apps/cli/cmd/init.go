package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/velocitest/velocitest/packages/core/config"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new velocitest project",
	Long: `Initialize a new velocitest project in the current directory.

This creates:
  - velocitest.yaml    - Configuration file
  - test_example.py    - Example test file
  - conftest.py        - Example shared fixtures

Examples:
  velocitest init
  velocitest init --force`,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
	rootCmd.AddCommand(initCmd)
}

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, "velocitest.yaml")
	exampleFile := filepath.Join(cwd, "test_example.py")
	conftestFile := filepath.Join(cwd, "conftest.py")

	if !forceInit {
		for _, f := range []string{configFile, exampleFile, conftestFile} {
			if _, err := os.Stat(f); err == nil {
				return fmt.Errorf("file already exists: %s (use --force to overwrite)", f)
			}
		}
	}

	cfg := config.DefaultConfig()
	configYAML, _ := yaml.Marshal(cfg)
	if err := os.WriteFile(configFile, configYAML, 0644); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	conftestContent := `import pytest


@pytest.fixture(scope="module")
def database():
    db = {"users": []}
    yield db
    db.clear()
`
	if err := os.WriteFile(conftestFile, []byte(conftestContent), 0644); err != nil {
		return fmt.Errorf("failed to create conftest file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", conftestFile)

	exampleContent := `import pytest


def test_empty_database(database):
    assert database["users"] == []


@pytest.mark.parametrize("name", ["ada", "grace"])
def test_add_user(database, name):
    database["users"].append(name)
    assert name in database["users"]


@pytest.mark.skip(reason="example of a skipped test")
def test_not_ready():
    assert False
`
	if err := os.WriteFile(exampleFile, []byte(exampleContent), 0644); err != nil {
		return fmt.Errorf("failed to create example file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nvelocitest project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'velocitest run' to execute the example tests.\n")

	return nil
}
