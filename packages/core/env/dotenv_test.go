package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDotEnv(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]string
	}{
		{
			name:    "plain pairs",
			content: "VELOCITEST_PYTHON=python3.12\nDJANGO_SETTINGS_MODULE=app.settings.test",
			want: map[string]string{
				"VELOCITEST_PYTHON":      "python3.12",
				"DJANGO_SETTINGS_MODULE": "app.settings.test",
			},
		},
		{
			name:    "quoted values keep inner spaces",
			content: "GREETING=\"hello world\"\nMOTD='single quoted'",
			want:    map[string]string{"GREETING": "hello world", "MOTD": "single quoted"},
		},
		{
			name:    "comments and blank lines skipped",
			content: "# worker environment\n\nDATABASE_URL=sqlite:///:memory:\n",
			want:    map[string]string{"DATABASE_URL": "sqlite:///:memory:"},
		},
		{
			name:    "value may contain equals signs",
			content: "DATABASE_URL=postgres://u:p@host/db?sslmode=disable",
			want:    map[string]string{"DATABASE_URL": "postgres://u:p@host/db?sslmode=disable"},
		},
		{
			name:    "surrounding whitespace trimmed",
			content: "  PYTHONHASHSEED = 0 ",
			want:    map[string]string{"PYTHONHASHSEED": "0"},
		},
		{
			name:    "lines without equals ignored",
			content: "not a pair\nPYTHONDONTWRITEBYTECODE=1",
			want:    map[string]string{"PYTHONDONTWRITEBYTECODE": "1"},
		},
		{
			name:    "empty file",
			content: "",
			want:    map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadDotEnv(writeEnvFile(t, tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	_, err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env"))
	require.Error(t, err)
}

func TestLoadDotEnvDoesNotTouchOwnEnvironment(t *testing.T) {
	path := writeEnvFile(t, "VELOCITEST_DOTENV_SENTINEL=worker-only")

	vars, err := LoadDotEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "worker-only", vars["VELOCITEST_DOTENV_SENTINEL"])

	_, set := os.LookupEnv("VELOCITEST_DOTENV_SENTINEL")
	assert.False(t, set, "variables are for worker processes, never exported here")
}
