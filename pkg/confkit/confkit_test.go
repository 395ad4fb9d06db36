package confkit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath_absoluteStaysUnchanged(t *testing.T) {
	assert.Equal(t, "/etc/tradecore.yaml", ResolvePath("/base", "/etc/tradecore.yaml"))
}

func TestResolvePath_relativeJoinsBase(t *testing.T) {
	assert.Equal(t, filepath.Join("/base", "tradecore.yaml"), ResolvePath("/base", "tradecore.yaml"))
}

func TestResolvePath_expandsEnvVars(t *testing.T) {
	t.Setenv("TRADECORE_CONF_DIR", "/configs")
	assert.Equal(t, "/configs/tradecore.yaml", ResolvePath("/base", "$TRADECORE_CONF_DIR/tradecore.yaml"))
}

func TestBaseDir_returnsDirOfMainPath(t *testing.T) {
	assert.Equal(t, "/etc/tradecore", BaseDir("/etc/tradecore/tradecore.yaml"))
}

func TestProjectRoot_findsModuleRoot(t *testing.T) {
	root, err := ProjectRoot()
	require.NoError(t, err)
	assert.True(t, fileExists(filepath.Join(root, "go.mod")))
}

func TestMustProjectPath_joinsRoot(t *testing.T) {
	root := MustProjectRoot()
	assert.Equal(t, filepath.Join(root, "etc", "tradecore.yaml"), MustProjectPath("etc/tradecore.yaml"))
}

func TestLoadDotenvOnce_respectsNoDotenv(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	// Must not panic or error even with no .env file anywhere nearby;
	// the NO_DOTENV short-circuit makes this a pure no-op.
	LoadDotenvOnce()
	_ = os.Getenv("UNSET_PROBE_VAR")
}
