package persona

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

func TestDefault(t *testing.T) {
	p := Default()
	assert.Contains(t, p.Directive, "Profesor Oak")
	assert.Contains(t, p.Directive, "Pokédex")

	cfg := p.SessionConfig()
	assert.Equal(t, p.Directive, cfg.SystemDirective)
	assert.InDelta(t, 0.2, cfg.Temperature, 1e-6)
	assert.NotNil(t, cfg.StopSequences)
	assert.Empty(t, cfg.StopSequences)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nurse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: nurse-joy
directive: |
  You are Nurse Joy. Explain Pokémon care.
temperature: 0.5
stop: ["END"]
`), 0644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nurse-joy", p.Name)
	assert.Equal(t, "You are Nurse Joy. Explain Pokémon care.", p.Directive)
	require.NotNil(t, p.Temperature)
	assert.Equal(t, 0.5, *p.Temperature)
	assert.Equal(t, []string{"END"}, p.SessionConfig().StopSequences)
}

func TestLoadText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brock.txt")
	require.NoError(t, os.WriteFile(path, []byte("  You are Brock.\n"), 0644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "brock", p.Name)
	assert.Equal(t, "You are Brock.", p.Directive)
	assert.Nil(t, p.Temperature)
	assert.InDelta(t, DefaultTemperature, p.SessionConfig().Temperature, 1e-6)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("directive: [unclosed"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("   \n"), 0644))
	_, err = Load(empty)
	assert.ErrorIs(t, err, ErrEmptyDirective)
}

func TestFromConfig(t *testing.T) {
	temp := 0.9

	src, err := FromConfig(types.PersonaConfig{})
	require.NoError(t, err)
	assert.Equal(t, Default().Directive, src.Current().Directive)

	src, err = FromConfig(types.PersonaConfig{Directive: "Be terse.", Temperature: &temp, Stop: []string{"\n\n"}})
	require.NoError(t, err)
	cfg := src.SessionConfig()
	assert.Equal(t, "Be terse.", cfg.SystemDirective)
	assert.InDelta(t, 0.9, cfg.Temperature, 1e-6)
	assert.Equal(t, []string{"\n\n"}, cfg.StopSequences)

	_, err = FromConfig(types.PersonaConfig{File: filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Error(t, err)
}

func TestFromConfigFileWinsOverConfigTemperature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.yaml")
	require.NoError(t, os.WriteFile(path, []byte("directive: hi\ntemperature: 0.3\n"), 0644))
	temp := 0.9

	src, err := FromConfig(types.PersonaConfig{File: path, Temperature: &temp})
	require.NoError(t, err)
	assert.InDelta(t, 0.3, src.SessionConfig().Temperature, 1e-6)
}

func TestReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.txt")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0644))

	src, err := FromConfig(types.PersonaConfig{File: path})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(""), 0644))
	assert.Error(t, src.Reload())
	assert.Equal(t, "first", src.Current().Directive)

	require.NoError(t, os.WriteFile(path, []byte("second"), 0644))
	require.NoError(t, src.Reload())
	assert.Equal(t, "second", src.Current().Directive)
}

func TestSessionConfigIsACopy(t *testing.T) {
	src := NewSource(&Persona{Directive: "x", Stop: []string{"a"}})
	cfg := src.SessionConfig()
	cfg.StopSequences[0] = "b"
	assert.Equal(t, []string{"a"}, src.Current().Stop)
}

func TestWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.txt")
	require.NoError(t, os.WriteFile(path, []byte("before"), 0644))

	src, err := FromConfig(types.PersonaConfig{File: path})
	require.NoError(t, err)

	w, err := NewWatcher(src)
	require.NoError(t, err)
	require.NotNil(t, w)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("after"), 0644))

	assert.Eventually(t, func() bool {
		return src.Current().Directive == "after"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNewWatcherWithoutFile(t *testing.T) {
	w, err := NewWatcher(NewSource(Default()))
	require.NoError(t, err)
	assert.Nil(t, w)
}
