package output

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"

	"github.com/syssam/synchro/compiler/gen"
)

func TestSetupLoggingLevels(t *testing.T) {
	var buf bytes.Buffer
	SetupLoggingTo(&buf, false)
	assert.Equal(t, log.InfoLevel, Logger.GetLevel())
	Debug("hidden")
	Info("shown", "rule", "Member2Male")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "synchro")
	assert.Contains(t, buf.String(), "rule=Member2Male")

	buf.Reset()
	SetupLoggingTo(&buf, true)
	assert.Equal(t, log.DebugLevel, Logger.GetLevel())
	Debug("verbose-msg")
	assert.Contains(t, buf.String(), "verbose-msg")
}

func TestStage(t *testing.T) {
	var buf bytes.Buffer
	SetupLoggingTo(&buf, false)
	Stage(StageBuild).Info("compiled", "exe", "families2persons")
	out := buf.String()
	assert.Contains(t, out, "synchro")
	assert.Contains(t, out, "stage=build")
	assert.Contains(t, out, "exe=families2persons")

	// Stage loggers follow the level of the logger they were derived from.
	buf.Reset()
	Stage(StageGenerate).Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestFailed(t *testing.T) {
	var buf bytes.Buffer
	SetupLoggingTo(&buf, false)

	err := fmt.Errorf("generate: %w", gen.NewGenerationError(gen.KindNameConflict, "S2T", "variables s and S collide", nil))
	Failed(StageWatch, err)
	out := buf.String()
	assert.Contains(t, out, "stage=watch")
	assert.Contains(t, out, "kind=NameConflict")
	assert.Contains(t, out, "collide")

	buf.Reset()
	Warn("careful")
	Failed(StageRun, errors.New("exit status 2"))
	out = buf.String()
	assert.Contains(t, out, "careful")
	assert.Contains(t, out, "stage=run")
	assert.NotContains(t, out, "kind=")
}
