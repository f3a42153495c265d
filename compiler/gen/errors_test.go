package gen

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseError(t *testing.T) {
	t.Run("Error message with all fields", func(t *testing.T) {
		cause := errors.New("underlying error")
		err := NewParseError(KindUnknownModelRole, "Member2Male", "no out-model OUT2", cause)
		err.Pos = "f.hcl:3:1"

		msg := err.Error()
		assert.Contains(t, msg, "synchro: parse error (UnknownModelRole)")
		assert.Contains(t, msg, "at f.hcl:3:1")
		assert.Contains(t, msg, "in Member2Male")
		assert.Contains(t, msg, "no out-model OUT2")
		assert.Contains(t, msg, "underlying error")
	})

	t.Run("Unwrap returns cause", func(t *testing.T) {
		cause := errors.New("root cause")
		err := NewParseError(KindSyntax, "", "", cause)

		assert.Equal(t, cause, err.Unwrap())
		assert.True(t, errors.Is(err, cause))
	})

	t.Run("Is matches ErrParse only", func(t *testing.T) {
		err := NewParseError(KindDuplicateDeclaration, "R", "", nil)
		assert.True(t, errors.Is(err, ErrParse))
		assert.False(t, errors.Is(err, ErrResolution))
		assert.True(t, IsParseError(fmt.Errorf("wrapped: %w", err)))
		assert.False(t, IsParseError(errors.New("other")))
	})
}

func TestResolutionError(t *testing.T) {
	err := NewResolutionError(KindInheritanceCycle, "Child", "rule Child inherits from itself", nil)

	assert.Contains(t, err.Error(), "synchro: resolution error (InheritanceCycle)")
	assert.True(t, errors.Is(err, ErrResolution))
	assert.True(t, IsResolutionError(err))
	assert.False(t, IsGenerationError(err))
	assert.Nil(t, err.Unwrap())
}

func TestGenerationError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewGenerationError(KindIO, "rule_a.go", "write file", cause)

	assert.Equal(t, "synchro: generation error (IO) in rule_a.go: write file: disk full", err.Error())
	assert.True(t, errors.Is(err, ErrGeneration))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsGenerationError(err))
}

func TestConfigError(t *testing.T) {
	t.Run("Error message with value", func(t *testing.T) {
		err := NewConfigError("GoVersion", "abc", "version must look like 1.24 or 1.24.1")

		assert.Contains(t, err.Error(), "synchro: config error")
		assert.Contains(t, err.Error(), "GoVersion")
		assert.Contains(t, err.Error(), "abc")
	})

	t.Run("Error message without value", func(t *testing.T) {
		err := NewConfigError("Target", nil, "target directory cannot be empty")
		assert.NotContains(t, err.Error(), "value:")
	})

	t.Run("Is matches ErrMissingConfig", func(t *testing.T) {
		err := NewConfigError("Target", nil, "")
		assert.True(t, errors.Is(err, ErrMissingConfig))
		assert.True(t, IsConfigError(err))
	})
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"parse", NewParseError(KindUnknownModelRole, "", "", nil), KindUnknownModelRole},
		{"resolution", NewResolutionError(KindUnknownHelper, "", "", nil), KindUnknownHelper},
		{"generation", NewGenerationError(KindContainmentCycle, "", "", nil), KindContainmentCycle},
		{"wrapped", fmt.Errorf("compile: %w", NewGenerationError(KindFeatureResolution, "", "", nil)), KindFeatureResolution},
		{"other", errors.New("boom"), ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
