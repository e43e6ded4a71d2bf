package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dimfeld/ashford/internal/model"
)

func policy() PolicyConfig {
	return NewPolicyConfig([]string{"delete", "forward", "auto_reply", "escalate"}, 0.7)
}

func TestEvaluate_LLMDangerousLowConfidence(t *testing.T) {
	d := model.DecisionOutput{
		Source:     model.SourceLLM,
		ActionType: model.ActionDelete,
		Confidence: 0.55,
	}
	result := Evaluate(d, model.SafeModeDefault, policy())

	assert.True(t, result.RequiresApproval)
	assert.Contains(t, result.Overrides, model.OverrideDangerousAction)
	assert.Contains(t, result.Overrides, model.OverrideLowConfidence)
	assert.Contains(t, result.Overrides, model.OverrideInApprovalAlwaysList)
}

func TestEvaluate_DeterministicArchiveIsSafe(t *testing.T) {
	d := model.DecisionOutput{
		Source:     model.SourceDeterministic,
		ActionType: model.ActionArchive,
		Confidence: 1.0,
	}
	result := Evaluate(d, model.SafeModeDefault, policy())
	assert.False(t, result.RequiresApproval)
	assert.Empty(t, result.Overrides)
}

func TestEvaluate_DangerousOverrideBypassesDangerous(t *testing.T) {
	d := model.DecisionOutput{
		Source:     model.SourceDeterministic,
		ActionType: model.ActionDelete,
		Confidence: 1.0,
	}
	result := Evaluate(d, model.SafeModeDangerousOverride, policy())
	// Still forced by the approval-always list, independent of safe_mode.
	assert.True(t, result.RequiresApproval)
	assert.NotContains(t, result.Overrides, model.OverrideDangerousAction)
	assert.Contains(t, result.Overrides, model.OverrideInApprovalAlwaysList)
}

func TestEvaluate_AlwaysSafeBypassesLowConfidence(t *testing.T) {
	d := model.DecisionOutput{
		Source:     model.SourceLLM,
		ActionType: model.ActionStar,
		Confidence: 0.1,
	}
	result := Evaluate(d, model.SafeModeAlwaysSafe, policy())
	assert.False(t, result.RequiresApproval)
}

func TestEvaluate_LlmRequestedApproval(t *testing.T) {
	d := model.DecisionOutput{
		Source:        model.SourceLLM,
		ActionType:    model.ActionArchive,
		Confidence:    0.9,
		NeedsApproval: true,
	}
	result := Evaluate(d, model.SafeModeDefault, policy())
	assert.True(t, result.RequiresApproval)
	assert.Equal(t, []model.SafetyOverride{model.OverrideLlmRequestedApproval}, result.Overrides)
}
