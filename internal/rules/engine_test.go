package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidecast/mediapipe/internal/database"
	"github.com/tidecast/mediapipe/internal/probe"
)

func dvInfoWith(t *testing.T, container string, codec probe.VideoCodec, hdrFormat probe.HdrFormat, dvProfile *uint8) *probe.MediaInfo {
	t.Helper()
	vt := probe.VideoTrack{Codec: codec, HdrFormat: hdrFormat, Default: true, Width: 3840, Height: 2160}
	if dvProfile != nil {
		vt.DolbyVision = &probe.DvInfo{Profile: *dvProfile, BLPresent: true}
	}
	return &probe.MediaInfo{Container: container, VideoTracks: []probe.VideoTrack{vt}}
}

func TestExprEmptyAndIsTrueEmptyOrIsFalse(t *testing.T) {
	assert.True(t, And().Evaluate(&probe.MediaInfo{}))
	assert.False(t, Or().Evaluate(&probe.MediaInfo{}))
}

func TestConditionContainerMatch(t *testing.T) {
	info := &probe.MediaInfo{Container: "mkv"}
	expr := ConditionExpr(Condition{Kind: KindContainer, Container: []string{"mkv"}})
	assert.True(t, expr.Evaluate(info))

	expr2 := ConditionExpr(Condition{Kind: KindContainer, Container: []string{"mp4"}})
	assert.False(t, expr2.Evaluate(info))
}

func TestDvConvertScenarioExpr(t *testing.T) {
	profile := uint8(7)
	info := dvInfoWith(t, "mkv", probe.VideoCodecH265, probe.HdrFormatDolbyVision, &profile)

	expr := And(
		ConditionExpr(Condition{Kind: KindHdrFormat, HdrFormat: []string{string(probe.HdrFormatDolbyVision)}}),
		ConditionExpr(Condition{Kind: KindDolbyVisionProfile, DolbyVisionProfile: []int{7}}),
	)
	assert.True(t, expr.Evaluate(info))
}

func TestNotExprNegates(t *testing.T) {
	info := &probe.MediaInfo{Container: "mkv"}
	expr := NotExpr(ConditionExpr(Condition{Kind: KindContainer, Container: []string{"mkv"}}))
	assert.False(t, expr.Evaluate(info))
}

func TestEngineFindMatchingRulePriorityOrder(t *testing.T) {
	lowPriority := Rule{
		ID: "low", Enabled: true, Priority: 1,
		Expr: ConditionExpr(Condition{Kind: KindContainer, Container: []string{"mkv"}}),
	}
	highPriority := Rule{
		ID: "high", Enabled: true, Priority: 10,
		Expr: ConditionExpr(Condition{Kind: KindContainer, Container: []string{"mkv"}}),
	}
	engine := New([]Rule{lowPriority, highPriority})

	match := engine.FindMatchingRule(&probe.MediaInfo{Container: "mkv"})
	require.NotNil(t, match)
	assert.Equal(t, "high", match.ID)
}

func TestEngineSkipsDisabledRules(t *testing.T) {
	disabled := Rule{
		ID: "disabled", Enabled: false, Priority: 100,
		Expr: ConditionExpr(Condition{Kind: KindContainer, Container: []string{"mkv"}}),
	}
	enabled := Rule{
		ID: "enabled", Enabled: true, Priority: 1,
		Expr: ConditionExpr(Condition{Kind: KindContainer, Container: []string{"mkv"}}),
	}
	engine := New([]Rule{disabled, enabled})
	match := engine.FindMatchingRule(&probe.MediaInfo{Container: "mkv"})
	require.NotNil(t, match)
	assert.Equal(t, "enabled", match.ID)
}

func TestEngineEvaluateAllReturnsEveryMatch(t *testing.T) {
	r1 := Rule{ID: "a", Enabled: true, Priority: 5, Expr: And()}
	r2 := Rule{ID: "b", Enabled: true, Priority: 1, Expr: And()}
	engine := New([]Rule{r2, r1})
	matches := engine.EvaluateAll(&probe.MediaInfo{})
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID) // higher priority first
	assert.Equal(t, "b", matches[1].ID)
}

func TestFromDatabaseRuleDecodesJSON(t *testing.T) {
	dbRule := database.Rule{
		ID:          "r1",
		Name:        "remux mkv",
		Enabled:     true,
		Priority:    50,
		ExprJSON:    `{"type":"condition","condition":{"kind":"container","container":["mkv"]}}`,
		ActionsJSON: `[{"type":"remux","container":"mp4"}]`,
	}
	rule, err := FromDatabaseRule(dbRule)
	require.NoError(t, err)
	assert.Equal(t, "remux mkv", rule.Name)
	require.Len(t, rule.Actions, 1)
	assert.Equal(t, ActionRemux, rule.Actions[0].Type)
	assert.True(t, rule.Expr.Evaluate(&probe.MediaInfo{Container: "mkv"}))
}

func TestMinResolutionCondition(t *testing.T) {
	info := dvInfoWith(t, "mp4", probe.VideoCodecH265, probe.HdrFormatHDR10, nil)
	expr := ConditionExpr(Condition{Kind: KindMinResolution, MinResolution: &Resolution{Width: 3840, Height: 2160}})
	assert.True(t, expr.Evaluate(info))

	expr2 := ConditionExpr(Condition{Kind: KindMinResolution, MinResolution: &Resolution{Width: 7680, Height: 4320}})
	assert.False(t, expr2.Evaluate(info))
}
