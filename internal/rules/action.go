package rules

// ActionConfig is one step of a rule's action list (spec.md §3
// "ActionConfig"). Exactly one variant's fields are populated, selected by
// Type, serialized internally-tagged the same way Expr is (spec.md §9).
type ActionConfig struct {
	Type string `json:"type"` // "remux" | "dv_convert" | "profile_b_encode" | "add_compat_audio"

	// Remux
	Container    string `json:"container,omitempty"`
	KeepOriginal bool   `json:"keep_original,omitempty"`

	// DvConvert
	TargetProfile int `json:"target_profile,omitempty"`

	// AddCompatAudio
	SourceCodec string `json:"source_codec,omitempty"`
	TargetCodec string `json:"target_codec,omitempty"`
}

const (
	ActionRemux            = "remux"
	ActionDvConvert        = "dv_convert"
	ActionProfileBEncode   = "profile_b_encode"
	ActionAddCompatAudio   = "add_compat_audio"
)

func RemuxAction(container string, keepOriginal bool) ActionConfig {
	return ActionConfig{Type: ActionRemux, Container: container, KeepOriginal: keepOriginal}
}

func DvConvertAction(targetProfile int) ActionConfig {
	return ActionConfig{Type: ActionDvConvert, TargetProfile: targetProfile}
}

func ProfileBEncodeAction() ActionConfig {
	return ActionConfig{Type: ActionProfileBEncode}
}

func AddCompatAudioAction(sourceCodec, targetCodec string) ActionConfig {
	return ActionConfig{Type: ActionAddCompatAudio, SourceCodec: sourceCodec, TargetCodec: targetCodec}
}
