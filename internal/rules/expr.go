// Package rules implements spec.md component 4.E: a boolean expression
// tree evaluated against a probe.MediaInfo, plus the ordered action lists
// that fire when a rule matches.
package rules

import (
	"encoding/json"
	"fmt"

	"github.com/tidecast/mediapipe/internal/probe"
)

// Expr is the recursive condition tree (spec.md §3 "Expr", §9 "Recursive
// Expr type"). Exactly one of the fields is populated, selected by Type.
type Expr struct {
	Type      string     `json:"type"` // "condition" | "and" | "or" | "not"
	Condition *Condition `json:"condition,omitempty"`
	Exprs     []Expr     `json:"exprs,omitempty"` // and/or
	Expr      *Expr      `json:"expr,omitempty"`  // not
}

func ConditionExpr(c Condition) Expr { return Expr{Type: "condition", Condition: &c} }
func And(exprs ...Expr) Expr         { return Expr{Type: "and", Exprs: exprs} }
func Or(exprs ...Expr) Expr          { return Expr{Type: "or", Exprs: exprs} }
func NotExpr(e Expr) Expr            { return Expr{Type: "not", Expr: &e} }

// Evaluate walks the tree against info. Empty And is true; empty Or is
// false (spec.md §3).
func (e Expr) Evaluate(info *probe.MediaInfo) bool {
	switch e.Type {
	case "condition":
		if e.Condition == nil {
			return false
		}
		return e.Condition.Evaluate(info)
	case "and":
		for _, child := range e.Exprs {
			if !child.Evaluate(info) {
				return false
			}
		}
		return true
	case "or":
		for _, child := range e.Exprs {
			if child.Evaluate(info) {
				return true
			}
		}
		return false
	case "not":
		if e.Expr == nil {
			return false
		}
		return !e.Expr.Evaluate(info)
	default:
		return false
	}
}

// Condition is a leaf of the expression tree (spec.md §3 "Condition"). Only
// the field matching Kind is populated.
type Condition struct {
	Kind                string     `json:"kind"`
	Codec               []string   `json:"codec,omitempty"`
	Container           []string   `json:"container,omitempty"`
	HdrFormat           []string   `json:"hdr_format,omitempty"`
	DolbyVisionProfile  []int      `json:"dolby_vision_profile,omitempty"`
	MinResolution       *Resolution `json:"min_resolution,omitempty"`
	MaxResolution       *Resolution `json:"max_resolution,omitempty"`
	AudioCodec          []string   `json:"audio_codec,omitempty"`
	HasAtmos            *bool      `json:"has_atmos,omitempty"`
	MinBitDepth         *int       `json:"min_bit_depth,omitempty"`
	FileExtension       []string   `json:"file_extension,omitempty"`
}

// Resolution is the operand of MinResolution/MaxResolution conditions.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

const (
	KindCodec              = "codec"
	KindContainer           = "container"
	KindHdrFormat           = "hdr_format"
	KindDolbyVisionProfile  = "dolby_vision_profile"
	KindMinResolution       = "min_resolution"
	KindMaxResolution       = "max_resolution"
	KindAudioCodec          = "audio_codec"
	KindHasAtmos            = "has_atmos"
	KindMinBitDepth         = "min_bit_depth"
	KindFileExtension       = "file_extension"
)

// Evaluate tests the condition against a probed file's MediaInfo. Every
// condition here performs no I/O (spec.md §4.E).
func (c Condition) Evaluate(info *probe.MediaInfo) bool {
	switch c.Kind {
	case KindCodec:
		v := info.PrimaryVideo()
		return v != nil && containsStr(c.Codec, string(v.Codec))
	case KindContainer:
		return containsStr(c.Container, info.Container)
	case KindHdrFormat:
		v := info.PrimaryVideo()
		return v != nil && containsStr(c.HdrFormat, string(v.HdrFormat))
	case KindDolbyVisionProfile:
		v := info.PrimaryVideo()
		if v == nil || v.DolbyVision == nil {
			return false
		}
		return containsInt(c.DolbyVisionProfile, int(v.DolbyVision.Profile))
	case KindMinResolution:
		v := info.PrimaryVideo()
		return v != nil && c.MinResolution != nil && v.Width >= c.MinResolution.Width && v.Height >= c.MinResolution.Height
	case KindMaxResolution:
		v := info.PrimaryVideo()
		return v != nil && c.MaxResolution != nil && v.Width <= c.MaxResolution.Width && v.Height <= c.MaxResolution.Height
	case KindAudioCodec:
		a := info.PrimaryAudio()
		return a != nil && containsStr(c.AudioCodec, string(a.Codec))
	case KindHasAtmos:
		a := info.PrimaryAudio()
		return a != nil && c.HasAtmos != nil && a.Atmos == *c.HasAtmos
	case KindMinBitDepth:
		v := info.PrimaryVideo()
		return v != nil && v.BitDepth != nil && c.MinBitDepth != nil && *v.BitDepth >= *c.MinBitDepth
	case KindFileExtension:
		return containsStr(c.FileExtension, fileExtension(info.FilePath))
	default:
		return false
	}
}

func containsStr(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func fileExtension(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
		if path[i] == '/' {
			break
		}
	}
	return ""
}

// MarshalExpr / UnmarshalExpr round-trip the internally-tagged JSON shape
// spec.md §9 specifies. Expr's own json tags already produce this shape,
// so these are thin wrappers kept for symmetry with ActionConfig, whose
// variants don't all share one Go struct.
func MarshalExpr(e Expr) ([]byte, error)   { return json.Marshal(e) }
func UnmarshalExpr(data []byte) (Expr, error) {
	var e Expr
	if err := json.Unmarshal(data, &e); err != nil {
		return Expr{}, fmt.Errorf("unmarshal expr: %w", err)
	}
	return e, nil
}
