package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrimaryVideoFallsBackToIndexZero(t *testing.T) {
	info := &MediaInfo{VideoTracks: []VideoTrack{{Index: 0}, {Index: 1}}}
	assert.Equal(t, 0, info.PrimaryVideo().Index)
}

func TestPrimaryVideoPrefersDefaultFlag(t *testing.T) {
	info := &MediaInfo{VideoTracks: []VideoTrack{{Index: 0}, {Index: 1, Default: true}}}
	assert.Equal(t, 1, info.PrimaryVideo().Index)
}

func TestPrimaryAudioEmptyReturnsNil(t *testing.T) {
	info := &MediaInfo{}
	assert.Nil(t, info.PrimaryAudio())
}

func TestMapVideoCodecKnownAndUnknown(t *testing.T) {
	assert.Equal(t, VideoCodecH264, mapVideoCodec("h264"))
	assert.Equal(t, VideoCodecH265, mapVideoCodec("hevc"))
	assert.Equal(t, VideoCodec("VC1"), mapVideoCodec("vc1"))
}

func TestMapAudioCodecKnownAndUnknown(t *testing.T) {
	assert.Equal(t, AudioCodecEAC3, mapAudioCodec("eac3"))
	assert.Equal(t, AudioCodecDTSHD, mapAudioCodec("dts-hd"))
}

func TestParseFrameRateRational(t *testing.T) {
	rate := parseFrameRate("24000/1001")
	if assert.NotNil(t, rate) {
		assert.InDelta(t, 23.976, *rate, 0.001)
	}
}

func TestParseFrameRateInvalid(t *testing.T) {
	assert.Nil(t, parseFrameRate("not-a-rate"))
}

func TestContainerFromExt(t *testing.T) {
	assert.Equal(t, "mkv", containerFromExt("/movies/foo.mkv"))
	assert.Equal(t, "mp4", containerFromExt("/movies/foo.mp4"))
}

func TestDvProfileTokenExtraction(t *testing.T) {
	m := dvProfileToken.FindStringSubmatch("dvhe.07.06 / something")
	if assert.NotNil(t, m) {
		assert.Equal(t, "07", m[1])
	}
}

func TestNativeProberSupportsMp4Only(t *testing.T) {
	p := NewNativeProber()
	assert.True(t, p.Supports("/media/movie.mp4"))
	assert.False(t, p.Supports("/media/movie.mkv"))
}
