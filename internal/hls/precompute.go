// Package hls builds PreparedMedia — keyframe-aligned fMP4 segments with
// precomputed moof/mdat headers and byte ranges into the source file — from
// an already-Profile-B-encoded MP4 (spec.md §4.I). It never re-encodes or
// remuxes; it only re-packages the existing sample table into CMAF segments.
package hls

import (
	"fmt"
	"math"
	"os"

	"github.com/tidecast/mediapipe/internal/apperrors"
	"github.com/tidecast/mediapipe/internal/mp4"
)

// DefaultTargetSegmentSeconds is the default segment duration target.
const DefaultTargetSegmentSeconds = 6

// PrecomputedSegment is one HLS media segment's precomputed layout: the
// moof box bytes, the mdat header, and the byte ranges (video then audio)
// in the source file that supply the mdat payload (spec.md §3
// "PrecomputedSegment").
type PrecomputedSegment struct {
	Index         int
	StartSample   int // video sample index, inclusive
	EndSample     int // video sample index, exclusive
	StartTimeSecs float64
	DurationSecs  float64

	MoofBytes      []byte
	MdatHeader     []byte
	VideoRanges    []mp4.DataRange
	AudioRanges    []mp4.DataRange
	DataLength     uint64 // sum of all range lengths
}

// PreparedMedia is the fully precomputed representation of one Profile-B
// media file, ready to be served without touching its sample tables again
// (spec.md §3 "PreparedMedia").
type PreparedMedia struct {
	SourcePath      string
	DurationSecs    float64
	InitSegment     []byte
	Segments        []PrecomputedSegment
	VariantPlaylist string
}

// Precompute parses path (already an H.264/AAC MP4, i.e. Profile B) and
// builds its PreparedMedia. targetSegmentSeconds <= 0 uses the default.
// baseURL prefixes the init/segment URIs written into the variant playlist
// (spec.md §6: "<base>/init.mp4", "<base>/segment_<i>.m4s") — callers pass
// the stream endpoint's own base path, e.g. "/stream/<media_file_id>".
func Precompute(path string, targetSegmentSeconds int, baseURL string) (*PreparedMedia, error) {
	if targetSegmentSeconds <= 0 {
		targetSegmentSeconds = DefaultTargetSegmentSeconds
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Internal("open media file", err)
	}
	defer f.Close()

	container, err := mp4.Parse(f)
	if err != nil {
		return nil, err
	}
	video := container.VideoTrack()
	if video == nil {
		return nil, apperrors.InvalidMp4("no video track")
	}
	audio := container.AudioTrack()

	segBounds := buildSegmentBounds(video, targetSegmentSeconds)

	var segments []PrecomputedSegment
	for i, bounds := range segBounds {
		seg, err := buildSegment(i, bounds, video, audio)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}

	init := buildInitSegment(container, video, audio)

	durationSecs := float64(video.Duration) / float64(video.Timescale)

	playlist := buildVariantPlaylist(segments, baseURL)

	return &PreparedMedia{
		SourcePath:      path,
		DurationSecs:    durationSecs,
		InitSegment:     init,
		Segments:        segments,
		VariantPlaylist: playlist,
	}, nil
}

// segmentBounds is a [startSample, endSample) pair in video sample indices.
type segmentBounds struct {
	startSample int
	endSample   int
}

// buildSegmentBounds walks keyframe indices, starting a new segment once
// elapsed ticks since the segment start reach target_ticks, or at the final
// keyframe (spec.md §4.I step 2).
func buildSegmentBounds(video *mp4.Track, targetSegmentSeconds int) []segmentBounds {
	targetTicks := uint64(targetSegmentSeconds) * uint64(video.Timescale)
	keyframes := video.KeyframeIndices()
	if len(keyframes) == 0 {
		return nil
	}

	var bounds []segmentBounds
	segStartIdx := keyframes[0]
	segStartDTS := video.Samples[segStartIdx].DTS

	for i := 1; i < len(keyframes); i++ {
		kf := keyframes[i]
		elapsed := video.Samples[kf].DTS - segStartDTS
		if elapsed >= targetTicks {
			bounds = append(bounds, segmentBounds{startSample: segStartIdx, endSample: kf})
			segStartIdx = kf
			segStartDTS = video.Samples[kf].DTS
		}
	}
	// Final segment runs to the end of the sample table.
	bounds = append(bounds, segmentBounds{startSample: segStartIdx, endSample: len(video.Samples)})
	return bounds
}

func buildSegment(index int, bounds segmentBounds, video, audio *mp4.Track) (PrecomputedSegment, error) {
	videoSamples := video.Samples[bounds.startSample:bounds.endSample]
	startDTS := videoSamples[0].DTS

	var endDTS uint64
	if bounds.endSample < len(video.Samples) {
		endDTS = video.Samples[bounds.endSample].DTS
	} else {
		endDTS = video.Duration
	}

	startTimeSecs := float64(startDTS) / float64(video.Timescale)
	durationSecs := float64(endDTS-startDTS) / float64(video.Timescale)

	videoRanges := mp4.CoalesceRanges(videoSamples)

	var audioSamples []mp4.Sample
	var audioRanges []mp4.DataRange
	if audio != nil {
		audioSamples = sliceAudioWindow(audio, video, startDTS, endDTS, bounds.endSample >= len(video.Samples))
		audioRanges = mp4.CoalesceRanges(audioSamples)
	}

	videoLen := mp4.TotalLength(videoRanges)
	audioLen := mp4.TotalLength(audioRanges)
	dataLength := videoLen + audioLen
	mdatHeaderLen := mp4.MdatHeaderLen(dataLength)

	var trafs []mp4.TrafSpec
	trafs = append(trafs, mp4.TrafSpec{
		TrackID:             video.TrackID,
		BaseMediaDecodeTime: startDTS,
		Samples:             trunSamplesFor(videoSamples, video.Samples, bounds.endSample),
		DataLenBefore:       0,
	})
	if audio != nil {
		trafs = append(trafs, mp4.TrafSpec{
			TrackID:             audio.TrackID,
			BaseMediaDecodeTime: firstDTSOr(audioSamples, 0),
			Samples:             trunSamplesForAudio(audioSamples, audio.Samples),
			DataLenBefore:       videoLen,
		})
	}

	moof := mp4.BuildMoof(uint32(index+1), trafs, mdatHeaderLen)
	mdatHeader := mp4.BuildMdatHeader(dataLength)

	return PrecomputedSegment{
		Index:         index,
		StartSample:   bounds.startSample,
		EndSample:     bounds.endSample,
		StartTimeSecs: startTimeSecs,
		DurationSecs:  durationSecs,
		MoofBytes:     moof,
		MdatHeader:    mdatHeader,
		VideoRanges:   videoRanges,
		AudioRanges:   audioRanges,
		DataLength:    dataLength,
	}, nil
}

// sliceAudioWindow maps a video segment's [startDTS, endDTS) window (in
// video timescale ticks) onto audio sample indices via binary search on the
// audio track's own timescale, ensuring the final segment also picks up any
// residual trailing audio samples (spec.md §4.I step 4).
func sliceAudioWindow(audio, video *mp4.Track, startDTSVideo, endDTSVideo uint64, isLastSegment bool) []mp4.Sample {
	startTicksAudio := rescale(startDTSVideo, video.Timescale, audio.Timescale)
	startIdx := mp4.SampleDTSSearch(audio.Samples, startTicksAudio)

	if isLastSegment {
		return audio.Samples[startIdx:]
	}

	endTicksAudio := rescale(endDTSVideo, video.Timescale, audio.Timescale)
	endIdx := mp4.SampleDTSSearch(audio.Samples, endTicksAudio)
	return audio.Samples[startIdx:endIdx]
}

func rescale(ticks uint64, fromTimescale, toTimescale uint32) uint64 {
	if fromTimescale == 0 {
		return 0
	}
	return uint64(math.Round(float64(ticks) * float64(toTimescale) / float64(fromTimescale)))
}

func firstDTSOr(samples []mp4.Sample, fallback uint64) uint64 {
	if len(samples) == 0 {
		return fallback
	}
	return samples[0].DTS
}

// trunSamplesFor builds the video trun entries: duration = next sample's
// DTS delta (or the track's trailing default for the last sample in the
// whole track), size, keyframe flags, and composition offset (spec.md §4.I
// step 5).
func trunSamplesFor(segSamples, allSamples []mp4.Sample, endSample int) []mp4.TrunSample {
	out := make([]mp4.TrunSample, len(segSamples))
	for i, s := range segSamples {
		out[i] = mp4.TrunSample{
			Duration:          sampleDuration(allSamples, s.Index),
			Size:              s.Size,
			Flags:             mp4.SampleFlags(s.IsKeyframe),
			CompositionOffset: s.CTSOffset,
		}
	}
	return out
}

func trunSamplesForAudio(segSamples, allSamples []mp4.Sample) []mp4.TrunSample {
	out := make([]mp4.TrunSample, len(segSamples))
	for i, s := range segSamples {
		out[i] = mp4.TrunSample{
			Duration:          sampleDuration(allSamples, s.Index),
			Size:              s.Size,
			Flags:             mp4.SampleFlags(true), // audio samples carry no sync-sample semantics
			CompositionOffset: 0,
		}
	}
	return out
}

// sampleDuration returns next_dts - this_dts, or repeats the previous
// sample's duration for the very last sample in the track.
func sampleDuration(samples []mp4.Sample, index int) uint32 {
	if index+1 < len(samples) {
		return uint32(samples[index+1].DTS - samples[index].DTS)
	}
	if index > 0 {
		return uint32(samples[index].DTS - samples[index-1].DTS)
	}
	return 0
}

func buildInitSegment(c *mp4.Container, video, audio *mp4.Track) []byte {
	ftyp := mp4.WriteFtyp()

	var traks [][]byte
	var trackIDs []uint32

	traks = append(traks, mp4.WriteVideoTrak(video.TrackID, video.Timescale, video.Duration, video.Codec, video.Width, video.Height, video.CodecPrivate))
	trackIDs = append(trackIDs, video.TrackID)

	nextTrackID := video.TrackID + 1
	if audio != nil {
		traks = append(traks, mp4.WriteAudioTrak(audio.TrackID, audio.Timescale, audio.Duration, audio.SampleRate, audio.Channels, audio.CodecPrivate))
		trackIDs = append(trackIDs, audio.TrackID)
		if audio.TrackID >= nextTrackID {
			nextTrackID = audio.TrackID + 1
		}
	}

	mvex := mp4.WriteMvex(trackIDs...)
	moov := mp4.WriteMoov(c.MovieTimescale, c.MovieDuration, nextTrackID, traks, mvex)

	out := make([]byte, 0, len(ftyp)+len(moov))
	out = append(out, ftyp...)
	out = append(out, moov...)
	return out
}

// buildVariantPlaylist renders the single-rendition M3U8 exactly matching
// spec.md §6's external interface contract.
func buildVariantPlaylist(segments []PrecomputedSegment, baseURL string) string {
	target := 0
	for _, s := range segments {
		if c := int(math.Ceil(s.DurationSecs)); c > target {
			target = c
		}
	}

	out := "#EXTM3U\n"
	out += "#EXT-X-VERSION:7\n"
	out += fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", target)
	out += "#EXT-X-MEDIA-SEQUENCE:0\n"
	out += "#EXT-X-PLAYLIST-TYPE:VOD\n"
	out += "#EXT-X-INDEPENDENT-SEGMENTS\n"
	out += fmt.Sprintf("#EXT-X-MAP:URI=%q\n", baseURL+"/init.mp4")
	for _, s := range segments {
		out += fmt.Sprintf("#EXTINF:%.6f,\n", s.DurationSecs)
		out += fmt.Sprintf("%s/segment_%d.m4s\n", baseURL, s.Index)
	}
	out += "#EXT-X-ENDLIST\n"
	return out
}
