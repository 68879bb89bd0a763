// Package resample implements the pure-Go mono downmix and linear
// interpolation resampler that the recorder runs on decoded PCM before
// handing it to the Opus encoder, per spec.md §4.4 step 5. Deliberately
// not delegated to ffmpeg: the original keeps this step in-process so it
// can run sample-accurate framing against the encoder's fixed 960-sample
// packet size without an extra subprocess hop.
package resample

import "fmt"

// ToMono averages left/right samples from interleaved stereo S16LE PCM
// into a single mono channel. samples must have an even length; an odd
// trailing byte pair is dropped (a decoder never emits a partial frame).
func ToMono(stereo []int16) []int16 {
	mono := make([]int16, len(stereo)/2)
	for i := range mono {
		l := int32(stereo[2*i])
		r := int32(stereo[2*i+1])
		mono[i] = int16((l + r) / 2)
	}
	return mono
}

// Linear resamples mono PCM from inRate to outRate using linear
// interpolation between adjacent input samples. Returns an empty slice
// for an empty input. inRate and outRate must both be positive.
func Linear(in []int16, inRate, outRate int) ([]int16, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("resample: sample rates must be positive (got in=%d out=%d)", inRate, outRate)
	}
	if len(in) == 0 {
		return nil, nil
	}
	if inRate == outRate {
		out := make([]int16, len(in))
		copy(out, in)
		return out, nil
	}

	ratio := float64(inRate) / float64(outRate)
	outLen := int(float64(len(in)) / ratio)
	out := make([]int16, outLen)

	for i := range out {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)

		var a, b int16
		a = in[idx]
		if idx+1 < len(in) {
			b = in[idx+1]
		} else {
			b = a
		}

		out[i] = int16(float64(a) + frac*(float64(b)-float64(a)))
	}

	return out, nil
}
