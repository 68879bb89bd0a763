package recorder

// Config is one recorder session's fully-resolved parameters, derived
// from a config.Session plus output_dir/retention defaults (spec.md
// §4.4, §6).
type Config struct {
	Name           string
	URL            string
	WindowStart    HourMinute
	WindowEnd      HourMinute
	AudioFormat    string // "opus", "aac", or "wav"
	Bitrate        int64  // kbps
	SplitInterval  int64  // seconds, 0 disables splitting
	RetentionHours int64
	OutputDir      string
}

// OutputSampleRate returns the target sample rate this session encodes
// to, fixed per audio format by spec.md §4.4 step 6 (Opus/AAC), or, for
// WAV, the rate the caller passes in (the pipeline passes ffmpeg's fixed
// 48 kHz PCM output rate, not the upstream's native rate).
func (c Config) OutputSampleRate(sourceRate int) int {
	switch c.AudioFormat {
	case "opus":
		return 48000
	case "aac":
		return 16000
	default: // wav
		return sourceRate
	}
}
