package sequence

import "time"

// Keyframe is a value at time T (seconds into the clip). Ease applies to the
// segment that starts at this key.
type Keyframe struct {
	T    float64 `yaml:"t"`
	V    float64 `yaml:"v"`
	Ease string  `yaml:"ease,omitempty"` // "linear","smooth","cubic"
}

// Envelope is a list of keyframes sorted by T.
type Envelope struct {
	Keys []Keyframe `yaml:"keys"`
}

// Clip plays one scene for Duration, optionally crossfading into the next clip
// over the last XFade of its run.
type Clip struct {
	Name     string        `yaml:"name,omitempty"`
	Scene    string        `yaml:"scene"`
	Preset   string        `yaml:"preset,omitempty"`
	Duration time.Duration `yaml:"duration"`
	XFade    time.Duration `yaml:"xfade,omitempty"`
	Level    *Envelope     `yaml:"level,omitempty"` // output level 0..1 over the clip
}

// Program is an ordered list of clips.
type Program struct {
	Loop  bool   `yaml:"loop,omitempty"`
	Clips []Clip `yaml:"clips"`
}

func (p Program) Total() time.Duration {
	var d time.Duration
	for _, c := range p.Clips {
		d += c.Duration
	}
	return d
}
