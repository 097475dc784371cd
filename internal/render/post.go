package render

// Limiter keeps a frame inside a per-LED white cap and an optional global
// current budget. The zero value does nothing.
//
//   - WhiteCap: max R+G+B per LED in linear units (3.0 or 0 = no cap)
//   - ChannelMA: mA per channel at full scale; WS2812 is about 20 (default 20)
//   - BudgetMA: total budget in mA; 0 disables the global stage
//   - Knee: fraction of the budget where soft limiting starts (default 0.9)
type Limiter struct {
	WhiteCap  float64 `yaml:"white_cap"`
	ChannelMA float64 `yaml:"channel_ma"`
	BudgetMA  float64 `yaml:"budget_ma"`
	Knee      float64 `yaml:"knee"`
}

func (l Limiter) Apply(buf []Color) {
	if l.WhiteCap > 0 && l.WhiteCap < 3 {
		wc := float32(l.WhiteCap)
		for i := range buf {
			s := buf[i].R + buf[i].G + buf[i].B
			if s > wc {
				k := wc / s
				buf[i].R *= k
				buf[i].G *= k
				buf[i].B *= k
			}
		}
	}

	if l.BudgetMA <= 0 {
		return
	}
	chanMA := l.ChannelMA
	if chanMA <= 0 {
		chanMA = 20
	}
	knee := l.Knee
	if knee <= 0 || knee >= 1 {
		knee = 0.9
	}

	var total float64
	for i := range buf {
		total += float64(buf[i].R+buf[i].G+buf[i].B) * chanMA
	}
	if total <= 0 {
		return
	}
	ratio := total / l.BudgetMA
	switch {
	case ratio <= knee:
		return
	case ratio <= 1:
		// ease from 1 at the knee to budget/total at the budget
		minS := l.BudgetMA / total
		t := (ratio - knee) / (1 - knee)
		Scale(buf, float32(1-t*(1-minS)))
	default:
		Scale(buf, float32(l.BudgetMA/total))
	}
}

// Scale multiplies every channel by s. Used for global brightness.
func Scale(buf []Color, s float32) {
	if s == 1 {
		return
	}
	for i := range buf {
		buf[i].R *= s
		buf[i].G *= s
		buf[i].B *= s
	}
}

// Lerp blends a toward b by alpha in linear space.
func Lerp(a, b Color, alpha float64) Color {
	if alpha <= 0 {
		return a
	}
	if alpha >= 1 {
		return b
	}
	bf := float32(alpha)
	af := 1 - bf
	return Color{
		R: a.R*af + b.R*bf,
		G: a.G*af + b.G*bf,
		B: a.B*af + b.B*bf,
	}
}

func clamp01(x float32) float32 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
