package simulator

import "math/rand/v2"

// UpdateData applies one tick of realistic drift to every device's
// values.
func (f *Fleet) UpdateData() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, dev := range f.devices {
		for _, ctx := range dev.Contexts {
			switch ctx.Type {
			case "mppt":
				driftMPPT(ctx)
			case "phase":
				driftPhase(ctx)
			case "storage":
				driftStorage(ctx)
			default:
				if ctx.ID == "device" {
					driftDeviceLevel(ctx)
				}
			}
		}
		sumDevicePower(dev)
	}
	f.logger.Debug("updated simulated device data")
}

func floatValue(p *Point, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	switch v := p.Value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func driftMPPT(ctx *Context) {
	pdc := ctx.Points["Pdc"]
	vdc := ctx.Points["Vdc"]
	idc := ctx.Points["Idc"]
	if pdc != nil {
		pdc.Value = clamp(floatValue(pdc, 500)*(0.9+rand.Float64()*0.2), 50, 6000)
	}
	if vdc != nil {
		vdc.Value = floatValue(vdc, 400) * (0.98 + rand.Float64()*0.04)
	}
	// keep P = V * I consistent
	if pdc != nil && vdc != nil && idc != nil {
		if v := floatValue(vdc, 0); v > 0 {
			idc.Value = floatValue(pdc, 0) / v
		}
	}
}

func driftPhase(ctx *Context) {
	pac := ctx.Points["Pac"]
	vac := ctx.Points["Vac"]
	iac := ctx.Points["Iac"]
	freq := ctx.Points["Freq"]
	if pac != nil {
		pac.Value = clamp(floatValue(pac, 400)*(0.95+rand.Float64()*0.1), 30, 15000)
	}
	if vac != nil {
		vac.Value = 230 + (rand.Float64()-0.5)*10
	}
	if iac != nil && vac != nil && pac != nil {
		if v := floatValue(vac, 0); v > 0 {
			iac.Value = floatValue(pac, 0) / v
		}
	}
	if freq != nil {
		freq.Value = 50 + (rand.Float64()-0.5)*0.2
	}
}

func driftStorage(ctx *Context) {
	soc := ctx.Points["SoC"]
	power := ctx.Points["W"]
	state := ctx.Points["ChaState"]
	if soc == nil || power == nil || state == nil {
		return
	}

	currentSoC := floatValue(soc, 50)
	currentState, _ := state.Value.(int)

	if rand.Float64() < 0.1 {
		switch {
		case currentSoC < 20:
			currentState = 2 // charging
		case currentSoC > 90:
			currentState = 3 // discharging
		default:
			currentState = 1 + rand.IntN(3)
		}
		state.Value = currentState
	}

	switch currentState {
	case 2: // charging
		power.Value = -(100 + rand.Float64()*700)
		soc.Value = clamp(currentSoC+0.1+rand.Float64()*0.4, 0, 100)
	case 3: // discharging
		power.Value = 100 + rand.Float64()*700
		soc.Value = clamp(currentSoC-0.1-rand.Float64()*0.4, 0, 100)
	default:
		power.Value = rand.Float64()*40 - 20
		soc.Value = clamp(currentSoC+(rand.Float64()-0.5)*0.2, 0, 100)
	}
}

func driftDeviceLevel(ctx *Context) {
	if temp := ctx.Points["Temp"]; temp != nil {
		temp.Value = floatValue(temp, 35) + (rand.Float64()-0.5)
	}
}

// sumDevicePower keeps the device-level AC power point equal to the sum
// of its phase contexts.
func sumDevicePower(dev *Device) {
	deviceCtx := dev.context("device")
	if deviceCtx == nil {
		return
	}
	pac, ok := deviceCtx.Points["Pac"]
	if !ok {
		return
	}
	total := 0.0
	for _, ctx := range dev.Contexts {
		if ctx.Type == "phase" {
			total += floatValue(ctx.Points["Pac"], 0)
		}
	}
	pac.Value = total
}
