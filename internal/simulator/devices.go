package simulator

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

// Device is one simulated DER endpoint. Field access must go through the
// fleet's lock once the fleet is running.
type Device struct {
	UUID            string
	Name            string
	Model           string
	Manufacturer    string
	FirmwareVersion string
	ProtocolVersion string
	SerialNumber    string
	Type            string
	Port            int
	Online          bool
	Contexts        []*Context
}

// Context is an addressable sub-context of a simulated device.
type Context struct {
	ID          string
	Type        string
	Description string
	ModelID     int
	ModelName   string
	Points      map[string]*Point
}

// Point is a single data point with a live value.
type Point struct {
	Name        string
	Type        string
	Unit        string
	Access      string
	Description string
	Value       any
}

func (d *Device) context(id string) *Context {
	for _, ctx := range d.Contexts {
		if ctx.ID == id {
			return ctx
		}
	}
	return nil
}

func deviceContext(points map[string]*Point) *Context {
	return &Context{
		ID:          "device",
		Type:        "component",
		Description: "Device-level parameters",
		ModelID:     1,
		ModelName:   "Common Model",
		Points:      points,
	}
}

func mpptContext(index int) *Context {
	return &Context{
		ID:          fmt.Sprintf("mppt.%d", index),
		Type:        "mppt",
		Description: fmt.Sprintf("Maximum Power Point Tracker %d", index),
		ModelID:     160,
		ModelName:   "MPPT Model",
		Points: map[string]*Point{
			"Pdc": {Name: "DC Power", Type: "float", Unit: "W", Access: "R", Value: 100 + rand.Float64()*900, Description: "DC power input"},
			"Vdc": {Name: "DC Voltage", Type: "float", Unit: "V", Access: "R", Value: 300 + rand.Float64()*300, Description: "DC voltage input"},
			"Idc": {Name: "DC Current", Type: "float", Unit: "A", Access: "R", Value: 0.5 + rand.Float64()*4.5, Description: "DC current input"},
		},
	}
}

func acPhaseContext(index int, name string) *Context {
	return &Context{
		ID:          fmt.Sprintf("ac.%d", index),
		Type:        "phase",
		Description: fmt.Sprintf("AC %s", name),
		ModelID:     201,
		ModelName:   "AC Phase Model",
		Points: map[string]*Point{
			"Pac":  {Name: "AC Power", Type: "float", Unit: "W", Access: "R", Value: 50 + rand.Float64()*750, Description: fmt.Sprintf("AC power output for %s", name)},
			"Vac":  {Name: "AC Voltage", Type: "float", Unit: "V", Access: "R", Value: 220 + rand.Float64()*20, Description: fmt.Sprintf("AC voltage for %s", name)},
			"Iac":  {Name: "AC Current", Type: "float", Unit: "A", Access: "R", Value: 0.3 + rand.Float64()*2.7, Description: fmt.Sprintf("AC current for %s", name)},
			"Freq": {Name: "Frequency", Type: "float", Unit: "Hz", Access: "R", Value: 50 + (rand.Float64()-0.5)*0.2, Description: "Grid frequency"},
		},
	}
}

func storageContext(modelID int) *Context {
	return &Context{
		ID:          "storage",
		Type:        "storage",
		Description: "Battery Storage",
		ModelID:     modelID,
		ModelName:   "Storage Model",
		Points: map[string]*Point{
			"SoC":      {Name: "State of Charge", Type: "float", Unit: "%", Access: "R", Value: 20 + rand.Float64()*70, Description: "Battery state of charge"},
			"W":        {Name: "Power", Type: "float", Unit: "W", Access: "R", Value: rand.Float64()*1000 - 500, Description: "Battery power (negative = charging)"},
			"V":        {Name: "Voltage", Type: "float", Unit: "V", Access: "R", Value: 45 + rand.Float64()*10, Description: "Battery voltage"},
			"ChaState": {Name: "Charging State", Type: "uint16", Access: "R", Value: 1 + rand.IntN(3), Description: "Battery charging state"},
			"Health":   {Name: "Battery Health", Type: "float", Unit: "%", Access: "R", Value: 90 + rand.Float64()*10, Description: "Battery health percentage"},
		},
	}
}

func inverterControlContext() *Context {
	return &Context{
		ID:          "control",
		Type:        "component",
		Description: "Inverter Control",
		ModelID:     123,
		ModelName:   "Control Model",
		Points: map[string]*Point{
			"WMaxLim": {Name: "Active Power Limit", Type: "float", Unit: "%", Access: "RW", Value: 100.0, Description: "Maximum active power output limit (percentage)"},
			"Ena":     {Name: "Enable/Disable Inverter", Type: "uint16", Access: "RW", Value: 1, Description: "Enable (1) or disable (0) the inverter"},
		},
	}
}

func batteryControlContext() *Context {
	return &Context{
		ID:          "control",
		Type:        "component",
		Description: "Battery Control",
		ModelID:     123,
		ModelName:   "Control Model",
		Points: map[string]*Point{
			"WChaGra":     {Name: "Charge Rate", Type: "float", Unit: "%", Access: "RW", Value: 50.0, Description: "Battery charging rate limit"},
			"WDisChaGra":  {Name: "Discharge Rate", Type: "float", Unit: "%", Access: "RW", Value: 50.0, Description: "Battery discharging rate limit"},
			"StorCtl_Mod": {Name: "Storage Control Mode", Type: "uint16", Access: "RW", Value: 1, Description: "Battery operation mode"},
		},
	}
}

func newInverter(name string, port int) *Device {
	numMPPTs := 1 + rand.IntN(3)
	dev := &Device{
		UUID:            uuid.NewString(),
		Name:            name,
		Model:           fmt.Sprintf("SIM-INV-%dK", numMPPTs),
		Manufacturer:    "MCPHub Simulator",
		FirmwareVersion: "1.0.0",
		ProtocolVersion: "1.0",
		Type:            "inverter",
		Port:            port,
		Online:          true,
	}
	dev.Contexts = append(dev.Contexts, deviceContext(map[string]*Point{
		"Pac":    {Name: "AC Power", Type: "float", Unit: "W", Access: "R", Value: 0.0, Description: "Total AC power output"},
		"Status": {Name: "Operating Status", Type: "uint16", Access: "R", Value: 1, Description: "Current operating status"},
		"Temp":   {Name: "Temperature", Type: "float", Unit: "°C", Access: "R", Value: 35.0, Description: "Device temperature"},
	}))
	for i := 1; i <= numMPPTs; i++ {
		dev.Contexts = append(dev.Contexts, mpptContext(i))
	}
	numPhases := 1
	if rand.IntN(2) == 1 {
		numPhases = 3
	}
	for i := 1; i <= numPhases; i++ {
		phaseName := "Single"
		if numPhases > 1 {
			phaseName = fmt.Sprintf("Phase %d", i)
		}
		dev.Contexts = append(dev.Contexts, acPhaseContext(i, phaseName))
	}
	dev.Contexts = append(dev.Contexts, inverterControlContext())
	return dev
}

func newBattery(name string, port int) *Device {
	capacities := []int{5, 10, 15}
	capacity := capacities[rand.IntN(len(capacities))]
	dev := &Device{
		UUID:            uuid.NewString(),
		Name:            name,
		Model:           fmt.Sprintf("SIM-BAT-%dkWh", capacity),
		Manufacturer:    "MCPHub Simulator",
		FirmwareVersion: "1.0.0",
		ProtocolVersion: "1.0",
		Type:            "battery",
		Port:            port,
		Online:          true,
	}
	dev.Contexts = append(dev.Contexts, deviceContext(map[string]*Point{
		"Status": {Name: "Operating Status", Type: "uint16", Access: "R", Value: 1, Description: "Current operating status"},
		"Temp":   {Name: "Temperature", Type: "float", Unit: "°C", Access: "R", Value: 28.0, Description: "Device temperature"},
	}))
	dev.Contexts = append(dev.Contexts, storageContext(802))
	dev.Contexts = append(dev.Contexts, batteryControlContext())
	return dev
}

func newHybrid(name string, port int) *Device {
	numMPPTs := 1 + rand.IntN(2)
	capacities := []int{5, 10}
	capacity := capacities[rand.IntN(len(capacities))]
	dev := &Device{
		UUID:            uuid.NewString(),
		Name:            name,
		Model:           fmt.Sprintf("SIM-HYB-%dK-%dkWh", numMPPTs, capacity),
		Manufacturer:    "MCPHub Simulator",
		FirmwareVersion: "1.0.0",
		ProtocolVersion: "1.0",
		Type:            "hybrid",
		Port:            port,
		Online:          true,
	}
	dev.Contexts = append(dev.Contexts, deviceContext(map[string]*Point{
		"Pac":    {Name: "AC Power", Type: "float", Unit: "W", Access: "R", Value: 0.0, Description: "Total AC power output"},
		"Status": {Name: "Operating Status", Type: "uint16", Access: "R", Value: 1, Description: "Current operating status"},
		"Temp":   {Name: "Temperature", Type: "float", Unit: "°C", Access: "R", Value: 38.0, Description: "Device temperature"},
	}))
	for i := 1; i <= numMPPTs; i++ {
		dev.Contexts = append(dev.Contexts, mpptContext(i))
	}
	dev.Contexts = append(dev.Contexts, acPhaseContext(1, "Output"))
	dev.Contexts = append(dev.Contexts, storageContext(802))
	dev.Contexts = append(dev.Contexts, batteryControlContext())
	return dev
}

// newSUN2000 builds the fixed commercial inverter profile the fleet
// always carries: 8 MPPTs, three phases, full control context.
func newSUN2000(port int) *Device {
	dev := &Device{
		UUID:            uuid.NewString(),
		Name:            "Huawei SUN2000",
		Model:           "SUN2000-40KTL-M3",
		Manufacturer:    "Huawei",
		FirmwareVersion: "V100R001D02",
		ProtocolVersion: "1.0",
		SerialNumber:    "ES2340051644",
		Type:            "inverter",
		Port:            port,
		Online:          true,
	}
	dev.Contexts = append(dev.Contexts, deviceContext(map[string]*Point{
		"Pac":    {Name: "AC Power", Type: "float", Unit: "W", Access: "R", Value: 15000 + rand.Float64()*23000, Description: "Total AC power output"},
		"Status": {Name: "Operating Status", Type: "uint16", Access: "R", Value: 1, Description: "Current operating status"},
		"Temp":   {Name: "Temperature", Type: "float", Unit: "°C", Access: "R", Value: 40 + rand.Float64()*15, Description: "Device temperature"},
		"SN":     {Name: "Serial Number", Type: "string", Access: "R", Value: "ES2340051644", Description: "Device serial number"},
	}))
	for i := 1; i <= 8; i++ {
		dev.Contexts = append(dev.Contexts, mpptContext(i))
	}
	for i := 1; i <= 3; i++ {
		ctx := acPhaseContext(i, fmt.Sprintf("Phase %d", i))
		ctx.Points["PF"] = &Point{Name: "Power Factor", Type: "float", Access: "R", Value: 0.97 + rand.Float64()*0.03, Description: "Power factor"}
		dev.Contexts = append(dev.Contexts, ctx)
	}
	control := inverterControlContext()
	control.Points["VarMaxLim"] = &Point{Name: "Reactive Power Limit", Type: "float", Unit: "%", Access: "RW", Value: 50.0, Description: "Maximum reactive power output limit (percentage)"}
	control.Points["VoltVar"] = &Point{Name: "Volt-Var Mode", Type: "uint16", Access: "RW", Value: 0, Description: "Volt-Var mode (0=off, 1=on)"}
	dev.Contexts = append(dev.Contexts, control)
	return dev
}
