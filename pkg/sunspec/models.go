package sunspec

// builtinModels is the static model catalog. A production deployment
// would load the full SunSpec definitions from files; this table carries
// the models the hub's device fleet actually reports.
func builtinModels() map[int]Model {
	return map[int]Model{
		1: {
			ID:          1,
			Name:        "Common",
			Description: "Common Model",
			Points: map[string]PointDef{
				"Mn":  {Name: "Manufacturer", Type: TypeString, Description: "Device manufacturer"},
				"Md":  {Name: "Model", Type: TypeString, Description: "Device model"},
				"SN":  {Name: "SerialNumber", Type: TypeString, Description: "Device serial number"},
				"Ver": {Name: "Version", Type: TypeString, Description: "Device version"},
			},
		},
		101: {
			ID:          101,
			Name:        "Inverter",
			Description: "Single Phase Inverter",
			Points: map[string]PointDef{
				"A":      {Name: "AC Current", Type: TypeFloat, Unit: "A", Access: AccessRead, Description: "AC Total Current"},
				"AphA":   {Name: "Phase A Current", Type: TypeFloat, Unit: "A", Access: AccessRead, Description: "Phase A Current"},
				"PhVphA": {Name: "Phase A Voltage", Type: TypeFloat, Unit: "V", Access: AccessRead, Description: "Phase A Voltage"},
				"W":      {Name: "AC Power", Type: TypeFloat, Unit: "W", Access: AccessRead, Description: "AC Power"},
				"Hz":     {Name: "Frequency", Type: TypeFloat, Unit: "Hz", Access: AccessRead, Description: "AC Frequency"},
				"WH":     {Name: "Energy", Type: TypeFloat, Unit: "Wh", Access: AccessRead, Description: "AC Energy"},
				"St":     {Name: "Operating State", Type: TypeEnum16, Access: AccessRead, Description: "Inverter operating state"},
			},
		},
		123: {
			ID:          123,
			Name:        "Immediate Controls",
			Description: "Immediate Inverter Controls",
			Points: map[string]PointDef{
				"WMaxLim":   {Name: "Active Power Limit", Type: TypeFloat, Unit: "%", Access: AccessReadWrite, Description: "Maximum active power output limit"},
				"VarMaxLim": {Name: "Reactive Power Limit", Type: TypeFloat, Unit: "%", Access: AccessReadWrite, Description: "Maximum reactive power output limit"},
				"Ena":       {Name: "Enable", Type: TypeUint16, Access: AccessReadWrite, Description: "Enable (1) or disable (0) the inverter"},
				"VoltVar":   {Name: "Volt-Var Mode", Type: TypeUint16, Access: AccessReadWrite, Description: "Volt-Var mode (0=off, 1=on)"},
			},
		},
		124: {
			ID:          124,
			Name:        "Storage",
			Description: "Basic Storage Controls",
			Points: map[string]PointDef{
				"ChaState":   {Name: "State of Charge", Type: TypeFloat, Unit: "%", Access: AccessRead, Description: "Battery state of charge"},
				"ChaSt":      {Name: "Battery Status", Type: TypeEnum16, Access: AccessRead, Description: "Battery status"},
				"W":          {Name: "Power", Type: TypeFloat, Unit: "W", Access: AccessRead, Description: "Battery power"},
				"WChaMax":    {Name: "Max Charge Rate", Type: TypeFloat, Unit: "W", Access: AccessReadWrite, Description: "Max charge rate"},
				"WDisChaMax": {Name: "Max Discharge Rate", Type: TypeFloat, Unit: "W", Access: AccessReadWrite, Description: "Max discharge rate"},
			},
		},
		160: {
			ID:          160,
			Name:        "Multiple MPPT Inverter Extension",
			Description: "DER Multiple MPPT Inverter Extension Model",
			Points: map[string]PointDef{
				"ID":     {Name: "ID", Type: TypeUint16, Access: AccessRead, Description: "MPPT ID"},
				"DCA":    {Name: "DC Current", Type: TypeFloat, Unit: "A", Access: AccessRead, Description: "DC Current"},
				"DCV":    {Name: "DC Voltage", Type: TypeFloat, Unit: "V", Access: AccessRead, Description: "DC Voltage"},
				"DCW":    {Name: "DC Power", Type: TypeFloat, Unit: "W", Access: AccessRead, Description: "DC Power"},
				"TmpCab": {Name: "Cabinet Temperature", Type: TypeFloat, Unit: "C", Access: AccessRead, Description: "Cabinet Temperature"},
				"St":     {Name: "Operating State", Type: TypeEnum16, Access: AccessRead, Description: "MPPT operating state"},
			},
		},
		201: {
			ID:          201,
			Name:        "AC Phase",
			Description: "Single Phase AC Measurements",
			Points: map[string]PointDef{
				"Pac":  {Name: "AC Power", Type: TypeFloat, Unit: "W", Access: AccessRead, Description: "AC power output"},
				"Vac":  {Name: "AC Voltage", Type: TypeFloat, Unit: "V", Access: AccessRead, Description: "AC voltage"},
				"Iac":  {Name: "AC Current", Type: TypeFloat, Unit: "A", Access: AccessRead, Description: "AC current"},
				"Freq": {Name: "Frequency", Type: TypeFloat, Unit: "Hz", Access: AccessRead, Description: "Grid frequency"},
				"PF":   {Name: "Power Factor", Type: TypeFloat, Access: AccessRead, Description: "Power factor"},
			},
		},
		802: {
			ID:          802,
			Name:        "Battery",
			Description: "Battery Base Model",
			Points: map[string]PointDef{
				"SoC":      {Name: "State of Charge", Type: TypeFloat, Unit: "%", Access: AccessRead, Description: "Battery state of charge"},
				"W":        {Name: "Power", Type: TypeFloat, Unit: "W", Access: AccessRead, Description: "Battery power (negative = charging)"},
				"V":        {Name: "Voltage", Type: TypeFloat, Unit: "V", Access: AccessRead, Description: "Battery voltage"},
				"ChaState": {Name: "Charging State", Type: TypeEnum16, Access: AccessRead, Description: "Battery charging state"},
				"Health":   {Name: "Battery Health", Type: TypeFloat, Unit: "%", Access: AccessRead, Description: "Battery health percentage"},
			},
		},
	}
}
