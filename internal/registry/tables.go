package registry

import "github.com/mattjoyce/pqd/internal/wire"

// DefaultStep is the transition step the HAL applies to mode and strength
// changes.
const DefaultStep = 5

// Transaction codes of vendor.mediatek.hardware.pq@2.0::IPictureQuality.
const (
	codeSetColorRegion       uint32 = 1
	codeSetPQMode            uint32 = 3
	codeSetFeatureSwitch     uint32 = 12
	codeGetFeatureSwitch     uint32 = 13
	codeEnableBlueLight      uint32 = 14
	codeGetBlueLightEnabled  uint32 = 15
	codeSetBlueLightStrength uint32 = 16
	codeGetBlueLightStrength uint32 = 17
	codeEnableChameleon      uint32 = 18
	codeGetChameleonEnabled  uint32 = 19
	codeSetChameleonStrength uint32 = 20
	codeGetChameleonStrength uint32 = 21
	codeSetTuningField       uint32 = 22
	codeGetTuningField       uint32 = 23
	codeSetAmbientLightCT    uint32 = 25
	codeSetAmbientLightRGBW  uint32 = 26
	codeSetGammaIndex        uint32 = 27
	codeSetGlobalPQSwitch    uint32 = 34
	codeGetGlobalPQSwitch    uint32 = 35
	codeSetGlobalPQStrength  uint32 = 36
	codeGetGlobalPQStrength  uint32 = 37
)

type feature struct {
	id   OperationID
	name string
	key  string
	fid  FeatureID
}

var features = []feature{
	{OpSetFeatureDisplayColor, "setFeatureDisplayColor", "display-color", FeatureDisplayColor},
	{OpSetFeatureContentColor, "setFeatureContentColor", "content-color", FeatureContentColor},
	{OpSetFeatureContentColorVideo, "setFeatureContentColorVideo", "content-color-video", FeatureContentColorVideo},
	{OpSetFeatureSharpness, "setFeatureSharpness", "sharpness", FeatureSharpness},
	{OpSetFeatureDynamicContrast, "setFeatureDynamicContrast", "dynamic-contrast", FeatureDynamicContrast},
	{OpSetFeatureDynamicSharpness, "setFeatureDynamicSharpness", "dynamic-sharpness", FeatureDynamicSharpness},
	{OpSetFeatureDisplayCCorr, "setFeatureDisplayCCorr", "display-ccorr", FeatureDisplayCCorr},
	{OpSetFeatureDisplayGamma, "setFeatureDisplayGamma", "display-gamma", FeatureDisplayGamma},
	{OpSetFeatureDisplayOverDrive, "setFeatureDisplayOverDrive", "display-over-drive", FeatureDisplayOverDrive},
	{OpSetFeatureISOAdaptiveSharpness, "setFeatureISOAdaptiveSharpness", "iso-adaptive-sharpness", FeatureISOAdaptiveSharpness},
	{OpSetFeatureUltraResolution, "setFeatureUltraResolution", "ultra-resolution", FeatureUltraResolution},
	{OpSetFeatureVideoHDR, "setFeatureVideoHDR", "video-hdr", FeatureVideoHDR},
}

func constant(name string, v wire.Value) Arg {
	return Arg{Name: name, Type: v.Type, Const: &v}
}

func step() Arg { return constant("step", wire.Int32(DefaultStep)) }

func in(name string, t wire.Type) Arg { return Arg{Name: name, Type: t} }

var (
	statusOnly   = wire.ReplySpec{}
	checked      = wire.ReplySpec{Retval: true}
	checkedInt   = wire.ReplySpec{Retval: true, Value: wire.TypeInt32}
	checkedBool  = wire.ReplySpec{Retval: true, Value: wire.TypeBool}
	toggleUsage  = "0: disable, 1: enable"
	levelUsage   = "0-1000"
	featureUsage = "<mode>"
)

// legacyTable mirrors the fire-and-forget HIDL vintage. setGammaIndex sends
// its argument in a boolean lane in this vintage.
func legacyTable() []*Procedure {
	procs := []*Procedure{
		{ID: OpSetPQMode, Name: "setPQMode", Method: "setPQMode", Code: codeSetPQMode, Key: "pq-mode",
			Args: []Arg{in("mode", wire.TypeInt32), step()}, Reply: statusOnly, Usage: "0: standard mode, 1: vivid mode"},
		{ID: OpEnableBlueLight, Name: "enableBlueLight", Method: "enableBlueLight", Code: codeEnableBlueLight, Key: "blue-light",
			Args: []Arg{in("enable", wire.TypeBool), step()}, Reply: statusOnly, Usage: toggleUsage},
		{ID: OpSetBlueLightStrength, Name: "setBlueLightStrength", Method: "setBlueLightStrength", Code: codeSetBlueLightStrength, Key: "blue-light-strength",
			Args: []Arg{in("strength", wire.TypeInt32), step()}, Reply: statusOnly, Usage: levelUsage},
		{ID: OpEnableChameleon, Name: "enableChameleon", Method: "enableChameleon", Code: codeEnableChameleon, Key: "chameleon",
			Args: []Arg{in("enable", wire.TypeBool), step()}, Reply: statusOnly, Usage: toggleUsage},
		{ID: OpSetChameleonStrength, Name: "setChameleonStrength", Method: "setChameleonStrength", Code: codeSetChameleonStrength, Key: "chameleon-strength",
			Args: []Arg{in("strength", wire.TypeInt32), step()}, Reply: statusOnly, Usage: levelUsage},
		{ID: OpSetGammaIndex, Name: "setGammaIndex", Method: "setGammaIndex", Code: codeSetGammaIndex, Key: "gamma-index",
			Args: []Arg{in("index", wire.TypeBool), step()}, Reply: statusOnly, Usage: levelUsage},
	}
	return append(procs, featureSwitches(statusOnly)...)
}

func checkedTable() []*Procedure {
	procs := []*Procedure{
		{ID: OpSetPQMode, Name: "setPQMode", Method: "setPQMode", Code: codeSetPQMode, Key: "pq-mode",
			Args: []Arg{in("mode", wire.TypeInt32), step()}, Reply: checked, Usage: "0: standard mode, 1: vivid mode"},
		{ID: OpEnableBlueLight, Name: "enableBlueLight", Method: "enableBlueLight", Code: codeEnableBlueLight, Key: "blue-light",
			Args: []Arg{in("enable", wire.TypeBool), step()}, Reply: checked, Usage: toggleUsage},
		{ID: OpSetBlueLightStrength, Name: "setBlueLightStrength", Method: "setBlueLightStrength", Code: codeSetBlueLightStrength, Key: "blue-light-strength",
			Args: []Arg{in("strength", wire.TypeInt32), step()}, Reply: checked, Usage: levelUsage},
		{ID: OpEnableChameleon, Name: "enableChameleon", Method: "enableChameleon", Code: codeEnableChameleon, Key: "chameleon",
			Args: []Arg{in("enable", wire.TypeBool), step()}, Reply: checked, Usage: toggleUsage},
		{ID: OpSetChameleonStrength, Name: "setChameleonStrength", Method: "setChameleonStrength", Code: codeSetChameleonStrength, Key: "chameleon-strength",
			Args: []Arg{in("strength", wire.TypeInt32), step()}, Reply: checked, Usage: levelUsage},
		{ID: OpSetGammaIndex, Name: "setGammaIndex", Method: "setGammaIndex", Code: codeSetGammaIndex, Key: "gamma-index",
			Args: []Arg{in("index", wire.TypeInt32), step()}, Reply: checked, Usage: levelUsage},
	}
	procs = append(procs, featureSwitches(checked)...)
	procs = append(procs,
		&Procedure{ID: OpSetGlobalPQSwitch, Name: "setGlobalPQSwitch", Method: "setGlobalPQSwitch", Code: codeSetGlobalPQSwitch, Key: "global-pq-switch",
			Args: []Arg{in("switch", wire.TypeInt32)}, Reply: checked, Usage: toggleUsage},
		&Procedure{ID: OpSetGlobalPQStrength, Name: "setGlobalPQStrength", Method: "setGlobalPQStrength", Code: codeSetGlobalPQStrength, Key: "global-pq-strength",
			Args: []Arg{in("strength", wire.TypeInt32)}, Reply: checked, Usage: "packed strength word"},
		&Procedure{ID: OpSetColorRegion, Name: "setColorRegion", Method: "setColorRegion", Code: codeSetColorRegion,
			Args: []Arg{in("split_en", wire.TypeInt32), in("start_x", wire.TypeInt32), in("start_y", wire.TypeInt32), in("end_x", wire.TypeInt32), in("end_y", wire.TypeInt32)},
			Reply: checked, Usage: "<split_en> <start_x> <start_y> <end_x> <end_y>"},
		&Procedure{ID: OpSetTuningField, Name: "setTuningField", Method: "setTuningField", Code: codeSetTuningField,
			Args: []Arg{in("pq_module", wire.TypeInt32), in("field", wire.TypeInt32), in("value", wire.TypeInt32)},
			Reply: checked, Usage: "<module> <field> <value>"},
		&Procedure{ID: OpGetTuningField, Name: "getTuningField", Method: "getTuningField", Code: codeGetTuningField,
			Args: []Arg{in("pq_module", wire.TypeInt32), in("field", wire.TypeInt32)},
			Reply: checkedInt, Usage: "<module> <field>"},
		&Procedure{ID: OpSetAmbientLightCT, Name: "setAmbientLightCT", Method: "setAmbientLightCT", Code: codeSetAmbientLightCT,
			Args: []Arg{in("input_x", wire.TypeDouble), in("input_y", wire.TypeDouble), in("input_Y", wire.TypeDouble)},
			Reply: checked, Usage: "<x> <y> <Y> (CIE 1931)"},
		&Procedure{ID: OpSetAmbientLightRGBW, Name: "setAmbientLightRGBW", Method: "setAmbientLightRGBW", Code: codeSetAmbientLightRGBW,
			Args: []Arg{in("r", wire.TypeInt32), in("g", wire.TypeInt32), in("b", wire.TypeInt32), in("w", wire.TypeInt32)},
			Reply: checked, Usage: "<r> <g> <b> <w>"},
		&Procedure{ID: OpGetFeatureSwitch, Name: "getFeatureSwitch", Method: "getFeatureSwitch", Code: codeGetFeatureSwitch,
			Args: []Arg{in("feature", wire.TypeInt32)}, Reply: checkedInt, Usage: "<feature id 0-11>"},
		&Procedure{ID: OpGetBlueLightEnabled, Name: "getBlueLightEnabled", Method: "getBlueLightEnabled", Code: codeGetBlueLightEnabled,
			Reply: checkedBool},
		&Procedure{ID: OpGetBlueLightStrength, Name: "getBlueLightStrength", Method: "getBlueLightStrength", Code: codeGetBlueLightStrength,
			Reply: checkedInt},
		&Procedure{ID: OpGetChameleonEnabled, Name: "getChameleonEnabled", Method: "getChameleonEnabled", Code: codeGetChameleonEnabled,
			Reply: checkedBool},
		&Procedure{ID: OpGetChameleonStrength, Name: "getChameleonStrength", Method: "getChameleonStrength", Code: codeGetChameleonStrength,
			Reply: checkedInt},
		&Procedure{ID: OpGetGlobalPQSwitch, Name: "getGlobalPQSwitch", Method: "getGlobalPQSwitch", Code: codeGetGlobalPQSwitch,
			Reply: checkedInt},
		&Procedure{ID: OpGetGlobalPQStrength, Name: "getGlobalPQStrength", Method: "getGlobalPQStrength", Code: codeGetGlobalPQStrength,
			Reply: checkedInt},
	)
	return procs
}

func featureSwitches(reply wire.ReplySpec) []*Procedure {
	out := make([]*Procedure, 0, len(features))
	for _, f := range features {
		out = append(out, &Procedure{
			ID:     f.id,
			Name:   f.name,
			Method: "setFeatureSwitch",
			Code:   codeSetFeatureSwitch,
			Key:    f.key,
			Args:   []Arg{constant("feature", wire.Int32(int32(f.fid))), in("value", wire.TypeInt32)},
			Reply:  reply,
			Usage:  featureUsage,
		})
	}
	return out
}
