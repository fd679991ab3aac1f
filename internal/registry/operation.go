package registry

import "fmt"

// OperationID identifies a logical PQ operation. The first eighteen values
// match the function ids accepted by the command line tool.
type OperationID int

const (
	OpSetPQMode OperationID = iota + 1
	OpEnableBlueLight
	OpSetBlueLightStrength
	OpEnableChameleon
	OpSetChameleonStrength
	OpSetGammaIndex
	OpSetFeatureDisplayColor
	OpSetFeatureContentColor
	OpSetFeatureContentColorVideo
	OpSetFeatureSharpness
	OpSetFeatureDynamicContrast
	OpSetFeatureDynamicSharpness
	OpSetFeatureDisplayCCorr
	OpSetFeatureDisplayGamma
	OpSetFeatureDisplayOverDrive
	OpSetFeatureISOAdaptiveSharpness
	OpSetFeatureUltraResolution
	OpSetFeatureVideoHDR
	OpSetGlobalPQSwitch
	OpSetGlobalPQStrength
	OpSetColorRegion
	OpSetTuningField
	OpGetTuningField
	OpSetAmbientLightCT
	OpSetAmbientLightRGBW
	OpGetFeatureSwitch
	OpGetBlueLightEnabled
	OpGetBlueLightStrength
	OpGetChameleonEnabled
	OpGetChameleonStrength
	OpGetGlobalPQSwitch
	OpGetGlobalPQStrength

	// OperationMax is one past the last defined operation.
	OperationMax
)

func (id OperationID) Valid() bool {
	return id >= 1 && id < OperationMax
}

func (id OperationID) String() string {
	return fmt.Sprintf("op(%d)", int(id))
}

// FeatureID selects one display feature on the shared feature-switch
// procedure.
type FeatureID int32

const (
	FeatureDisplayColor FeatureID = iota
	FeatureContentColor
	FeatureContentColorVideo
	FeatureSharpness
	FeatureDynamicContrast
	FeatureDynamicSharpness
	FeatureDisplayCCorr
	FeatureDisplayGamma
	FeatureDisplayOverDrive
	FeatureISOAdaptiveSharpness
	FeatureUltraResolution
	FeatureVideoHDR
	FeatureMax
)

// Revision selects one coherent transaction-code table of the vendor
// interface. Tables from different revisions are never mixed.
type Revision int

const (
	// RevisionLegacy is the fire-and-forget HIDL vintage: eighteen setters,
	// replies carry the status word only.
	RevisionLegacy Revision = iota + 1
	// RevisionChecked decodes status and retval on every call and adds the
	// global PQ controls, tuning fields, ambient light inputs and getters.
	RevisionChecked
)

func (r Revision) String() string {
	switch r {
	case RevisionLegacy:
		return "legacy"
	case RevisionChecked:
		return "checked"
	default:
		return fmt.Sprintf("revision(%d)", int(r))
	}
}

// ParseRevision accepts "legacy" (or "hidl") and "checked".
func ParseRevision(s string) (Revision, error) {
	switch s {
	case "legacy", "hidl":
		return RevisionLegacy, nil
	case "checked":
		return RevisionChecked, nil
	default:
		return 0, fmt.Errorf("unknown protocol revision %q (want legacy or checked)", s)
	}
}
