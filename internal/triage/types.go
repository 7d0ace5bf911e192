package triage

// ScanType is the imaging modality of a scan.
type ScanType string

const (
	ScanCT      ScanType = "ct"
	ScanXRay    ScanType = "xray"
	ScanUnknown ScanType = "unknown"
)

// ModelID names a model held by the Registry.
type ModelID string

const (
	ScanTypeClassifier ModelID = "ct_vs_xray_classifier"
	CTEfficientNetV2S  ModelID = "ct_efficientnetv2s"
	CTResNet50         ModelID = "ct_resnet50"
	XRayMobileNetV2    ModelID = "xray_mobilenetv2"
	XRayVGG16          ModelID = "xray_vgg16"
)

// Requested model values with special meaning.
const (
	RequestAuto    = "auto"
	RequestDefault = "default"
	// RequestCTEfficientNetB0 is a legacy name that resolves to CTEfficientNetV2S.
	RequestCTEfficientNetB0 = "ct_efficientnetb0"
)

// ModelUsedError is reported as model_used when no model produced the result.
const ModelUsedError = "error"

const (
	LabelPneumonia = "pneumonia"
	LabelNormal    = "normal"
	LabelUnknown   = "unknown"
)

// CTClasses is the output order of the multiclass CT models.
var CTClasses = []string{
	"Adenocarcinoma",
	"Large Cell Carcinoma",
	"Squamous Cell Carcinoma",
	"normal",
}

// AllModels lists every model the Registry must provide.
func AllModels() []ModelID {
	return []ModelID{ScanTypeClassifier, CTEfficientNetV2S, CTResNet50, XRayMobileNetV2, XRayVGG16}
}

// ModelsFor returns the disease models of a modality in evaluation order.
func ModelsFor(scan ScanType) []ModelID {
	switch scan {
	case ScanCT:
		return []ModelID{CTEfficientNetV2S, CTResNet50}
	case ScanXRay:
		return []ModelID{XRayMobileNetV2, XRayVGG16}
	}
	return nil
}

// Modality is the scan type a disease model is trained for.
func (m ModelID) Modality() ScanType {
	switch m {
	case CTEfficientNetV2S, CTResNet50:
		return ScanCT
	case XRayMobileNetV2, XRayVGG16:
		return ScanXRay
	}
	return ScanUnknown
}

// ResultKey is the key a model's record is stored under in a PredictionSet.
func (m ModelID) ResultKey() string {
	switch m {
	case CTEfficientNetV2S:
		return "efficientnet"
	case CTResNet50:
		return "resnet50"
	case XRayMobileNetV2:
		return "mobilenet"
	case XRayVGG16:
		return "vgg16"
	}
	return string(m)
}

// FeatureLayer is the layer whose activations explain the model's output.
func (m ModelID) FeatureLayer() string {
	switch m {
	case CTEfficientNetV2S:
		return "top_conv"
	case CTResNet50:
		return "conv5_block3_out"
	case XRayMobileNetV2:
		return "block_16_project_BN"
	case XRayVGG16:
		return "block5_conv3"
	}
	return ""
}

// PredictionRecord holds one model's label and the probability of that label.
type PredictionRecord struct {
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
}

// PredictionSet maps ModelID.ResultKey to the model's record.
type PredictionSet map[string]PredictionRecord

type SelectionResult struct {
	Model  ModelID
	Record PredictionRecord
}

// ProcessResult is returned for every request, including failed ones.
type ProcessResult struct {
	ScanType       ScanType      `json:"scan_type"`
	Disease        string        `json:"disease"`
	Confidence     float64       `json:"confidence"`
	ModelUsed      string        `json:"model_used"`
	AllPredictions PredictionSet `json:"all_predictions"`
	Visualization  *string       `json:"visualization"`
}

// Degraded returns the sentinel result for a request that could not be
// classified.
func Degraded(scan ScanType) ProcessResult {
	return ProcessResult{
		ScanType:       scan,
		Disease:        LabelUnknown,
		Confidence:     0,
		ModelUsed:      ModelUsedError,
		AllPredictions: PredictionSet{},
	}
}

// Failed reports whether r carries the degraded sentinel values.
func (r ProcessResult) Failed() bool {
	return r.ModelUsed == ModelUsedError
}
