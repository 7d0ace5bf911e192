package triage

// Select picks the model whose record is reported for the request.
//
// CT: "ct_resnet50" selects ResNet50; anything else, including the legacy
// "ct_efficientnetb0", selects EfficientNetV2S.
// X-ray: "xray_vgg16" and "xray_mobilenetv2" select that model; anything
// else selects the higher confidence, MobileNetV2 winning ties.
//
// If the preferred model is missing from a partial set, the remaining model
// of the modality is used. ok is false only when set holds no record for
// the modality.
func Select(scan ScanType, set PredictionSet, requested string) (SelectionResult, bool) {
	var preferred ModelID
	switch scan {
	case ScanCT:
		preferred = CTEfficientNetV2S
		if requested == string(CTResNet50) {
			preferred = CTResNet50
		}
	case ScanXRay:
		switch requested {
		case string(XRayVGG16):
			preferred = XRayVGG16
		case string(XRayMobileNetV2):
			preferred = XRayMobileNetV2
		default:
			return mostConfident(scan, set)
		}
	default:
		return SelectionResult{}, false
	}

	if rec, ok := set[preferred.ResultKey()]; ok {
		return SelectionResult{Model: preferred, Record: rec}, true
	}
	return mostConfident(scan, set)
}

// mostConfident scans the modality's models in order and keeps the first
// strictly greater confidence.
func mostConfident(scan ScanType, set PredictionSet) (SelectionResult, bool) {
	var best SelectionResult
	found := false
	for _, id := range ModelsFor(scan) {
		rec, ok := set[id.ResultKey()]
		if !ok {
			continue
		}
		if !found || rec.Confidence > best.Record.Confidence {
			best = SelectionResult{Model: id, Record: rec}
			found = true
		}
	}
	return best, found
}
