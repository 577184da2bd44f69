package services

import (
	"encoding/json"

	"github.com/leafwise/leafwise-go/core"
)

// Response normalization. The backend answers in at least four shapes:
// a bare analysis object, {"results": [...]}, {"analysis": {...}}, and a
// bare array; array elements may themselves nest under "analysis". All of
// them fold into core.AnalysisResult here, with every missing field
// degraded to a documented default, so callers never see a raw shape.

// Wire shapes, tagged per observed variant.

type wirePart struct {
	Part       string  `json:"part"`
	Confidence float64 `json:"confidence"`
}

type wireDiseaseAlt struct {
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
}

type wireDisease struct {
	Disease    string           `json:"disease"`
	Confidence float64          `json:"confidence"`
	Top3       []wireDiseaseAlt `json:"top_3"`
}

type wireBox struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
}

type wireSpots struct {
	TotalSpots     *int      `json:"total_spots"`
	BoundingBoxes  []wireBox `json:"bounding_boxes"`
	AnnotatedImage string    `json:"annotated_image"`
}

type wireRecommendations struct {
	Severity    string   `json:"severity"`
	Suggestions []string `json:"suggestions"`
	Note        string   `json:"note"`
}

type wireAnalysis struct {
	// Nested variant: the payload sits one level down.
	Analysis *wireAnalysis `json:"analysis"`

	IsPlant          *bool                `json:"is_plant"`
	RejectionReason  string               `json:"rejection_reason"`
	ValidationScores map[string]float64   `json:"validation_scores"`
	PartDetection    *wirePart            `json:"part_detection"`
	DiseaseDetection *wireDisease         `json:"disease_detection"`
	SpotDetection    *wireSpots           `json:"spot_detection"`
	Recommendations  *wireRecommendations `json:"recommendations"`
}

type wireEnvelope struct {
	Results  []json.RawMessage `json:"results"`
	Analysis json.RawMessage   `json:"analysis"`
}

// Normalize folds any observed single-result response shape into the
// canonical result. Equivalent payloads normalize identically regardless
// of which envelope they arrived in.
func Normalize(raw json.RawMessage) (*core.AnalysisResult, error) {
	results, err := NormalizeBatch(raw)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, core.NewFailure(core.KindMalformedResponse, "response contains no analysis", 0, nil)
	}
	return &results[0], nil
}

// NormalizeBatch folds any observed response shape into an ordered list of
// canonical results.
func NormalizeBatch(raw json.RawMessage) ([]core.AnalysisResult, error) {
	elements, err := unwrap(raw)
	if err != nil {
		return nil, err
	}

	results := make([]core.AnalysisResult, 0, len(elements))
	for _, element := range elements {
		var decoded wireAnalysis
		if err := json.Unmarshal(element, &decoded); err != nil {
			return nil, core.NewFailure(core.KindMalformedResponse, "analysis element is not an object", 0, err)
		}
		results = append(results, canonical(&decoded))
	}
	return results, nil
}

// unwrap strips the envelope: bare array, {"results": [...]},
// {"analysis": {...}}, or a bare object.
func unwrap(raw json.RawMessage) ([]json.RawMessage, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err == nil {
		return elements, nil
	}

	var envelope wireEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, core.NewFailure(core.KindMalformedResponse, "response is neither an object nor an array", 0, err)
	}
	if envelope.Results != nil {
		return envelope.Results, nil
	}
	if len(envelope.Analysis) > 0 {
		return []json.RawMessage{envelope.Analysis}, nil
	}
	return []json.RawMessage{raw}, nil
}

// canonical maps one wire analysis onto the canonical shape, applying the
// documented defaults for everything the backend left out.
func canonical(w *wireAnalysis) core.AnalysisResult {
	// Nested form: prefer the inner payload but keep outer rejection
	// fields when the inner one lacks them.
	if w.Analysis != nil {
		inner := *w.Analysis
		if inner.IsPlant == nil {
			inner.IsPlant = w.IsPlant
		}
		if inner.RejectionReason == "" {
			inner.RejectionReason = w.RejectionReason
		}
		if inner.ValidationScores == nil {
			inner.ValidationScores = w.ValidationScores
		}
		if inner.Recommendations == nil {
			inner.Recommendations = w.Recommendations
		}
		w = &inner
	}

	result := core.AnalysisResult{
		Part:    core.Detection{Label: core.DefaultPartLabel},
		Disease: core.DiseaseDetection{Detection: core.Detection{Label: core.DefaultDiseaseLabel}},
	}

	if w.IsPlant != nil && !*w.IsPlant {
		reason := w.RejectionReason
		if reason == "" {
			reason = "This does not appear to be a supported plant."
		}
		result.Rejection = &core.Rejection{
			Reason:           reason,
			ValidationScores: w.ValidationScores,
		}
	}

	if p := w.PartDetection; p != nil {
		if p.Part != "" {
			result.Part.Label = p.Part
		}
		result.Part.Confidence = p.Confidence
	}

	if d := w.DiseaseDetection; d != nil {
		if d.Disease != "" {
			result.Disease.Label = d.Disease
		}
		result.Disease.Confidence = d.Confidence
		for _, alt := range d.Top3 {
			// The winning prediction leads top_3; only the runners-up are
			// alternatives.
			if alt.Disease == d.Disease {
				continue
			}
			result.Disease.Alternatives = append(result.Disease.Alternatives, core.Detection{
				Label:      alt.Disease,
				Confidence: alt.Confidence,
			})
		}
	}

	if s := w.SpotDetection; s != nil {
		spots := &core.SpotDetection{AnnotatedImage: s.AnnotatedImage}
		for _, b := range s.BoundingBoxes {
			spots.Boxes = append(spots.Boxes, core.Box(b))
		}
		if s.TotalSpots != nil {
			spots.Count = *s.TotalSpots
		} else {
			spots.Count = len(spots.Boxes)
		}
		result.Spots = spots
	}

	if r := w.Recommendations; r != nil {
		result.Recommendations = &core.Recommendations{
			Severity:    r.Severity,
			Suggestions: r.Suggestions,
			Note:        r.Note,
		}
	}

	return result
}
