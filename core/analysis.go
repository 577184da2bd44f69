package core

import "strings"

// Canonical analysis shapes. The backend answers in several looser forms;
// services.Normalize folds them all into these before anything else sees
// them.

// DefaultPartLabel and DefaultDiseaseLabel fill fields the backend omitted.
const (
	DefaultPartLabel    = "Unknown"
	DefaultDiseaseLabel = "No disease detected"
)

// Detection is a label with the model's confidence in [0,1].
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// DiseaseDetection adds the runner-up predictions when the backend sends
// them.
type DiseaseDetection struct {
	Detection
	Alternatives []Detection `json:"alternatives,omitempty"`
}

// Box is one detected lesion region on the source image.
type Box struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
}

// SpotDetection summarizes lesion localization.
type SpotDetection struct {
	Count          int    `json:"count"`
	Boxes          []Box  `json:"boxes,omitempty"`
	AnnotatedImage string `json:"annotated_image,omitempty"` // base64, backend-rendered
}

// Recommendations is the advisory block attached to a diagnosis.
type Recommendations struct {
	Severity    string   `json:"severity,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Note        string   `json:"note,omitempty"`
}

// Rejection is set when the backend refused to diagnose the image at all
// (e.g. not a plant of the supported crop).
type Rejection struct {
	Reason           string             `json:"reason"`
	ValidationScores map[string]float64 `json:"validation_scores,omitempty"`
}

// AnalysisResult is the one shape callers ever receive.
type AnalysisResult struct {
	Part            Detection        `json:"part"`
	Disease         DiseaseDetection `json:"disease"`
	Spots           *SpotDetection   `json:"spots,omitempty"`
	Recommendations *Recommendations `json:"recommendations,omitempty"`
	Rejection       *Rejection       `json:"rejection,omitempty"`
}

// Healthy reports whether the diagnosis found nothing wrong.
func (r *AnalysisResult) Healthy() bool {
	label := strings.ToLower(r.Disease.Label)
	return label == strings.ToLower(DefaultDiseaseLabel) || strings.Contains(label, "healthy")
}

// Severity bands the diagnosis for display: healthy, high (>80%),
// medium (>60%), low.
func (r *AnalysisResult) Severity() string {
	if r.Healthy() {
		return "healthy"
	}
	switch {
	case r.Disease.Confidence > 0.8:
		return "high"
	case r.Disease.Confidence > 0.6:
		return "medium"
	default:
		return "low"
	}
}
