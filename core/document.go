package core

type (
	// BoardDocument is the resolution-independent wire and on-disk form of a board.
	// All coordinates are design-space coordinates.
	BoardDocument struct {
		DesignWidth   float64          `json:"designWidth"`
		DesignHeight  float64          `json:"designHeight"`
		BackgroundURL string           `json:"backgroundUrl,omitempty"`
		Objects       []DocumentObject `json:"objects"`
	}

	// DocumentObject is one drawable object of a BoardDocument. Geometry fields
	// beyond X and Y are present only for the types that use them.
	DocumentObject struct {
		UUID      string          `json:"uuid"`
		Type      string          `json:"type"`
		X         float64         `json:"x"`
		Y         float64         `json:"y"`
		Style     DocumentStyle   `json:"style"`
		Radius    float64         `json:"radius,omitempty"`
		Width     float64         `json:"width,omitempty"`
		Height    float64         `json:"height,omitempty"`
		Text      string          `json:"text,omitempty"`
		FontSize  float64         `json:"fontSize,omitempty"`
		Points    []DocumentPoint `json:"points,omitempty"`
		Resizable bool            `json:"resizable,omitempty"`
		Locked    bool            `json:"locked,omitempty"`
	}

	DocumentStyle struct {
		Fill        string  `json:"fill,omitempty"`
		Stroke      string  `json:"stroke,omitempty"`
		StrokeWidth float64 `json:"strokeWidth,omitempty"`
	}

	DocumentPoint struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
)
