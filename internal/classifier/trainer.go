package classifier

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ayusman/mudra/internal/landmarks"
)

// ErrNoSamples is returned when training is attempted without samples.
var ErrNoSamples = errors.New("no samples provided")

// Sample is one recorded frame of a letter pose as sent by the training UI.
type Sample struct {
	Hands     []landmarks.Hand `json:"hands"`
	Timestamp int64            `json:"timestamp"`
}

// Trainer processes recorded samples into letter templates.
type Trainer struct{}

// NewTrainer creates a new Trainer instance.
func NewTrainer() *Trainer {
	return &Trainer{}
}

// Train averages the normalized features of every sample. All samples must
// show the same number of hands. It returns the averaged features and the
// hand count.
func (t *Trainer) Train(samples []json.RawMessage) ([]landmarks.Point3D, int, error) {
	if len(samples) == 0 {
		return nil, 0, ErrNoSamples
	}

	var features [][]landmarks.Point3D
	hands := 0
	for i, raw := range samples {
		var sample Sample
		if err := json.Unmarshal(raw, &sample); err != nil {
			return nil, 0, fmt.Errorf("failed to parse sample %d: %w", i, err)
		}
		if len(sample.Hands) == 0 {
			return nil, 0, fmt.Errorf("sample %d has no hands", i)
		}
		if i == 0 {
			hands = len(sample.Hands)
		} else if len(sample.Hands) != hands {
			return nil, 0, fmt.Errorf("sample %d has %d hands, expected %d", i, len(sample.Hands), hands)
		}
		features = append(features, landmarks.Features(sample.Hands))
	}

	return average(features), hands, nil
}

func average(sets [][]landmarks.Point3D) []landmarks.Point3D {
	numPoints := len(sets[0])
	averaged := make([]landmarks.Point3D, numPoints)
	n := float64(len(sets))

	for i := 0; i < numPoints; i++ {
		var sumX, sumY, sumZ float64
		for _, points := range sets {
			sumX += points[i].X
			sumY += points[i].Y
			sumZ += points[i].Z
		}
		averaged[i] = landmarks.Point3D{X: sumX / n, Y: sumY / n, Z: sumZ / n}
	}
	return averaged
}
