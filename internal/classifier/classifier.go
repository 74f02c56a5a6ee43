// Package classifier maps the hands seen in one frame to a letter by matching
// them against trained templates.
package classifier

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ayusman/mudra/internal/landmarks"
	"github.com/ayusman/mudra/internal/spelling"
	"github.com/ayusman/mudra/internal/store"
)

// Prediction is the classifier output for one frame. An empty Label means no
// template matched.
type Prediction struct {
	Label      spelling.Symbol
	Confidence float64
}

// Template is a trained letter pose.
type Template struct {
	ID        string
	Symbol    spelling.Symbol
	Hands     int                 // Number of hands the pose is made with
	Landmarks []landmarks.Point3D // Normalized features, see landmarks.Features
	Tolerance float64             // Maximum mean per-point distance for a match
}

// Match is a template that scored within tolerance.
type Match struct {
	Template *Template
	Score    float64 // 1 / (1 + Distance)
	Distance float64 // Mean per-point distance
}

// TemplateClassifier matches hand poses against registered letter templates.
// It is safe for concurrent use.
type TemplateClassifier struct {
	mu        sync.RWMutex
	templates []*Template
	required  int
}

// NewTemplateClassifier creates an empty classifier. Frames with fewer than
// requiredHands hands never produce a prediction.
func NewTemplateClassifier(requiredHands int) *TemplateClassifier {
	return &TemplateClassifier{required: requiredHands}
}

// Add registers a template, replacing any template with the same ID.
func (c *TemplateClassifier) Add(t *Template) {
	if t == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.templates {
		if existing.ID == t.ID {
			c.templates[i] = t
			return
		}
	}
	c.templates = append(c.templates, t)
}

// Remove removes a template by its ID.
func (c *TemplateClassifier) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.templates {
		if t.ID == id {
			c.templates = append(c.templates[:i], c.templates[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered templates.
func (c *TemplateClassifier) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.templates)
}

// Match returns every template within tolerance of hands, best first. Only
// templates made with the same number of hands are considered.
func (c *TemplateClassifier) Match(hands []landmarks.Hand) []Match {
	if len(hands) == 0 {
		return nil
	}
	input := landmarks.Features(hands)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var matches []Match
	for _, t := range c.templates {
		if t.Hands != len(hands) || len(t.Landmarks) != len(input) {
			continue
		}
		distance := meanDistance(input, t.Landmarks)
		if distance > t.Tolerance {
			continue
		}
		matches = append(matches, Match{
			Template: t,
			Score:    1.0 / (1.0 + distance),
			Distance: distance,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// Classify returns the best matching letter for hands. It returns an empty
// prediction when fewer hands than required are visible or nothing matches.
func (c *TemplateClassifier) Classify(ctx context.Context, hands []landmarks.Hand) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	if len(hands) < c.required {
		return Prediction{}, nil
	}

	matches := c.Match(hands)
	if len(matches) == 0 {
		return Prediction{}, nil
	}
	return Prediction{Label: matches[0].Template.Symbol, Confidence: matches[0].Score}, nil
}

// TemplateStore is the subset of the letter repository the classifier loads from.
type TemplateStore interface {
	List() ([]*store.Letter, error)
	GetLandmarks(letterID string) ([]landmarks.Point3D, error)
}

// Load builds a classifier from stored letters. Letters that have not been
// trained yet are skipped.
func Load(ctx context.Context, letters TemplateStore, requiredHands int) (*TemplateClassifier, error) {
	list, err := letters.List()
	if err != nil {
		return nil, fmt.Errorf("list letters: %w", err)
	}

	c := NewTemplateClassifier(requiredHands)
	for _, l := range list {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		points, err := letters.GetLandmarks(l.ID)
		if err != nil {
			return nil, fmt.Errorf("load landmarks for %s: %w", l.Symbol, err)
		}
		if len(points) == 0 {
			continue
		}
		c.Add(&Template{
			ID:        l.ID,
			Symbol:    spelling.ParseSymbol(l.Symbol),
			Hands:     l.Hands,
			Landmarks: points,
			Tolerance: l.Tolerance,
		})
	}
	return c, nil
}

// meanDistance is the average Euclidean distance between corresponding points.
func meanDistance(a, b []landmarks.Point3D) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}

	var total float64
	for i := 0; i < n; i++ {
		total += landmarks.Distance(a[i], b[i])
	}
	return total / float64(n)
}
