// Package scanner turns camera frames and still images into equipment
// detections.
package scanner

import (
	"context"

	"github.com/fieldscan/fieldscan/internal/classifier"
	"github.com/fieldscan/fieldscan/internal/equipment"
	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/logger"
)

// DefaultThreshold is the minimum recognizer confidence a candidate needs
const DefaultThreshold = 0.5

// TextCandidate is one string read from an image
type TextCandidate struct {
	Text       string
	Confidence float64
	Region     *equipment.BoundingBox
}

// TextRecognizer reads text from an encoded image
type TextRecognizer interface {
	RecognizeText(ctx context.Context, image []byte) ([]TextCandidate, error)
}

// Prediction is one image classification label
type Prediction struct {
	Label      string
	Confidence float64
}

// ImageClassifier labels an encoded image
type ImageClassifier interface {
	ClassifyImage(ctx context.Context, image []byte) ([]Prediction, error)
}

// FrameRecorder counts frame handling outcomes
type FrameRecorder interface {
	RecordFrame(result string)
}

// Pipeline runs the recognizers and classifies their output
type Pipeline struct {
	classifier *classifier.Classifier
	text       TextRecognizer
	vision     ImageClassifier
	threshold  float64
	log        logger.Logger
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithImageClassifier adds an image classification pass
func WithImageClassifier(ic ImageClassifier) Option {
	return func(p *Pipeline) { p.vision = ic }
}

// WithThreshold sets the acceptance threshold
func WithThreshold(t float64) Option {
	return func(p *Pipeline) { p.threshold = t }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// NewPipeline returns a pipeline. text may be nil when only image
// classification is available.
func NewPipeline(c *classifier.Classifier, text TextRecognizer, opts ...Option) *Pipeline {
	p := &Pipeline{classifier: c, text: text, threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Global().Module("scanner")
	}
	return p
}

// Threshold returns the acceptance threshold
func (p *Pipeline) Threshold() float64 {
	return p.threshold
}

// ClassifyCandidates classifies the candidates at or above the threshold
func (p *Pipeline) ClassifyCandidates(candidates []TextCandidate) []equipment.Match {
	var out []equipment.Match
	for _, c := range candidates {
		if c.Confidence < p.threshold {
			continue
		}
		m, ok := p.classifier.Classify(c.Text)
		if !ok || m.Confidence < p.threshold {
			continue
		}
		if c.Region != nil && c.Region.Valid() {
			m = m.WithRegion(*c.Region)
		}
		out = append(out, m)
	}
	return out
}

// ClassifyPredictions resolves image labels at or above the threshold
func (p *Pipeline) ClassifyPredictions(predictions []Prediction) []equipment.Match {
	var out []equipment.Match
	for _, pr := range predictions {
		if pr.Confidence < p.threshold {
			continue
		}
		if m, ok := p.classifier.ClassifyLabel(pr.Label, pr.Confidence); ok {
			out = append(out, m)
		}
	}
	return out
}

// recognize runs every configured pass. It fails only when all passes fail.
func (p *Pipeline) recognize(ctx context.Context, image []byte) (textMatches, visionMatches []equipment.Match, err error) {
	var errs []error
	passes := 0

	if p.text != nil {
		passes++
		candidates, terr := p.text.RecognizeText(ctx, image)
		if terr != nil {
			errs = append(errs, terr)
		} else {
			textMatches = p.ClassifyCandidates(candidates)
		}
	}
	if p.vision != nil {
		passes++
		predictions, verr := p.vision.ClassifyImage(ctx, image)
		if verr != nil {
			errs = append(errs, verr)
		} else {
			visionMatches = p.ClassifyPredictions(predictions)
		}
	}

	if passes == 0 {
		return nil, nil, errors.Newf("no recognizer configured").
			Component("scanner").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if len(errs) == passes {
		return nil, nil, errors.New(errors.Join(errs...)).
			Component("scanner").
			Category(errors.CategoryRecognition).
			Build()
	}
	for _, e := range errs {
		p.log.Warn("recognition pass failed", logger.Error(e))
	}
	return textMatches, visionMatches, nil
}

// Analyze is the single-image pathway: text and image passes accumulate
// into one deduplicated detection list
func (p *Pipeline) Analyze(ctx context.Context, image []byte) ([]equipment.Match, error) {
	textMatches, visionMatches, err := p.recognize(ctx, image)
	if err != nil {
		return nil, err
	}
	agg := classifier.NewAggregator()
	agg.Accumulate(textMatches...)
	return agg.Accumulate(visionMatches...), nil
}
