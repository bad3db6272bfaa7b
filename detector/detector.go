// Package detector steers the pointer with a face found by the pigo cascade
// classifier.
package detector

import (
	"errors"
	"fmt"
	"os"

	pigo "github.com/esimov/pigo/core"

	field "github.com/esimov/pixel-particles/particle-field"
)

// perturbFact represents the perturbation factor used for pupils/eyes localization
const perturbFact = 63

// qualityThreshold discards weak detections.
const qualityThreshold = 5.0

// Detector holds the unpacked face and, optionally, pupil cascades.
type Detector struct {
	faceClassifier   *pigo.Pigo
	puplocClassifier *pigo.PuplocCascade
}

// New unpacks the facefinder cascade and, when puploc is not empty, the pupil
// localization cascade.
func New(facefinder, puploc []byte) (*Detector, error) {
	if len(facefinder) == 0 {
		return nil, errors.New("empty facefinder cascade")
	}
	d := &Detector{}

	p := pigo.NewPigo()
	// Unpack the binary file. This will return the number of cascade trees,
	// the tree depth, the threshold and the prediction from tree's leaf nodes.
	fc, err := p.Unpack(facefinder)
	if err != nil {
		return nil, fmt.Errorf("unpacking the facefinder cascade: %w", err)
	}
	d.faceClassifier = fc

	if len(puploc) > 0 {
		plc := pigo.NewPuplocCascade()
		pc, err := plc.UnpackCascade(puploc)
		if err != nil {
			return nil, fmt.Errorf("unpacking the puploc cascade: %w", err)
		}
		d.puplocClassifier = pc
	}
	return d, nil
}

// Load reads the cascade files from disk. puplocPath may be empty.
func Load(facefinderPath, puplocPath string) (*Detector, error) {
	facefinder, err := os.ReadFile(facefinderPath)
	if err != nil {
		return nil, fmt.Errorf("reading the facefinder cascade: %w", err)
	}
	var puploc []byte
	if puplocPath != "" {
		puploc, err = os.ReadFile(puplocPath)
		if err != nil {
			return nil, fmt.Errorf("reading the puploc cascade: %w", err)
		}
	}
	return New(facefinder, puploc)
}

// Locate returns the position of the most confident face in img as fractions
// of the image size. If a pupil cascade is loaded and both pupils are found,
// the point between the eyes is returned instead of the face centre.
func (d *Detector) Locate(img *field.Image) (fx, fy float64, ok bool) {
	if img == nil || img.Width == 0 || img.Height == 0 {
		return 0, 0, false
	}
	params := pigo.ImageParams{
		Pixels: Grayscale(img),
		Rows:   img.Height,
		Cols:   img.Width,
		Dim:    img.Width,
	}

	best, found := strongest(d.clusterDetection(params))
	if !found {
		return 0, 0, false
	}

	row, col := float64(best.Row), float64(best.Col)
	if d.puplocClassifier != nil {
		left := d.detectPupil(best, params, -1)
		right := d.detectPupil(best, params, 1)
		if left != nil && right != nil {
			row = float64(left.Row+right.Row) / 2
			col = float64(left.Col+right.Col) / 2
		}
	}
	return col / float64(img.Width), row / float64(img.Height), true
}

// clusterDetection runs Pigo face detector core methods
// and returns a cluster with the detected faces coordinates.
func (d *Detector) clusterDetection(params pigo.ImageParams) []pigo.Detection {
	minDim := min(params.Rows, params.Cols)
	cParams := pigo.CascadeParams{
		MinSize:     max(20, minDim/8),
		MaxSize:     max(40, minDim),
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: params,
	}

	// Run the classifier over the obtained leaf nodes and return the detection results.
	// The result contains quadruplets representing the row, column, scale and detection score.
	dets := d.faceClassifier.RunCascade(cParams, 0.0)

	// Calculate the intersection over union (IoU) of two clusters.
	return d.faceClassifier.ClusterDetections(dets, 0.2)
}

// detectPupil searches for the left (side < 0) or right (side > 0) pupil of a face.
func (d *Detector) detectPupil(face pigo.Detection, params pigo.ImageParams, side int) *pigo.Puploc {
	puploc := &pigo.Puploc{
		Row:      face.Row - int(0.085*float32(face.Scale)),
		Col:      face.Col + side*int(0.185*float32(face.Scale)),
		Scale:    float32(face.Scale) * 0.4,
		Perturbs: perturbFact,
	}
	eye := d.puplocClassifier.RunDetector(*puploc, params, 0.0, false)
	if eye != nil && eye.Row > 0 && eye.Col > 0 {
		return eye
	}
	return nil
}

// strongest returns the detection with the highest score above the threshold.
func strongest(dets []pigo.Detection) (pigo.Detection, bool) {
	var best pigo.Detection
	found := false
	for _, det := range dets {
		if det.Q < qualityThreshold {
			continue
		}
		if !found || det.Q > best.Q {
			best, found = det, true
		}
	}
	return best, found
}

// Grayscale converts an RGBA buffer to the luma plane pigo works on.
func Grayscale(img *field.Image) []uint8 {
	gray := make([]uint8, img.Width*img.Height)
	for i := range gray {
		r, g, b := img.Pix[4*i], img.Pix[4*i+1], img.Pix[4*i+2]
		gray[i] = uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b)) / 1000)
	}
	return gray
}
