// Package speedscope converts a merged listing into the file format of the
// speedscope viewer, with one sample per stack-terminating path weighted by
// the number of ranks stopped there.
package speedscope

import (
	"sort"

	"github.com/getsentry/stackmerge/internal/collapsed"
)

const (
	Schema   = "https://www.speedscope.app/file-format-schema.json"
	Exporter = "stackmerge"

	ValueUnitCount ValueUnit = "count"

	ProfileTypeSampled ProfileType = "sampled"
)

type (
	Frame struct {
		IsApplication bool   `json:"is_application"`
		Name          string `json:"name"`
	}

	SampledProfile struct {
		EndValue   uint64      `json:"endValue"`
		Name       string      `json:"name"`
		Samples    [][]int     `json:"samples"`
		StartValue uint64      `json:"startValue"`
		Type       ProfileType `json:"type"`
		Unit       ValueUnit   `json:"unit"`
		Weights    []uint64    `json:"weights"`
	}

	SharedData struct {
		Frames []Frame `json:"frames"`
	}

	ProfileType string
	ValueUnit   string

	Output struct {
		Schema             string           `json:"$schema"`
		ActiveProfileIndex int              `json:"activeProfileIndex"`
		Exporter           string           `json:"exporter"`
		Name               string           `json:"name"`
		Profiles           []SampledProfile `json:"profiles"`
		Shared             SharedData       `json:"shared"`
	}
)

// FromRecords builds a single sampled profile out of the records of a
// listing. Frames are shared between samples by label, so a function reached
// by different sets of ranks shows up as distinct frames.
func FromRecords(records []collapsed.Record, name string) (Output, error) {
	var (
		frames  []Frame
		indices = make(map[string]int)
		p       = SampledProfile{
			Name:    name,
			Samples: make([][]int, 0, len(records)),
			Type:    ProfileTypeSampled,
			Unit:    ValueUnitCount,
			Weights: make([]uint64, 0, len(records)),
		}
	)
	for _, r := range records {
		ranks, err := r.Ranks()
		if err != nil {
			return Output{}, err
		}
		sample := make([]int, 0, len(r.Labels))
		for _, l := range r.Labels {
			i, exists := indices[l]
			if !exists {
				i = len(frames)
				indices[l] = i
				frames = append(frames, Frame{IsApplication: true, Name: l})
			}
			sample = append(sample, i)
		}
		p.Samples = append(p.Samples, sample)
		p.Weights = append(p.Weights, uint64(ranks.Len()))
		p.EndValue += uint64(ranks.Len())
	}
	if frames == nil {
		frames = []Frame{}
	}
	SortSamplesAlphabetically(p.Samples, p.Weights, frames)
	return Output{
		Schema:   Schema,
		Exporter: Exporter,
		Name:     name,
		Profiles: []SampledProfile{p},
		Shared:   SharedData{Frames: frames},
	}, nil
}

type samplesByName struct {
	samples [][]int
	weights []uint64
	frames  []Frame
}

func (s samplesByName) Len() int {
	return len(s.samples)
}

func (s samplesByName) Swap(i, j int) {
	s.samples[i], s.samples[j] = s.samples[j], s.samples[i]
	s.weights[i], s.weights[j] = s.weights[j], s.weights[i]
}

func (s samplesByName) Less(i, j int) bool {
	c := 0
	for {
		if len(s.samples[i]) == c {
			return len(s.samples[j]) > c
		} else if len(s.samples[j]) == c {
			return false
		}
		a, b := s.frames[s.samples[i][c]].Name, s.frames[s.samples[j][c]].Name
		if a != b {
			return a < b
		}
		c++
	}
}

// SortSamplesAlphabetically orders samples by frame name, outermost frame
// first, keeping each weight with its sample.
func SortSamplesAlphabetically(samples [][]int, weights []uint64, frames []Frame) {
	sort.Stable(samplesByName{samples: samples, weights: weights, frames: frames})
}
