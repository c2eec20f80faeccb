// Package ingest parses a consumer's or PV producer's load profile: a CSV
// file of (time, cumulative energy) pairs used to build the
// interpolate.Function a predictor or consumer agent samples.
//
// Grounded on original_source/simulator/CoSSMic/BSplineLoad.hpp (a load
// profile is a time series of cumulative-energy samples, "either a file
// or a container containing time-value pairs"; the last sample's time
// and energy become the load's duration and total energy), reusing the
// teacher's encoding/csv-based parser shape from internal/ingest/homeassistant.go
// (header validated up front, per-line errors carry the line number, a
// malformed sample row is an error rather than silently skipped, since
// unlike the teacher's "unavailable" sensor rows a load profile has no
// such sentinel value).
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"cossmic/internal/id"
)

// Sample is one (time, cumulative energy) point of a load or production
// profile.
type Sample struct {
	Time   id.Time
	Energy float64
}

// ParseProfile reads a CSV time series of "time,energy" rows (optionally
// preceded by a "time,energy" header row, which is detected and skipped)
// and returns the samples in file order. Per spec.md's predictor
// invariant, the caller is responsible for checking monotonicity via
// EnsureMonotoneTime; ParseProfile itself only parses.
func ParseProfile(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var samples []Sample
	lineNum := 0

	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingest: reading line %d: %w", lineNum, err)
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("ingest: line %d: expected 2 fields, got %d", lineNum, len(record))
		}

		if lineNum == 1 && isHeaderRow(record) {
			continue
		}

		t, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ingest: line %d: parsing time %q: %w", lineNum, record[0], err)
		}
		energy, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("ingest: line %d: parsing energy %q: %w", lineNum, record[1], err)
		}

		samples = append(samples, Sample{Time: id.Time(t), Energy: energy})
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("ingest: no samples found")
	}
	return samples, nil
}

func isHeaderRow(record []string) bool {
	_, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	return err != nil
}

// EnsureMonotoneTime checks that samples are non-decreasing in time, the
// assumption both the PV-Producer's and Predictor's interpolated
// cumulative-energy functions (internal/interpolate) depend on.
func EnsureMonotoneTime(samples []Sample) error {
	for i := 1; i < len(samples); i++ {
		if samples[i].Time < samples[i-1].Time {
			return fmt.Errorf("ingest: sample %d time %d precedes sample %d time %d",
				i, samples[i].Time, i-1, samples[i-1].Time)
		}
	}
	return nil
}

// Duration returns the profile's duration: the time of its last sample,
// matching the original's "Duration = Profile.rbegin()->first".
func Duration(samples []Sample) id.Time {
	if len(samples) == 0 {
		return 0
	}
	return samples[len(samples)-1].Time
}

// TotalEnergy returns the profile's total energy: the cumulative energy
// value of its last sample, matching the original's
// "TotalEnergy = Profile.rbegin()->second".
func TotalEnergy(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	return samples[len(samples)-1].Energy
}
