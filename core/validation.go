// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"math"
	"time"
)

func ValidateInfo(info *CommonInfo) error {
	if info == nil {
		return fmt.Errorf("%w: info is nil", ErrInvalidInfo)
	}

	if info.URI == "" {
		return fmt.Errorf("%w: %w", ErrInvalidInfo, ErrEmptyURI)
	}

	if !IsValidDate(info.Year, info.Month, info.Day) {
		return fmt.Errorf("%w: %w: %04d-%02d-%02d", ErrInvalidInfo, ErrInvalidDate, info.Year, info.Month, info.Day)
	}

	return nil
}

func ValidatePoint(point *Point) error {
	if point == nil {
		return fmt.Errorf("%w: point is nil", ErrInvalidPoint)
	}

	if len(point.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPoint, ErrEmptyVector)
	}

	if err := ValidateInfo(&point.Info); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPoint, err)
	}

	return nil
}

func ValidateCombo(combo *Combo) error {
	if combo == nil {
		return fmt.Errorf("%w: combo is nil", ErrInvalidCombo)
	}

	if combo.ContemporaryURI == "" || combo.PastURI == "" {
		return fmt.Errorf("%w: %w", ErrInvalidCombo, ErrEmptyURI)
	}

	if math.IsNaN(float64(combo.Score)) || math.IsInf(float64(combo.Score), 0) {
		return fmt.Errorf("%w: score %v", ErrInvalidCombo, combo.Score)
	}

	return nil
}

// IsValidDate reports whether year/month/day names a real calendar day.
func IsValidDate(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}
