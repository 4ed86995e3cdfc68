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

import "errors"

var (
	// ErrInvalidInfo indicates a CommonInfo payload failed validation.
	ErrInvalidInfo = errors.New("invalid article info")

	// ErrInvalidPoint indicates a Point failed validation.
	ErrInvalidPoint = errors.New("invalid point")

	// ErrInvalidCombo indicates a Combo failed validation.
	ErrInvalidCombo = errors.New("invalid combo")

	// ErrEmptyURI indicates a required URI is empty.
	ErrEmptyURI = errors.New("uri cannot be empty")

	// ErrInvalidDate indicates a year/month/day triple is out of range.
	ErrInvalidDate = errors.New("invalid date")

	// ErrEmptyVector indicates a point has no embedding.
	ErrEmptyVector = errors.New("vector cannot be empty")
)
