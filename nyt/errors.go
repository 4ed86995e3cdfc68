// Copyright 2025 The Crunch Authors
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


package nyt

import "errors"

var (
	// ErrPartitionNotFound is returned when a month's archive file does not exist.
	ErrPartitionNotFound = errors.New("not found")

	// ErrInvalidPubDate is returned when a publication date matches no known layout.
	ErrInvalidPubDate = errors.New("invalid publication date")

	// ErrUnexpectedStatus is returned when the API answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrAPIKeyRequired is returned when a client is built without a credential.
	ErrAPIKeyRequired = errors.New("api key required")

	// ErrUnknownField is returned by FieldByName for unregistered names.
	ErrUnknownField = errors.New("unknown embeddable field")
)
